package screen

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	labelCount    = 10 // labels folded into the fingerprint
	labelRunes    = 20
	coordCount    = 20 // elements folded into the coordinate checksum
	resourceCount = 10
	resourceRunes = 30
)

// Fingerprint collapses a screen into a stable identity string. It mixes
// coarse features (screen id, element count) with fine ones (labels, full
// text, coordinate checksum, resource ids) so that same-text screens with a
// different layout differ. It is order sensitive.
func Fingerprint(screenID string, elements []Element) string {
	h := sha256.New()

	fmt.Fprintf(h, "screen=%s\n", screenID)
	fmt.Fprintf(h, "count=%d\n", len(elements))

	io.WriteString(h, "labels=")
	for i := 0; i < len(elements) && i < labelCount; i++ {
		io.WriteString(h, truncate(elements[i].Label, labelRunes))
		io.WriteString(h, "\x1f")
	}
	io.WriteString(h, "\n")

	fmt.Fprintf(h, "content=%s\n", contentHash(elements))

	var sumX, sumY, weighted int
	for i := 0; i < len(elements) && i < coordCount; i++ {
		sumX += elements[i].CenterX
		sumY += elements[i].CenterY
		weighted += (i + 1) * (elements[i].CenterX*31 + elements[i].CenterY)
	}
	fmt.Fprintf(h, "coords=%d,%d,%d\n", sumX, sumY, weighted)

	io.WriteString(h, "ids=")
	for i := 0; i < len(elements) && i < resourceCount; i++ {
		io.WriteString(h, truncate(elements[i].ResourceID, resourceRunes))
		io.WriteString(h, "\x1f")
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Equal reports whether two fingerprints identify the same page.
func Equal(a, b string) bool {
	return a == b
}

func contentHash(elements []Element) string {
	var b strings.Builder
	for _, e := range elements {
		b.WriteString(e.Text)
		b.WriteByte(0x1f)
		b.WriteString(e.Desc)
		b.WriteByte(0x1e)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
