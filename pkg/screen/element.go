// Package screen turns UI hierarchy dumps into interactable elements and
// stable page fingerprints.
package screen

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/pagesource"
)

// Element is an interactable element: the outermost clickable node of a
// region, after near-duplicate removal.
type Element struct {
	Class      string      `json:"class"`
	ResourceID string      `json:"resourceId,omitempty"`
	Text       string      `json:"text,omitempty"`
	Desc       string      `json:"desc,omitempty"`
	Label      string      `json:"label"`
	Bounds     core.Bounds `json:"bounds"`
	CenterX    int         `json:"x"`
	CenterY    int         `json:"y"`
	Depth      int         `json:"depth"`
}

// Signature identifies the element across polls of the same screen.
func (e Element) Signature() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d,%d|%s|%s", e.CenterX, e.CenterY, e.Text, e.ResourceID)))
	return hex.EncodeToString(sum[:8])
}

// Extract collects the outermost clickable nodes of the tree, removes
// near-coincident duplicates within threshold pixels and assigns labels.
func Extract(root *pagesource.Node, threshold int) []Element {
	var raw []Element
	pagesource.Walk(root, func(n *pagesource.Node, clickableAncestor bool) {
		if !n.Clickable || clickableAncestor {
			return
		}
		if !n.Enabled || !n.Displayed || n.Bounds.IsEmpty() {
			return
		}
		raw = append(raw, fromNode(n))
	})
	return Dedup(raw, threshold)
}

func fromNode(n *pagesource.Node) Element {
	cx, cy := n.Bounds.Center()
	e := Element{
		Class:      n.Class,
		ResourceID: n.ResourceID,
		Text:       strings.TrimSpace(n.Text),
		Desc:       strings.TrimSpace(n.ContentDesc),
		Bounds:     n.Bounds,
		CenterX:    cx,
		CenterY:    cy,
		Depth:      n.Depth,
	}
	e.Label = displayLabel(e)
	return e
}

// displayLabel returns text, else description, else the resource id name,
// else the short class name in angle brackets.
func displayLabel(e Element) string {
	if e.Text != "" {
		return e.Text
	}
	if e.Desc != "" {
		return e.Desc
	}
	if e.ResourceID != "" {
		id := e.ResourceID
		if i := strings.LastIndex(id, ":id/"); i >= 0 {
			id = id[i+len(":id/"):]
		}
		return id
	}
	class := e.Class
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	return "<" + class + ">"
}

// Dedup collapses elements whose centers lie within threshold pixels of each
// other, keeping the more informative one. Survivors keep encounter order.
// Passes repeat until nothing merges, so Dedup(Dedup(x)) == Dedup(x).
func Dedup(elements []Element, threshold int) []Element {
	out := append([]Element(nil), elements...)
	if threshold <= 0 {
		return out
	}

	for {
		merged := false
		kept := make([]Element, 0, len(out))

	next:
		for _, cand := range out {
			for i, k := range kept {
				if distance(cand, k) <= float64(threshold) {
					if moreInformative(cand, k) {
						kept[i] = cand
					}
					merged = true
					continue next
				}
			}
			kept = append(kept, cand)
		}

		out = kept
		if !merged {
			return out
		}
	}
}

func distance(a, b Element) float64 {
	dx := float64(a.CenterX - b.CenterX)
	dy := float64(a.CenterY - b.CenterY)
	return math.Hypot(dx, dy)
}

// moreInformative ranks has text > has resource id > shallower nesting.
// Equal rank returns false so the earlier element wins.
func moreInformative(a, b Element) bool {
	if (a.Text != "") != (b.Text != "") {
		return a.Text != ""
	}
	if (a.ResourceID != "") != (b.ResourceID != "") {
		return a.ResourceID != ""
	}
	return a.Depth < b.Depth
}
