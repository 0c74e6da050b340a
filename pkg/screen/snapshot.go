package screen

import (
	"time"

	"github.com/devicelab-dev/tagscout/pkg/pagesource"
)

// Snapshot is one poll of the UI. It is never mutated; the next poll
// supersedes it.
type Snapshot struct {
	ScreenID    string
	Elements    []Element
	Fingerprint string
	CapturedAt  time.Time
}

// NewSnapshot extracts elements from root and fingerprints them.
func NewSnapshot(screenID string, root *pagesource.Node, threshold int) Snapshot {
	elements := Extract(root, threshold)
	return Snapshot{
		ScreenID:    screenID,
		Elements:    elements,
		Fingerprint: Fingerprint(screenID, elements),
		CapturedAt:  time.Now(),
	}
}

// Find returns the element with the given signature.
func (s Snapshot) Find(signature string) (Element, bool) {
	for _, e := range s.Elements {
		if e.Signature() == signature {
			return e, true
		}
	}
	return Element{}, false
}
