package screen

import "strings"

// Kind tags what sort of content a screen shows.
type Kind int

const (
	KindUnknown   Kind = iota // screen id could not be read
	KindNative                // regular app screen, eligible for traversal
	KindTransient             // embedded web or other content that is never recursed into
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// KindClassifier maps screen identifiers to a Kind using configured
// case-insensitive substring patterns.
type KindClassifier struct {
	transient []string
}

// NewKindClassifier creates a classifier for the given transient-content patterns.
func NewKindClassifier(transientPatterns []string) *KindClassifier {
	c := &KindClassifier{}
	for _, p := range transientPatterns {
		if p = strings.TrimSpace(p); p != "" {
			c.transient = append(c.transient, strings.ToLower(p))
		}
	}
	return c
}

// Classify returns the Kind of the screen with the given identifier.
func (c *KindClassifier) Classify(screenID string) Kind {
	if screenID == "" {
		return KindUnknown
	}
	lower := strings.ToLower(screenID)
	for _, p := range c.transient {
		if strings.Contains(lower, p) {
			return KindTransient
		}
	}
	return KindNative
}
