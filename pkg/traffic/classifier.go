// Package traffic classifies intercepted requests and queries the capture
// log for requests that arrived inside a time window.
package traffic

import (
	"net"
	"path"
	"strings"
)

// Category is the classification of a single request.
type Category string

const (
	CategoryBusiness Category = "business"
	CategoryTag      Category = "tag" // analytics/tracking instrumentation
	CategoryNoise    Category = "noise"
)

// Classifier labels requests by host pattern. Analytics-tag patterns win over
// noise, noise over business; anything unmatched is noise.
type Classifier struct {
	tag      []string
	noise    []string
	business []string
}

// NewClassifier creates a classifier from the three configured pattern lists.
func NewClassifier(business, tag, noise []string) *Classifier {
	return &Classifier{
		tag:      normalize(tag),
		noise:    normalize(noise),
		business: normalize(business),
	}
}

func normalize(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Classify returns the category of a request. url is accepted for callers
// that only have the full URL; host takes precedence when set.
func (c *Classifier) Classify(host, url string) Category {
	h := hostOnly(host, url)
	if h == "" {
		return CategoryNoise
	}

	if matchAny(c.tag, h, true) {
		return CategoryTag
	}
	// noise patterns are broad ("ad.*", "*cdn*"), glob only
	if matchAny(c.noise, h, false) {
		return CategoryNoise
	}
	if matchAny(c.business, h, true) {
		return CategoryBusiness
	}
	return CategoryNoise
}

func matchAny(patterns []string, host string, substring bool) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, host); ok {
			return true
		}
		if substring {
			if bare := strings.ReplaceAll(p, "*", ""); bare != "" && strings.Contains(host, bare) {
				return true
			}
		}
	}
	return false
}

func hostOnly(host, url string) string {
	h := host
	if h == "" {
		h = url
		if i := strings.Index(h, "://"); i >= 0 {
			h = h[i+3:]
		}
		if i := strings.IndexAny(h, "/?#"); i >= 0 {
			h = h[:i]
		}
	}
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	return strings.ToLower(h)
}
