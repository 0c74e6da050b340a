// Package coverage attributes analytics traffic to validated clicks and
// scores the tracking instrumentation.
package coverage

import (
	"sort"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// Match pairs a click with the analytics request attributed to it.
type Match struct {
	Click       clicklog.Record
	Request     traffic.Record
	LatencyMs   int64
	WindowStart int64
	WindowEnd   int64 // exclusive
}

// Attribution is the result of matching clicks to analytics requests.
type Attribution struct {
	Matches   []Match
	Unmatched []clicklog.Record
}

// ValidClicks returns the records whose stored validation shows a page
// change, a business request or an analytics request.
func ValidClicks(records []clicklog.Record) []clicklog.Record {
	var out []clicklog.Record
	for _, r := range records {
		if r.Validation.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Attribute gives each click the half-open window up to the next click (the
// last click gets maxWindowMs) and matches it with the first unconsumed
// analytics-tag request inside. Requests must already carry their Category.
// Clicks are ordered by time, requests by time then log order.
func Attribute(clicks []clicklog.Record, requests []traffic.Record, maxWindowMs int64) Attribution {
	sortedClicks := append([]clicklog.Record(nil), clicks...)
	sort.SliceStable(sortedClicks, func(i, j int) bool {
		return sortedClicks[i].Timestamp < sortedClicks[j].Timestamp
	})

	var tags []traffic.Record
	for _, r := range requests {
		if r.Category == traffic.CategoryTag {
			tags = append(tags, r)
		}
	}
	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].Timestamp != tags[j].Timestamp {
			return tags[i].Timestamp < tags[j].Timestamp
		}
		return tags[i].Seq < tags[j].Seq
	})

	var res Attribution
	consumed := make([]bool, len(tags))
	lo := 0

	for i, click := range sortedClicks {
		start := click.Timestamp
		end := start + maxWindowMs
		if i+1 < len(sortedClicks) {
			end = sortedClicks[i+1].Timestamp
		}

		for lo < len(tags) && int64(tags[lo].Timestamp) < start {
			lo++
		}

		matched := false
		for j := lo; j < len(tags); j++ {
			ts := int64(tags[j].Timestamp)
			if ts >= end {
				break
			}
			if consumed[j] {
				continue
			}
			consumed[j] = true
			res.Matches = append(res.Matches, Match{
				Click:       click,
				Request:     tags[j],
				LatencyMs:   ts - start,
				WindowStart: start,
				WindowEnd:   end,
			})
			matched = true
			break
		}
		if !matched {
			res.Unmatched = append(res.Unmatched, click)
		}
	}
	return res
}

// CoverageRate returns matched/total as a percentage, 0 when total is 0.
func CoverageRate(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(matched) / float64(total) * 100
	if rate > 100 {
		return 100
	}
	return rate
}
