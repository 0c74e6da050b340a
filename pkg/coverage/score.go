package coverage

import "math"

// Grade is the verdict derived from the quality score.
type Grade string

const (
	GradeExcellent        Grade = "excellent"
	GradeGood             Grade = "good"
	GradeFair             Grade = "fair"
	GradePassing          Grade = "passing"
	GradeNeedsImprovement Grade = "needs improvement"
)

// Score is the composite instrumentation quality score.
type Score struct {
	Coverage      float64 `json:"coverage"`      // up to 40
	EventRichness float64 `json:"eventRichness"` // up to 25
	Latency       float64 `json:"latency"`       // up to 20
	ParamRichness float64 `json:"paramRichness"` // up to 15
	Total         float64 `json:"total"`
	Grade         Grade   `json:"grade"`
}

// QualityScore combines coverage rate (percent), distinct event types, the
// fraction of fast matches and the average parameter count per event type.
func QualityScore(coverageRate float64, eventTypes int, fastFraction, avgParams float64) Score {
	s := Score{
		Coverage:      capped(coverageRate*0.4, 40),
		EventRichness: capped(float64(eventTypes)*2.5, 25),
		Latency:       capped(fastFraction*20, 20),
		ParamRichness: capped(avgParams*1.5, 15),
	}
	s.Total = capped(s.Coverage+s.EventRichness+s.Latency+s.ParamRichness, 100)
	s.Grade = GradeFor(s.Total)
	return s
}

// GradeFor maps a total score to a grade.
func GradeFor(total float64) Grade {
	switch {
	case total >= 90:
		return GradeExcellent
	case total >= 80:
		return GradeGood
	case total >= 70:
		return GradeFair
	case total >= 60:
		return GradePassing
	default:
		return GradeNeedsImprovement
	}
}

// FastFraction returns the share of matches with latency under thresholdMs.
func FastFraction(matches []Match, thresholdMs int64) float64 {
	if len(matches) == 0 {
		return 0
	}
	fast := 0
	for _, m := range matches {
		if m.LatencyMs < thresholdMs {
			fast++
		}
	}
	return float64(fast) / float64(len(matches))
}

func capped(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, max)
}
