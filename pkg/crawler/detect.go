package crawler

import (
	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/screen"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// Verdict is the judgment for one interaction.
type Verdict struct {
	Effective   bool
	Reason      clicklog.Reason
	PageChanged bool
}

// Detect decides whether a tap was effective from the fingerprints around it
// and the traffic seen during the settle window. Analytics-tag traffic is
// informational and never makes a tap effective on its own.
func Detect(fpBefore, fpAfter string, effect traffic.Effect) Verdict {
	changed := !screen.Equal(fpBefore, fpAfter)

	switch {
	case effect.HasBusiness && changed:
		return Verdict{Effective: true, Reason: clicklog.ReasonBoth, PageChanged: true}
	case effect.HasBusiness:
		return Verdict{Effective: true, Reason: clicklog.ReasonBusinessRequest}
	case changed:
		return Verdict{Effective: true, Reason: clicklog.ReasonPageChange, PageChanged: true}
	default:
		return Verdict{Reason: clicklog.ReasonNoEffect}
	}
}
