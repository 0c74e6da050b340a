package crawler

import (
	"time"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/core"
)

// Result summarises a traversal run. It is valid even when the run was
// interrupted.
type Result struct {
	RunID     string         `json:"runId"`
	Status    core.RunStatus `json:"status"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Error     string         `json:"error,omitempty"`

	Screens     int                     `json:"screens"`
	Taps        int                     `json:"taps"`
	Effective   int                     `json:"effective"`
	Ineffective int                     `json:"ineffective"`
	Reasons     map[clicklog.Reason]int `json:"reasons"`

	PopupsDismissed int `json:"popupsDismissed"`
	Transient       int `json:"transient"`
	Revisits        int `json:"revisits"`
	MaxDepthHits    int `json:"maxDepthHits"`
	BackFailures    int `json:"backFailures"`
	Abandoned       int `json:"abandoned"`
	Errors          int `json:"errors"`
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func (r *Result) count(reason clicklog.Reason) {
	if r.Reasons == nil {
		r.Reasons = make(map[clicklog.Reason]int)
	}
	r.Reasons[reason]++
}
