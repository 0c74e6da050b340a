package crawler

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/screen"
)

// dismissPopup taps the first untried element whose text or description is
// a popup keyword. It returns the screen after the tap.
func (e *Engine) dismissPopup(ctx context.Context, cur screen.Snapshot, tried map[string]bool) (screen.Snapshot, bool) {
	if len(e.popups) == 0 {
		return cur, false
	}

	for _, el := range cur.Elements {
		sig := el.Signature()
		if tried[sig] || !e.isPopupButton(el) {
			continue
		}
		tried[sig] = true

		if err := e.limiter.Wait(ctx); err != nil {
			return cur, false
		}
		if err := e.driver.Tap(ctx, el.CenterX, el.CenterY); err != nil {
			e.logger.Debug("popup tap failed", zap.String("button", el.Label), zap.Error(err))
			return cur, true
		}
		e.result.PopupsDismissed++
		e.metrics.popups.Inc()
		e.logger.Info("dismissed popup", zap.String("button", el.Label), zap.String("screen", cur.ScreenID))

		if !sleep(ctx, e.opts.PageWait) {
			return cur, true
		}
		next, err := e.snapshot(ctx)
		if err != nil {
			return cur, true
		}
		return next, true
	}
	return cur, false
}

func (e *Engine) isPopupButton(el screen.Element) bool {
	return e.popups[strings.ToLower(el.Text)] || e.popups[strings.ToLower(el.Desc)]
}
