package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/screen"
)

// back presses back until the device shows expected again. A press succeeds
// when the fingerprint matches, or when the screen id matches and the network
// has gone idle (not every return redraws to the same fingerprint at once).
// When verifyFirst is set the current screen is checked before the first
// press, so a subtree that already found its way home is not overshot.
func (e *Engine) back(ctx context.Context, expected screen.Snapshot, verifyFirst bool) (screen.Snapshot, bool) {
	if verifyFirst {
		if snap, err := e.snapshot(ctx); err == nil && screen.Equal(snap.Fingerprint, expected.Fingerprint) {
			return snap, true
		}
	}

	for attempt := 1; attempt <= e.opts.BackRetries; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return expected, true
		}
		if err := e.driver.Back(ctx); err != nil {
			e.result.Errors++
			e.logger.Warn("back failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if !sleep(ctx, e.opts.PageWait) {
			return expected, true
		}

		snap, err := e.snapshot(ctx)
		if err != nil {
			e.logger.Debug("snapshot after back failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if screen.Equal(snap.Fingerprint, expected.Fingerprint) {
			return snap, true
		}
		if e.sameScreenSettled(ctx, snap, expected) {
			if fresh, err := e.snapshot(ctx); err == nil {
				snap = fresh
			}
			e.visited[snap.Fingerprint] = true
			e.logger.Debug("returned to screen with changed content",
				zap.String("screen", snap.ScreenID),
				zap.Int("attempt", attempt),
			)
			return snap, true
		}
	}

	e.result.BackFailures++
	e.metrics.backFailures.Inc()
	e.logger.Warn("back navigation exhausted retries",
		zap.String("expected", expected.ScreenID),
		zap.Error(core.ErrBackNavigationFailed),
	)
	return expected, false
}

func (e *Engine) sameScreenSettled(ctx context.Context, snap, expected screen.Snapshot) bool {
	if snap.ScreenID == "" || snap.ScreenID != expected.ScreenID || e.opts.Idle == nil {
		return false
	}
	return e.opts.Idle.WaitIdle(ctx, e.opts.IdleWindow, 3*e.opts.IdleWindow)
}
