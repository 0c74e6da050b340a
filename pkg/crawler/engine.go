// Package crawler walks an app's UI depth-first, judging every tap by the
// page change and business traffic it produced.
package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/pagesource"
	"github.com/devicelab-dev/tagscout/pkg/screen"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// launchStableReads is how many equal screen reads in a row mean the app
// finished launching.
const launchStableReads = 3

// EffectMonitor reports the traffic observed after a tap.
type EffectMonitor interface {
	CheckEffect(clickMs, durationMs int64) traffic.Effect
}

// ActionMarker notifies the capture process that a tap happened.
type ActionMarker interface {
	MarkAction(ctx context.Context) error
}

// IdleWaiter blocks until the network is quiet.
type IdleWaiter interface {
	WaitIdle(ctx context.Context, idle, max time.Duration) bool
}

// ClickSink receives effective interactions.
type ClickSink interface {
	Append(rec clicklog.Record) error
}

// Options configures an Engine. Collaborators left nil degrade to "no
// signal".
type Options struct {
	RunID              string
	MaxDepth           int
	CoordThreshold     int
	BackRetries        int
	MaxPopupDismissals int
	Settle             time.Duration
	PageWait           time.Duration
	IdleWindow         time.Duration
	TapInterval        time.Duration
	LaunchTimeout      time.Duration
	LaunchPoll         time.Duration
	TransientPatterns  []string
	PopupKeywords      []string
	SplashPatterns     []string

	Monitor EffectMonitor
	Marker  ActionMarker
	Idle    IdleWaiter
	Sink    ClickSink
	Metrics *Metrics
	Logger  *zap.Logger
}

// OptionsFromConfig maps the crawl section of the configuration.
func OptionsFromConfig(c config.CrawlConfig) Options {
	return Options{
		MaxDepth:           c.MaxDepth,
		CoordThreshold:     c.CoordThreshold,
		BackRetries:        c.BackRetries,
		MaxPopupDismissals: c.MaxPopupDismissals,
		Settle:             c.Settle(),
		PageWait:           c.PageWait(),
		IdleWindow:         c.IdleWindow(),
		TapInterval:        c.TapInterval(),
		LaunchTimeout:      c.LaunchTimeout(),
		LaunchPoll:         time.Second,
		TransientPatterns:  c.TransientPatterns,
		PopupKeywords:      c.PopupKeywords,
		SplashPatterns:     c.SplashPatterns,
	}
}

// Engine is the traversal engine. It is single-threaded; one Engine runs once.
type Engine struct {
	driver  core.Driver
	opts    Options
	kinds   *screen.KindClassifier
	popups  map[string]bool
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *zap.Logger
	metrics *Metrics

	visited map[string]bool // fingerprints
	seq     int
	result  *Result
}

// New creates an engine driving d.
func New(d core.Driver, opts Options) *Engine {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.BackRetries < 1 {
		opts.BackRetries = 1
	}
	if opts.LaunchPoll <= 0 {
		opts.LaunchPoll = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	limit := rate.Inf
	if opts.TapInterval > 0 {
		limit = rate.Every(opts.TapInterval)
	}

	popups := make(map[string]bool, len(opts.PopupKeywords))
	for _, k := range opts.PopupKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			popups[k] = true
		}
	}

	return &Engine{
		driver:  d,
		opts:    opts,
		kinds:   screen.NewKindClassifier(opts.TransientPatterns),
		popups:  popups,
		limiter: rate.NewLimiter(limit, 1),
		tracer:  otel.Tracer("github.com/devicelab-dev/tagscout/pkg/crawler"),
		logger:  opts.Logger.With(zap.String("run_id", opts.RunID)),
		metrics: opts.Metrics,
		visited: make(map[string]bool),
	}
}

// Run starts the driver session, waits for the app to settle and explores
// from the launch screen. The driver is always stopped before Run returns.
// Cancelling ctx ends the run at the next interaction boundary with status
// interrupted; the click log written so far stays valid.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "crawler.run",
		trace.WithAttributes(attribute.String("run.id", e.opts.RunID)),
	)
	defer span.End()

	e.result = &Result{
		RunID:     e.opts.RunID,
		Status:    core.RunRunning,
		StartedAt: time.Now(),
		Reasons:   make(map[clicklog.Reason]int),
	}

	defer func() {
		if err := e.driver.Stop(); err != nil {
			e.logger.Warn("driver stop failed", zap.Error(err))
		}
	}()

	if err := e.driver.Start(ctx); err != nil {
		return e.finish(span, core.RunFailed, err), err
	}

	e.waitForLaunch(ctx)

	root, err := e.snapshot(ctx)
	if err != nil {
		return e.finish(span, core.RunFailed, err), err
	}

	e.explore(ctx, root, 0)

	if ctx.Err() != nil {
		return e.finish(span, core.RunInterrupted, ctx.Err()), nil
	}
	return e.finish(span, core.RunCompleted, nil), nil
}

func (e *Engine) finish(span trace.Span, status core.RunStatus, err error) *Result {
	r := e.result
	r.Status = status
	r.EndedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
		if status == core.RunFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.SetAttributes(
		attribute.Int("crawl.screens", r.Screens),
		attribute.Int("crawl.taps", r.Taps),
		attribute.Int("crawl.effective", r.Effective),
	)

	e.logger.Info("crawl finished",
		zap.String("status", status.String()),
		zap.Duration("duration", r.Duration()),
		zap.Int("screens", r.Screens),
		zap.Int("taps", r.Taps),
		zap.Int("effective", r.Effective),
		zap.Int("ineffective", r.Ineffective),
		zap.Int("back_failures", r.BackFailures),
		zap.Int("abandoned", r.Abandoned),
		zap.Int("errors", r.Errors),
	)
	return r
}

// waitForLaunch polls the current screen until it reads the same, non-splash
// id several times in a row or the launch timeout passes.
func (e *Engine) waitForLaunch(ctx context.Context) bool {
	deadline := time.Now().Add(e.opts.LaunchTimeout)
	last, stable := "", 0

	for time.Now().Before(deadline) {
		id, err := e.driver.CurrentScreen(ctx)
		if err == nil {
			if id == last {
				stable++
			} else {
				last, stable = id, 1
			}
			if stable >= launchStableReads && id != "" && !e.isSplash(id) {
				e.logger.Info("app ready", zap.String("screen", id))
				return true
			}
		}
		if !sleep(ctx, e.opts.LaunchPoll) {
			return false
		}
	}

	e.logger.Warn("launch did not stabilise, exploring anyway", zap.String("screen", last))
	return false
}

func (e *Engine) isSplash(screenID string) bool {
	lower := strings.ToLower(screenID)
	for _, p := range e.opts.SplashPatterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// snapshot reads the current screen. A failed screen id read degrades to
// Unknown; a failed tree read is structural.
func (e *Engine) snapshot(ctx context.Context) (screen.Snapshot, error) {
	id, err := e.driver.CurrentScreen(ctx)
	if err != nil {
		e.logger.Debug("screen id unavailable", zap.Error(core.ErrScreenUnavailable.WithCause(err)))
		id = ""
	}

	xml, err := e.driver.Source(ctx)
	if err != nil {
		return screen.Snapshot{}, core.ErrUITreeUnavailable.WithCause(err)
	}
	root, err := pagesource.Parse(xml)
	if err != nil {
		return screen.Snapshot{}, core.ErrUITreeUnavailable.WithCause(err)
	}
	return screen.NewSnapshot(id, root, e.opts.CoordThreshold), nil
}

// explore enumerates the untried elements of the screen in cur. It returns
// when every element was tried, the context ends, or the engine lost its
// place (the screen is abandoned).
func (e *Engine) explore(ctx context.Context, cur screen.Snapshot, depth int) {
	ctx, span := e.tracer.Start(ctx, "crawler.explore", trace.WithAttributes(
		attribute.String("screen.id", cur.ScreenID),
		attribute.Int("screen.depth", depth),
	))
	defer span.End()

	e.visited[cur.Fingerprint] = true
	e.result.Screens++
	e.metrics.screens.Inc()

	log := e.logger.With(zap.String("screen", cur.ScreenID), zap.Int("depth", depth))
	log.Info("exploring screen",
		zap.String("fingerprint", cur.Fingerprint),
		zap.Int("elements", len(cur.Elements)),
	)

	tried := make(map[string]bool)
	dismissed := 0

	for ctx.Err() == nil {
		if dismissed < e.opts.MaxPopupDismissals {
			if next, ok := e.dismissPopup(ctx, cur, tried); ok {
				dismissed++
				cur = next
				continue
			}
		}

		el, ok := nextUntried(cur.Elements, tried)
		if !ok {
			log.Debug("screen exhausted", zap.Int("tried", len(tried)))
			return
		}
		tried[el.Signature()] = true

		next, ok := e.interact(ctx, cur, el, depth)
		if !ok {
			e.result.Abandoned++
			span.AddEvent("abandoned")
			log.Warn("abandoning screen", zap.String("element", el.Label))
			return
		}
		cur = next
	}
}

func nextUntried(elements []screen.Element, tried map[string]bool) (screen.Element, bool) {
	for _, el := range elements {
		if !tried[el.Signature()] {
			return el, true
		}
	}
	return screen.Element{}, false
}

// interact taps el, judges the effect and follows it. It returns the
// snapshot to continue enumerating from, or false when the engine could not
// get back to cur.
func (e *Engine) interact(ctx context.Context, cur screen.Snapshot, el screen.Element, depth int) (screen.Snapshot, bool) {
	if err := e.limiter.Wait(ctx); err != nil {
		return cur, true
	}

	clickMs := time.Now().UnixMilli()
	if err := e.driver.Tap(ctx, el.CenterX, el.CenterY); err != nil {
		e.result.Errors++
		e.logger.Warn("tap failed", zap.String("element", el.Label), zap.Error(core.ErrTapFailed.WithCause(err)))
		return cur, true
	}
	e.result.Taps++
	e.markAction(ctx)

	if !sleep(ctx, e.opts.Settle) {
		return cur, true
	}

	after, err := e.snapshot(ctx)
	if err != nil {
		e.result.Errors++
		e.logger.Warn("snapshot after tap failed", zap.String("element", el.Label), zap.Error(err))
		return cur, false
	}

	effect := e.checkEffect(clickMs)
	verdict := Detect(cur.Fingerprint, after.Fingerprint, effect)
	e.result.count(verdict.Reason)
	e.metrics.taps.WithLabelValues(string(verdict.Reason)).Inc()

	e.logger.Info("tap",
		zap.String("screen", cur.ScreenID),
		zap.String("element", el.Label),
		zap.Int("x", el.CenterX),
		zap.Int("y", el.CenterY),
		zap.String("reason", string(verdict.Reason)),
		zap.Int("business", effect.BusinessCount),
		zap.Int("tag", effect.TagCount),
		zap.String("screen_after", after.ScreenID),
	)

	if !verdict.Effective {
		e.result.Ineffective++
		return after, true
	}
	e.result.Effective++
	e.record(clickMs, depth, cur, after, el, verdict, effect)

	if !verdict.PageChanged {
		return after, true
	}

	explored := false
	switch {
	case e.kinds.Classify(after.ScreenID) == screen.KindTransient:
		e.result.Transient++
		e.logger.Info("transient content, backing out", zap.String("screen", after.ScreenID))
	case e.visited[after.Fingerprint]:
		// Already explored elsewhere: go back rather than re-enter it.
		e.result.Revisits++
	case depth >= e.opts.MaxDepth:
		e.result.MaxDepthHits++
	default:
		e.explore(ctx, after, depth+1)
		explored = true
	}

	if ctx.Err() != nil {
		return cur, true
	}
	return e.back(ctx, cur, explored)
}

func (e *Engine) markAction(ctx context.Context) {
	if e.opts.Marker == nil {
		return
	}
	if err := e.opts.Marker.MarkAction(ctx); err != nil {
		e.logger.Debug("mark action failed", zap.Error(err))
	}
}

func (e *Engine) checkEffect(clickMs int64) traffic.Effect {
	if e.opts.Monitor == nil {
		return traffic.Effect{}
	}
	return e.opts.Monitor.CheckEffect(clickMs, e.opts.Settle.Milliseconds())
}

func (e *Engine) record(clickMs int64, depth int, before, after screen.Snapshot, el screen.Element, v Verdict, effect traffic.Effect) {
	if e.opts.Sink == nil {
		return
	}
	e.seq++

	var details []clicklog.Request
	for _, group := range [][]traffic.Record{effect.Business, effect.Tags} {
		for _, r := range group {
			details = append(details, clicklog.Request{
				Category:  string(r.Category),
				Method:    r.Method,
				Host:      r.Host,
				Path:      r.Path,
				Timestamp: int64(r.Timestamp),
			})
		}
	}

	rec := clicklog.Record{
		Seq:               e.seq,
		RunID:             e.opts.RunID,
		Timestamp:         clickMs,
		Depth:             depth,
		ScreenBefore:      before.ScreenID,
		ScreenAfter:       after.ScreenID,
		FingerprintBefore: before.Fingerprint,
		FingerprintAfter:  after.Fingerprint,
		Element:           el,
		PageChanged:       v.PageChanged,
		Reason:            v.Reason,
		Requests:          clicklog.Counts{Business: effect.BusinessCount, Tag: effect.TagCount},
		RequestDetails:    details,
		Validation: clicklog.Validation{
			PageChanged: v.PageChanged,
			HasBusiness: effect.HasBusiness,
			HasTag:      effect.HasTag,
		},
	}
	if err := e.opts.Sink.Append(rec); err != nil {
		e.result.Errors++
		e.logger.Error("click log append failed", zap.Error(err))
	}
}

// sleep waits d or until ctx ends; it reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
