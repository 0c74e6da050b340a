package coverage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// Input configures an offline analysis run.
type Input struct {
	ClickLog        string
	TrafficLog      string
	Classifier      *traffic.Classifier
	MaxWindowMs     int64
	FastThresholdMs int64
	Logger          *zap.Logger
}

// MatchRow is the report form of a Match.
type MatchRow struct {
	ClickSeq  int    `json:"clickSeq"`
	ClickTime int64  `json:"clickTime"`
	Screen    string `json:"screen"`
	Element   string `json:"element"`
	Host      string `json:"host"`
	Path      string `json:"path"`
	LatencyMs int64  `json:"latencyMs"`
}

// ClickRow is the report form of an unmatched click.
type ClickRow struct {
	Seq       int    `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Screen    string `json:"screen"`
	Element   string `json:"element"`
	Reason    string `json:"reason"`
}

// Suggestion is one line of advice in the report.
type Suggestion struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

// Report is the outcome of an analysis run. Degraded inputs are noted in
// Warnings rather than failing the run.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	ClickLog    string    `json:"clickLog"`
	TrafficLog  string    `json:"trafficLog"`

	TotalRequests    int `json:"totalRequests"`
	TagRequests      int `json:"tagRequests"`
	BusinessRequests int `json:"businessRequests"`
	NoiseRequests    int `json:"noiseRequests"`

	TotalClicks  int        `json:"totalClicks"`
	ValidClicks  int        `json:"validClicks"`
	Matched      int        `json:"matched"`
	CoverageRate float64    `json:"coverageRate"`
	Matches      []MatchRow `json:"matches"`
	Unmatched    []ClickRow `json:"unmatched"`

	Domains     []DomainStat `json:"domains"`
	Events      []EventStat  `json:"events"`
	EventCount  int          `json:"eventCount"`
	Latency     []Bucket     `json:"latency"`
	Score       Score        `json:"score"`
	Suggestions []Suggestion `json:"suggestions"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Analyze reads both logs and produces the coverage report. It always
// returns a report; missing or corrupt inputs degrade the metrics.
func Analyze(ctx context.Context, in Input) *Report {
	tracer := otel.Tracer("github.com/devicelab-dev/tagscout/pkg/coverage")
	ctx, span := tracer.Start(ctx, "coverage.analyze", trace.WithAttributes(
		attribute.String("clicklog", in.ClickLog),
		attribute.String("trafficlog", in.TrafficLog),
	))
	defer span.End()

	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := in.Classifier
	if classifier == nil {
		classifier = traffic.NewClassifier(nil, nil, nil)
	}

	rep := &Report{GeneratedAt: time.Now(), ClickLog: in.ClickLog, TrafficLog: in.TrafficLog}

	clicks := readClicks(in.ClickLog, rep, logger)
	requests := readTraffic(in.TrafficLog, rep, logger)

	var tags []traffic.Record
	var events []hostEvent
	for i := range requests {
		requests[i].Category = classifier.Classify(requests[i].Host, requests[i].URL)
		switch requests[i].Category {
		case traffic.CategoryTag:
			rep.TagRequests++
			tags = append(tags, requests[i])
			events = append(events, bodyEvents(requests[i])...)
		case traffic.CategoryBusiness:
			rep.BusinessRequests++
		default:
			rep.NoiseRequests++
		}
	}
	rep.TotalRequests = len(requests)

	valid := ValidClicks(clicks)
	rep.TotalClicks = len(clicks)
	rep.ValidClicks = len(valid)

	_, attrSpan := tracer.Start(ctx, "coverage.attribute")
	attr := Attribute(valid, tags, in.MaxWindowMs)
	attrSpan.SetAttributes(
		attribute.Int("clicks", len(valid)),
		attribute.Int("matches", len(attr.Matches)),
	)
	attrSpan.End()

	rep.Matched = len(attr.Matches)
	rep.CoverageRate = CoverageRate(rep.Matched, rep.ValidClicks)
	for _, m := range attr.Matches {
		rep.Matches = append(rep.Matches, MatchRow{
			ClickSeq:  m.Click.Seq,
			ClickTime: m.Click.Timestamp,
			Screen:    m.Click.ScreenBefore,
			Element:   m.Click.Element.Label,
			Host:      m.Request.Host,
			Path:      m.Request.Path,
			LatencyMs: m.LatencyMs,
		})
	}
	for _, c := range attr.Unmatched {
		rep.Unmatched = append(rep.Unmatched, ClickRow{
			Seq:       c.Seq,
			Timestamp: c.Timestamp,
			Screen:    c.ScreenBefore,
			Element:   c.Element.Label,
			Reason:    string(c.Reason),
		})
	}

	rep.Domains = Domains(requests)
	rep.Events = Events(events)
	rep.EventCount = len(events)
	rep.Latency = LatencyBuckets(requests)
	rep.Score = QualityScore(
		rep.CoverageRate,
		len(rep.Events),
		FastFraction(attr.Matches, in.FastThresholdMs),
		AvgParams(rep.Events),
	)
	rep.Suggestions = suggestions(rep.Score)

	if rep.ValidClicks == 0 {
		rep.Warnings = append(rep.Warnings, "no valid clicks: coverage rate is 0")
	}
	if rep.TagRequests == 0 && len(requests) > 0 {
		rep.Warnings = append(rep.Warnings, "no analytics-tag requests matched the configured tag domains")
	}

	span.SetAttributes(
		attribute.Float64("coverage.rate", rep.CoverageRate),
		attribute.Float64("score.total", rep.Score.Total),
	)
	logger.Info("analysis finished",
		zap.Int("valid_clicks", rep.ValidClicks),
		zap.Int("matched", rep.Matched),
		zap.Float64("coverage_rate", rep.CoverageRate),
		zap.Float64("score", rep.Score.Total),
		zap.String("grade", string(rep.Score.Grade)),
		zap.Int("warnings", len(rep.Warnings)),
	)
	return rep
}

func readClicks(path string, rep *Report, logger *zap.Logger) []clicklog.Record {
	if path == "" {
		rep.Warnings = append(rep.Warnings, "no click log given")
		return nil
	}
	clicks, skipped, err := clicklog.Read(path)
	if err != nil {
		logger.Warn("click log unreadable", zap.String("path", path), zap.Error(err))
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("click log unreadable: %v", err))
		return nil
	}
	if skipped > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("click log: skipped %d malformed lines", skipped))
	}
	if len(clicks) == 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("click log %s is missing or empty", path))
	}
	return clicks
}

func readTraffic(path string, rep *Report, logger *zap.Logger) []traffic.Record {
	if path == "" {
		rep.Warnings = append(rep.Warnings, "no traffic log found: treated as zero traffic")
		return nil
	}
	res, err := traffic.ReadLog(path)
	if err != nil {
		logger.Warn("traffic log unreadable", zap.String("path", path), zap.Error(err))
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("traffic log unreadable, treated as zero traffic: %v", err))
		return nil
	}
	if res.Missing {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("traffic log %s does not exist: treated as zero traffic", path))
	}
	if res.Skipped > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("traffic log: skipped %d malformed lines", res.Skipped))
	}
	return res.Records
}

func bodyEvents(r traffic.Record) []hostEvent {
	if len(r.Body) == 0 {
		return nil
	}
	tree, err := ParseTree(r.Body)
	if err != nil {
		return nil
	}
	var out []hostEvent
	for _, e := range ExtractEvents(tree) {
		out = append(out, hostEvent{Event: e, host: r.Host})
	}
	return out
}

func suggestions(s Score) []Suggestion {
	pick := func(ok bool, good, bad string) Suggestion {
		if ok {
			return Suggestion{OK: true, Text: good}
		}
		return Suggestion{Text: bad}
	}
	return []Suggestion{
		pick(s.Coverage >= 30, "Most validated clicks fire a tracking tag", "Add tracking to the unmatched interactions listed above"),
		pick(s.EventRichness >= 20, "Event coverage is broad", "Add events for key business flows"),
		pick(s.Latency >= 15, "Tags fire promptly after user actions", "Fire tags closer to the user action to reduce delay"),
		pick(s.ParamRichness >= 12, "Event parameters are well defined", "Enrich event parameters to add analysis dimensions"),
	}
}
