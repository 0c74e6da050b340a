package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/tagscout/pkg/coverage"
)

const defaultTopEvents = 20

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath string // Path to write the HTML file (default: coverage.html)
	Title      string // Report title
	TopEvents  int    // Event types listed in the parameter table (default: 20)
}

// GenerateHTML renders rep as a standalone HTML page.
func GenerateHTML(rep *coverage.Report, cfg HTMLConfig) error {
	if rep == nil {
		return fmt.Errorf("no report to render")
	}

	if cfg.Title == "" {
		cfg.Title = "Tracking Tag Coverage Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "coverage.html"
	}
	if cfg.TopEvents <= 0 {
		cfg.TopEvents = defaultTopEvents
	}

	html, err := renderHTML(buildHTMLData(rep, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if dir := filepath.Dir(cfg.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title       string
	GeneratedAt string
	Report      *coverage.Report
	GradeClass  string
	Matches     []MatchHTMLData
	Events      []coverage.EventStat
	MoreEvents  int
}

// MatchHTMLData is a matched click formatted for HTML.
type MatchHTMLData struct {
	coverage.MatchRow
	Time    string
	Latency string
}

func buildHTMLData(rep *coverage.Report, cfg HTMLConfig) HTMLData {
	gradeClass := map[coverage.Grade]string{
		coverage.GradeExcellent:        "excellent",
		coverage.GradeGood:             "good",
		coverage.GradeFair:             "fair",
		coverage.GradePassing:          "passing",
		coverage.GradeNeedsImprovement: "poor",
	}

	matches := make([]MatchHTMLData, len(rep.Matches))
	for i, m := range rep.Matches {
		matches[i] = MatchHTMLData{
			MatchRow: m,
			Time:     formatTime(m.ClickTime),
			Latency:  formatDuration(m.LatencyMs),
		}
	}

	events := rep.Events
	more := 0
	if len(events) > cfg.TopEvents {
		more = len(events) - cfg.TopEvents
		events = events[:cfg.TopEvents]
	}

	generated := rep.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	return HTMLData{
		Title:       cfg.Title,
		GeneratedAt: generated.Format("2006-01-02 15:04:05"),
		Report:      rep,
		GradeClass:  gradeClass[rep.Score.Grade],
		Matches:     matches,
		Events:      events,
		MoreEvents:  more,
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatTime(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("15:04:05.000")
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"num": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	}).Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #000000;
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --failed: #ef4444;
            --skipped: #eab308;
            --accent: #06b6d4;
        }

        * { box-sizing: border-box; margin: 0; padding: 0; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
        }

        .header {
            background: var(--bg-secondary);
            border-bottom: 1px solid var(--border-color);
            padding: 16px 24px;
        }

        .header h1 { font-size: 20px; }
        .meta { color: var(--text-muted); font-size: 12px; }
        main { padding: 24px; max-width: 1200px; margin: 0 auto; }
        section { margin-bottom: 32px; }
        h2 { font-size: 16px; margin-bottom: 12px; }

        .cards { display: flex; gap: 16px; flex-wrap: wrap; }
        .card {
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 16px;
            min-width: 160px;
        }
        .card .value { font-size: 28px; font-weight: 600; }
        .card .label { color: var(--text-muted); font-size: 12px; }

        .grade { font-weight: 600; text-transform: capitalize; }
        .grade.excellent, .grade.good { color: var(--passed); }
        .grade.fair, .grade.passing { color: var(--skipped); }
        .grade.poor { color: var(--failed); }

        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--border-color); }
        th { background: var(--bg-secondary); }
        code { font-size: 12px; }

        .ok::before { content: "\2713  "; color: var(--passed); }
        .todo::before { content: "\2192  "; color: var(--accent); }
        .warning { color: var(--failed); }
    </style>
</head>
<body>
<div class="header">
    <h1>{{.Title}}</h1>
    <div class="meta">Generated {{.GeneratedAt}} &middot; clicks: {{.Report.ClickLog}} &middot; traffic: {{.Report.TrafficLog}}</div>
</div>
<main>
{{with .Report}}
{{if .Warnings}}
<section id="warnings">
    <h2>Warnings</h2>
    <ul>{{range .Warnings}}<li class="warning">{{.}}</li>{{end}}</ul>
</section>
{{end}}

<section id="score">
    <h2>Score</h2>
    <div class="cards">
        <div class="card"><div class="value">{{num .Score.Total}}</div><div class="label">Total score / 100</div></div>
        <div class="card"><div class="value grade {{$.GradeClass}}">{{.Score.Grade}}</div><div class="label">Grade</div></div>
        <div class="card"><div class="value">{{pct .CoverageRate}}</div><div class="label">Coverage ({{.Matched}} / {{.ValidClicks}} valid clicks)</div></div>
        <div class="card"><div class="value">{{.TagRequests}}</div><div class="label">Tag requests of {{.TotalRequests}}</div></div>
    </div>
    <table style="margin-top:16px">
        <tr><th>Component</th><th>Points</th><th>Max</th></tr>
        <tr><td>Click coverage</td><td>{{num .Score.Coverage}}</td><td>40</td></tr>
        <tr><td>Event richness</td><td>{{num .Score.EventRichness}}</td><td>25</td></tr>
        <tr><td>Trigger latency</td><td>{{num .Score.Latency}}</td><td>20</td></tr>
        <tr><td>Parameter richness</td><td>{{num .Score.ParamRichness}}</td><td>15</td></tr>
    </table>
</section>

<section id="suggestions">
    <h2>Suggestions</h2>
    <ul>{{range .Suggestions}}<li class="{{if .OK}}ok{{else}}todo{{end}}">{{.Text}}</li>{{end}}</ul>
</section>
{{end}}

<section id="matches">
    <h2>Matched clicks</h2>
    {{if .Matches}}
    <table>
        <tr><th>#</th><th>Time</th><th>Screen</th><th>Element</th><th>Request</th><th>Latency</th></tr>
        {{range .Matches}}<tr><td>{{.ClickSeq}}</td><td>{{.Time}}</td><td>{{.Screen}}</td><td>{{.Element}}</td><td><code>{{.Host}}{{.Path}}</code></td><td>{{.Latency}}</td></tr>
        {{end}}
    </table>
    {{else}}<p class="meta">No clicks matched an analytics request.</p>{{end}}
</section>

{{with .Report}}
<section id="unmatched">
    <h2>Clicks without tracking</h2>
    {{if .Unmatched}}
    <table>
        <tr><th>#</th><th>Screen</th><th>Element</th><th>Effect</th></tr>
        {{range .Unmatched}}<tr><td>{{.Seq}}</td><td>{{.Screen}}</td><td>{{.Element}}</td><td>{{.Reason}}</td></tr>
        {{end}}
    </table>
    {{else}}<p class="meta">Every valid click was tracked.</p>{{end}}
</section>

<section id="domains">
    <h2>Domains</h2>
    <table>
        <tr><th>Host</th><th>Category</th><th>Requests</th><th>Methods</th><th>Paths</th></tr>
        {{range .Domains}}<tr><td>{{.Host}}</td><td>{{.Category}}</td><td>{{.Count}}</td><td>{{range $m, $n := .Methods}}{{$m}}:{{$n}} {{end}}</td><td>{{.Paths}}</td></tr>
        {{end}}
    </table>
</section>
{{end}}

<section id="events">
    <h2>Events</h2>
    {{if .Events}}
    <table>
        <tr><th>Event</th><th>Count</th><th>Parameter</th><th>Types</th><th>Samples</th></tr>
        {{range .Events}}{{$e := .}}
        {{if .Params}}{{range $i, $p := .Params}}<tr>{{if eq $i 0}}<td rowspan="{{len $e.Params}}">{{$e.Name}}</td><td rowspan="{{len $e.Params}}">{{$e.Count}}</td>{{end}}<td>{{$p.Key}}</td><td>{{range $p.Types}}{{.}} {{end}}</td><td>{{range $p.Samples}}<code>{{.}}</code> {{end}}</td></tr>
        {{end}}{{else}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td colspan="3">-</td></tr>{{end}}
        {{end}}
    </table>
    {{if .MoreEvents}}<p class="meta">{{.MoreEvents}} more event types not shown.</p>{{end}}
    {{else}}<p class="meta">No analytics events found in request bodies.</p>{{end}}
</section>

{{with .Report}}
<section id="latency">
    <h2>Trigger latency</h2>
    <table>
        <tr><th>Band</th><th>Requests</th><th>Share</th></tr>
        {{range .Latency}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{pct .Percent}}</td></tr>
        {{end}}
    </table>
</section>
{{end}}
</main>
</body>
</html>
`
