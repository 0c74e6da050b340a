package cli

import (
	"context"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/coverage"
	"github.com/devicelab-dev/tagscout/pkg/logger"
	"github.com/devicelab-dev/tagscout/pkg/report"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

var analyzeCommand = &cli.Command{
	Name:  "analyze",
	Usage: "Attribute analytics requests to recorded clicks and score coverage",
	Description: `Match each valid click with the first analytics-tag request fired before
the next click, then write coverage.json and coverage.html.

Without --traffic-log the capture session descriptor, then the newest
mitm_capture_*.jsonl / traffic_*.jsonl file in the capture directory, is used.

Examples:
  tagscout analyze --click-log clicks.jsonl
  tagscout analyze --click-log clicks.jsonl --traffic-log traffic.jsonl -o out/
  tagscout analyze --from-report out/coverage.json --title "Release 4.2" -o out/`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "click-log",
			Usage: "Click log written by crawl",
		},
		&cli.StringFlag{
			Name:  "from-report",
			Usage: "Re-render the HTML report from an existing coverage.json instead of analyzing",
		},
		&cli.StringFlag{
			Name:  "traffic-log",
			Usage: "Traffic log (JSONL, JSON array or .jsonl.zst)",
		},
		&cli.StringFlag{
			Name:  "capture-dir",
			Usage: "Directory searched for the newest capture file",
		},
		&cli.IntFlag{
			Name:  "max-window",
			Usage: "Attribution window for the last click, in ms",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "HTML report title",
		},
		&cli.BoolFlag{
			Name:  "no-html",
			Usage: "Skip the HTML report",
		},
	},
	Action: runAnalyze,
}

func runAnalyze(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if v := c.String("capture-dir"); v != "" {
		cfg.Capture.Dir = v
	}
	if v := c.String("traffic-log"); v != "" {
		cfg.Traffic.LogPath = v
	}
	if c.IsSet("max-window") {
		cfg.Analysis.MaxWindowMs = c.Int("max-window")
	}
	if v := c.String("title"); v != "" {
		cfg.Output.Title = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fromReport := c.String("from-report")
	if fromReport == "" && c.String("click-log") == "" {
		return core.ErrMissingRequired.WithMessage("--click-log (or --from-report) is required")
	}

	if _, err := setup(c, cfg); err != nil {
		return err
	}
	defer logger.Close()

	if fromReport != "" {
		return rerender(cfg, fromReport)
	}

	trafficLog := traffic.ResolveLogPath(cfg.Traffic.LogPath, sessionFile(cfg), captureDir(cfg))
	return analyze(c.Context, cfg, c.String("click-log"), trafficLog, !c.Bool("no-html"), logger.L())
}

// analyze runs the coverage analysis and writes the reports into the output
// directory.
func analyze(ctx context.Context, cfg *config.Config, clickLog, trafficLog string, html bool, log *zap.Logger) error {
	rep := coverage.Analyze(ctx, coverage.Input{
		ClickLog:        clickLog,
		TrafficLog:      trafficLog,
		Classifier:      newClassifier(cfg),
		MaxWindowMs:     int64(cfg.Analysis.MaxWindowMs),
		FastThresholdMs: int64(cfg.Analysis.FastThresholdMs),
		Logger:          log,
	})

	jsonPath, err := report.WriteJSON(cfg.Output.Dir, rep)
	if err != nil {
		return err
	}

	htmlPath := ""
	if html {
		htmlPath = filepath.Join(cfg.Output.Dir, "coverage.html")
		if err := report.GenerateHTML(rep, report.HTMLConfig{
			OutputPath: htmlPath,
			Title:      cfg.Output.Title,
		}); err != nil {
			return err
		}
	}

	printCoverageSummary(rep, jsonPath, htmlPath)
	return nil
}

// rerender writes coverage.html for a previously saved coverage.json.
func rerender(cfg *config.Config, path string) error {
	rep, err := report.ReadJSON(path)
	if err != nil {
		return err
	}
	htmlPath := filepath.Join(cfg.Output.Dir, "coverage.html")
	if err := report.GenerateHTML(rep, report.HTMLConfig{
		OutputPath: htmlPath,
		Title:      cfg.Output.Title,
	}); err != nil {
		return err
	}
	printCoverageSummary(rep, path, htmlPath)
	return nil
}
