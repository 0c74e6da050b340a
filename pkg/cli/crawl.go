package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/crawler"
	"github.com/devicelab-dev/tagscout/pkg/device"
	"github.com/devicelab-dev/tagscout/pkg/driver/adb"
	"github.com/devicelab-dev/tagscout/pkg/driver/appium"
	"github.com/devicelab-dev/tagscout/pkg/driver/mock"
	"github.com/devicelab-dev/tagscout/pkg/logger"
	"github.com/devicelab-dev/tagscout/pkg/signal"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// crawlFlags are shared by crawl and run.
var crawlFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Automation driver (appium, adb, mock)",
		EnvVars: []string{"TAGSCOUT_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"serial"},
		Usage:   "adb serial of the target device",
		EnvVars: []string{"ANDROID_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "appium-url",
		Usage:   "Appium server URL",
		EnvVars: []string{"APPIUM_URL"},
	},
	&cli.StringFlag{
		Name:  "package",
		Usage: "Android package of the app under test",
	},
	&cli.StringFlag{
		Name:  "activity",
		Usage: "Launch activity of the app under test",
	},
	&cli.IntFlag{
		Name:  "max-depth",
		Usage: "Deepest screen level to explore (0 = launch screen only)",
	},
	&cli.StringFlag{
		Name:  "click-log",
		Usage: "Click log path (relative paths land in the output directory)",
	},
	&cli.StringFlag{
		Name:  "mock-app",
		Usage: "YAML screen graph for the mock driver",
	},
	&cli.StringFlag{
		Name:  "metrics-file",
		Usage: "Write crawl counters in Prometheus text format to this file",
	},
}

var crawlCommand = &cli.Command{
	Name:  "crawl",
	Usage: "Explore the app and record effective clicks",
	Description: `Walk the app depth-first, tapping every interactable element. Taps that
change the page or trigger business traffic are appended to the click log.

Traffic is read from the capture log (--traffic-log, the capture session
descriptor, or the newest capture file in the capture directory).

Examples:
  tagscout crawl --package com.example.app
  tagscout crawl --driver adb --device emulator-5554 --max-depth 3
  tagscout crawl --driver mock --mock-app app.yaml`,
	Flags: append(append([]cli.Flag{}, crawlFlags...),
		&cli.StringFlag{
			Name:  "traffic-log",
			Usage: "Traffic log written by the capture proxy",
		},
		&cli.StringFlag{
			Name:  "signal-url",
			Usage: "Capture proxy control URL (mark_action / activity)",
		},
	),
	Action: runCrawl,
}

func runCrawl(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyCrawlFlags(c, cfg)
	if v := c.String("traffic-log"); v != "" {
		cfg.Traffic.LogPath = v
	}
	if v := c.String("signal-url"); v != "" {
		cfg.Traffic.SignalURL = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	outDir, err := setup(c, cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	res, clickLog, err := crawl(ctx, cfg, crawlTarget{
		mockApp:     c.String("mock-app"),
		metricsFile: outputPath(outDir, c.String("metrics-file")),
	}, logger.L())
	if res != nil {
		printCrawlSummary(res, clickLog)
	}
	return err
}

func applyCrawlFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("driver"); v != "" {
		cfg.Device.Driver = v
	}
	if v := c.String("device"); v != "" {
		cfg.Device.Serial = v
	}
	if v := c.String("appium-url"); v != "" {
		cfg.Device.AppiumURL = v
	}
	if v := c.String("package"); v != "" {
		cfg.App.Package = v
	}
	if v := c.String("activity"); v != "" {
		cfg.App.Activity = v
	}
	if c.IsSet("max-depth") {
		cfg.Crawl.MaxDepth = c.Int("max-depth")
	}
	if v := c.String("click-log"); v != "" {
		cfg.Crawl.ClickLog = v
	}
}

type crawlTarget struct {
	mockApp     string
	metricsFile string
}

// crawl runs one traversal with every collaborator wired from cfg. It
// returns the result, the click log path and the run error.
func crawl(ctx context.Context, cfg *config.Config, target crawlTarget, log *zap.Logger) (*crawler.Result, string, error) {
	classifier := newClassifier(cfg)

	logPath := traffic.ResolveLogPath(cfg.Traffic.LogPath, sessionFile(cfg), captureDir(cfg))
	if logPath == "" {
		log.Warn("no traffic log found; business-request detection disabled")
	} else {
		log.Info("reading traffic", zap.String("path", logPath))
	}
	monitor := traffic.NewMonitor(logPath, classifier, log)

	opts := crawler.OptionsFromConfig(cfg.Crawl)
	opts.Monitor = monitor
	opts.Logger = log
	opts.Metrics = crawler.NewMetrics()

	var sig *signal.Client
	if cfg.Traffic.SignalURL != "" {
		sig = signal.NewClient(cfg.Traffic.SignalURL, cfg.Traffic.SignalTimeout())
		opts.Marker = sig
	}
	idle, closeIdle := idleWaiter(ctx, sig, logPath, log)
	defer closeIdle()
	if idle != nil {
		opts.Idle = idle
	}

	clickLog := outputPath(cfg.Output.Dir, cfg.Crawl.ClickLog)
	sink, err := clicklog.Create(clickLog)
	if err != nil {
		return nil, clickLog, err
	}
	defer sink.Close()
	opts.Sink = sink

	drv, cleanup, err := newDriver(ctx, cfg, target.mockApp, log)
	if err != nil {
		return nil, clickLog, err
	}
	defer cleanup()

	res, err := crawler.New(drv, opts).Run(ctx)

	if target.metricsFile != "" {
		if werr := opts.Metrics.WriteTextfile(target.metricsFile); werr != nil {
			log.Warn("write metrics textfile", zap.Error(werr))
		}
	}
	return res, clickLog, err
}

// idleWaiter prefers the capture proxy's activity endpoint and falls back
// to watching the traffic log for writes.
func idleWaiter(ctx context.Context, sig *signal.Client, logPath string, log *zap.Logger) (crawler.IdleWaiter, func()) {
	noop := func() {}
	if sig != nil {
		if _, err := sig.Activity(ctx); err == nil {
			return sig, noop
		}
		log.Info("capture proxy not reachable; using traffic log watcher for idle detection")
	}
	if logPath == "" {
		return nil, noop
	}
	w, err := traffic.NewWatcher(logPath, log)
	if err != nil {
		log.Warn("traffic log watcher unavailable", zap.Error(err))
		return nil, noop
	}
	return w, func() { _ = w.Close() }
}

func newDriver(ctx context.Context, cfg *config.Config, mockApp string, log *zap.Logger) (core.Driver, func(), error) {
	noop := func() {}
	switch cfg.Device.Driver {
	case "mock":
		if mockApp == "" {
			return nil, noop, core.ErrMissingRequired.WithMessage("--mock-app is required for the mock driver")
		}
		app, err := mock.LoadApp(mockApp)
		if err != nil {
			return nil, noop, err
		}
		return mock.New(mock.Config{App: app}), noop, nil

	case "adb":
		dev, err := device.New(ctx, cfg.Device.Serial)
		if err != nil {
			return nil, noop, core.ErrDeviceDisconnected.WithCause(err)
		}
		cleanup := noop
		if cfg.Device.ProxyHost != "" && cfg.Device.ProxyPort > 0 {
			if err := dev.SetProxy(ctx, cfg.Device.ProxyHost, cfg.Device.ProxyPort); err != nil {
				log.Warn("set device proxy", zap.Error(err))
			} else {
				cleanup = func() {
					if err := dev.ClearProxy(context.Background()); err != nil {
						log.Warn("clear device proxy", zap.Error(err))
					}
				}
			}
		}
		return adb.New(dev, cfg.App.Package, cfg.App.Activity), cleanup, nil

	case "appium":
		return appium.NewDriver(appium.Options{
			ServerURL:       cfg.Device.AppiumURL,
			DeviceName:      cfg.Device.Serial,
			PlatformVersion: cfg.Device.PlatformVersion,
			AppPackage:      cfg.App.Package,
			AppActivity:     cfg.App.Activity,
		}), noop, nil
	}
	return nil, noop, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown driver %q", cfg.Device.Driver))
}

func newClassifier(cfg *config.Config) *traffic.Classifier {
	return traffic.NewClassifier(cfg.Traffic.BusinessDomains, cfg.Traffic.TagDomains, cfg.Traffic.NoiseDomains)
}

func captureDir(cfg *config.Config) string {
	if cfg.Capture.Dir != "" {
		return cfg.Capture.Dir
	}
	return config.DefaultWorkspace().Captures
}

func sessionFile(cfg *config.Config) string {
	return outputPath(captureDir(cfg), cfg.Traffic.SessionFile)
}
