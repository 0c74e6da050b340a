package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/tagscout/pkg/capture"
	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/logger"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Capture, crawl and analyze in one go",
	Description: `Start the recording proxy, crawl the app against it, then analyze the
resulting click and traffic logs.

Examples:
  tagscout run --driver adb --package com.example.app --listen 0.0.0.0:8080
  tagscout run --driver mock --mock-app app.yaml -o out/`,
	Flags:  append(append([]cli.Flag{}, crawlFlags...), captureFlags...),
	Action: runAll,
}

func runAll(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyCrawlFlags(c, cfg)
	applyCaptureFlags(c, cfg)
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

	return pipeline(ctx, cfg, crawlTarget{
		mockApp:     c.String("mock-app"),
		metricsFile: outputPath(outDir, c.String("metrics-file")),
	}, logger.L())
}

// pipeline serves the capture proxy while the crawl runs, stops it, and
// analyzes what was recorded. An interrupted crawl is still analyzed.
func pipeline(ctx context.Context, cfg *config.Config, target crawlTarget, log *zap.Logger) error {
	session, proxy, err := newCapture(cfg, log)
	if err != nil {
		return err
	}
	trafficLog := session.LogFile()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	ready := make(chan string, 1)

	g.Go(func() error {
		return capture.Serve(serveCtx, cfg.Capture.Listen, proxy, log, ready)
	})

	var clickLog string
	g.Go(func() error {
		defer stopServe()

		var addr string
		select {
		case addr = <-ready:
		case <-gctx.Done():
			return gctx.Err()
		}

		crawlCfg := *cfg
		crawlCfg.Traffic.LogPath = trafficLog
		crawlCfg.Traffic.SignalURL = "http://" + addr

		res, path, err := crawl(gctx, &crawlCfg, target, log)
		clickLog = path
		if res != nil {
			printCrawlSummary(res, path)
		}
		return err
	})

	runErr := g.Wait()
	session.Close()

	if clickLog == "" {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("crawl produced no click log")
	}
	if cfg.Capture.Compress {
		trafficLog += ".zst"
	}

	if err := analyze(context.WithoutCancel(ctx), cfg, clickLog, trafficLog, true, log); err != nil {
		return err
	}
	return runErr
}
