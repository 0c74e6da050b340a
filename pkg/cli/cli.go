// Package cli provides the command-line interface for tagscout.
package cli

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration file (.yaml or .toml); defaults to config.* in $TAGSCOUT_HOME",
		EnvVars: []string{"TAGSCOUT_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output directory for logs and reports",
		EnvVars: []string{"TAGSCOUT_OUTPUT"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Log file path (default: <output>/tagscout.log)",
		EnvVars: []string{"TAGSCOUT_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Echo debug logging to stderr",
		EnvVars: []string{"TAGSCOUT_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "tagscout",
		Usage:   "Measure analytics-tag coverage of a mobile app",
		Version: Version,
		Description: `tagscout crawls an Android app, keeps every tap that changed the page or
triggered business traffic, and measures how many of those taps fired an
analytics tag.

Examples:
  tagscout capture --listen 0.0.0.0:8080
  tagscout crawl --package com.example.app
  tagscout analyze --click-log clicks.jsonl
  tagscout run --driver adb --package com.example.app`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			crawlCommand,
			analyzeCommand,
			captureCommand,
			runCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the --config file, or the first config.* in the working
// directory or the workspace home.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(config.DefaultWorkspace().ConfigDirs()...)
	}
	if err != nil {
		return nil, err
	}
	if out := c.String("output"); out != "" {
		cfg.Output.Dir = out
	}
	return cfg, nil
}

// resolveOutputDir returns the configured output directory, or a
// timestamped folder under the workspace reports directory.
func resolveOutputDir(output string) string {
	if output != "" {
		return filepath.Clean(output)
	}
	return config.DefaultWorkspace().RunDir(time.Now())
}

// setup creates the output directory and starts file logging.
func setup(c *cli.Context, cfg *config.Config) (string, error) {
	outDir := resolveOutputDir(cfg.Output.Dir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	cfg.Output.Dir = outDir

	logPath := c.String("log-file")
	if logPath == "" {
		logPath = filepath.Join(outDir, "tagscout.log")
	}
	if err := logger.Init(logPath, c.Bool("verbose")); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	return outDir, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// outputPath places relative paths inside dir.
func outputPath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
