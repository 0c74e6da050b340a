package cli

import (
	"crypto/tls"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/capture"
	"github.com/devicelab-dev/tagscout/pkg/config"
	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/logger"
)

var captureFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen",
		Usage: "Proxy listen address",
	},
	&cli.StringFlag{
		Name:  "capture-dir",
		Usage: "Directory for traffic logs",
	},
	&cli.BoolFlag{
		Name:  "compress",
		Usage: "zstd-compress each traffic log when its session ends",
	},
	&cli.StringFlag{
		Name:  "ca-cert",
		Usage: "PEM CA certificate used to decrypt HTTPS (default: built-in CA)",
	},
	&cli.StringFlag{
		Name:  "ca-key",
		Usage: "PEM private key of --ca-cert",
	},
}

var captureCommand = &cli.Command{
	Name:  "capture",
	Usage: "Run the recording proxy",
	Description: `Start an HTTP forward proxy that appends every non-static request to
traffic_<session>.jsonl. Point the device's HTTP proxy at it. HTTPS is
decrypted per request; install the CA certificate served at /ca.pem (or
your own --ca-cert) on the device.

Control endpoints on the same address:
  POST /mark_action    mark a user action (resets action_gap_ms)
  GET  /activity       last request timestamps
  POST /start_session  start a new traffic log
  GET  /ca.pem         CA certificate to install on the device
  GET  /metrics        Prometheus metrics

Examples:
  tagscout capture --listen 0.0.0.0:8080
  tagscout capture --capture-dir captures/ --compress`,
	Flags:  captureFlags,
	Action: runCapture,
}

func applyCaptureFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("listen"); v != "" {
		cfg.Capture.Listen = v
	}
	if v := c.String("capture-dir"); v != "" {
		cfg.Capture.Dir = v
	}
	if c.Bool("compress") {
		cfg.Capture.Compress = true
	}
	if v := c.String("ca-cert"); v != "" {
		cfg.Capture.CACert = v
	}
	if v := c.String("ca-key"); v != "" {
		cfg.Capture.CAKey = v
	}
}

func runCapture(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyCaptureFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := setup(c, cfg); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	session, proxy, err := newCapture(cfg, logger.L())
	if err != nil {
		return err
	}
	defer session.Close()

	return capture.Serve(ctx, cfg.Capture.Listen, proxy, logger.L(), nil)
}

// newCapture starts a capture session and the proxy serving it.
func newCapture(cfg *config.Config, log *zap.Logger) (*capture.Session, *capture.Proxy, error) {
	var ca *tls.Certificate
	if cfg.Capture.CACert != "" {
		var err error
		if ca, err = capture.LoadCA(cfg.Capture.CACert, cfg.Capture.CAKey); err != nil {
			return nil, nil, core.ErrInvalidConfig.WithCause(err)
		}
	}

	session := capture.NewSession(capture.SessionOptions{
		Dir:            captureDir(cfg),
		DescriptorPath: sessionFile(cfg),
		Compress:       cfg.Capture.Compress,
		Logger:         log,
	})
	if _, err := session.Start(); err != nil {
		return nil, nil, err
	}

	proxy := capture.NewProxy(capture.ProxyOptions{
		Session:    session,
		Classifier: newClassifier(cfg),
		CA:         ca,
		Metrics:    capture.NewMetrics(),
		Logger:     log,
	})
	return session, proxy, nil
}
