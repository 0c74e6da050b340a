// Package config handles configuration for tagscout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// Config represents the workspace configuration (config.yaml or config.toml).
type Config struct {
	App      AppConfig      `yaml:"app" toml:"app"`
	Device   DeviceConfig   `yaml:"device" toml:"device"`
	Crawl    CrawlConfig    `yaml:"crawl" toml:"crawl"`
	Traffic  TrafficConfig  `yaml:"traffic" toml:"traffic"`
	Analysis AnalysisConfig `yaml:"analysis" toml:"analysis"`
	Capture  CaptureConfig  `yaml:"capture" toml:"capture"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
}

// AppConfig identifies the app under test.
type AppConfig struct {
	Package  string `yaml:"package" toml:"package"`
	Activity string `yaml:"activity" toml:"activity"`
}

// DeviceConfig selects the automation driver and target device.
type DeviceConfig struct {
	Driver          string `yaml:"driver" toml:"driver"`                   // appium, adb, mock
	Serial          string `yaml:"serial" toml:"serial"`                   // adb serial / appium deviceName
	AppiumURL       string `yaml:"appiumUrl" toml:"appium_url"`            // Appium server URL
	PlatformVersion string `yaml:"platformVersion" toml:"platform_version"` // Android version
	ProxyHost       string `yaml:"proxyHost" toml:"proxy_host"`            // Proxy the device routes through
	ProxyPort       int    `yaml:"proxyPort" toml:"proxy_port"`
}

// CrawlConfig tunes the traversal engine.
type CrawlConfig struct {
	MaxDepth           int      `yaml:"maxDepth" toml:"max_depth"`
	CoordThreshold     int      `yaml:"coordThreshold" toml:"coord_threshold"` // pixels
	SettleMs           int      `yaml:"settleMs" toml:"settle_ms"`
	PageWaitMs         int      `yaml:"pageWaitMs" toml:"page_wait_ms"`
	BackRetries        int      `yaml:"backRetries" toml:"back_retries"`
	IdleWindowMs       int      `yaml:"idleWindowMs" toml:"idle_window_ms"`
	TapIntervalMs      int      `yaml:"tapIntervalMs" toml:"tap_interval_ms"`
	LaunchTimeoutMs    int      `yaml:"launchTimeoutMs" toml:"launch_timeout_ms"`
	MaxPopupDismissals int      `yaml:"maxPopupDismissals" toml:"max_popup_dismissals"`
	TransientPatterns  []string `yaml:"transientPatterns" toml:"transient_patterns"`
	PopupKeywords      []string `yaml:"popupKeywords" toml:"popup_keywords"`
	SplashPatterns     []string `yaml:"splashPatterns" toml:"splash_patterns"`
	ClickLog           string   `yaml:"clickLog" toml:"click_log"`
}

// TrafficConfig describes the traffic log and request classification.
type TrafficConfig struct {
	LogPath         string   `yaml:"logPath" toml:"log_path"`
	SessionFile     string   `yaml:"sessionFile" toml:"session_file"` // capture session descriptor
	SignalURL       string   `yaml:"signalUrl" toml:"signal_url"`     // capture control endpoint base URL
	SignalTimeoutMs int      `yaml:"signalTimeoutMs" toml:"signal_timeout_ms"`
	BusinessDomains []string `yaml:"businessDomains" toml:"business_domains"`
	TagDomains      []string `yaml:"tagDomains" toml:"tag_domains"`
	NoiseDomains    []string `yaml:"noiseDomains" toml:"noise_domains"`
}

// AnalysisConfig tunes the coverage analyzer.
type AnalysisConfig struct {
	MaxWindowMs     int `yaml:"maxWindowMs" toml:"max_window_ms"`
	FastThresholdMs int `yaml:"fastThresholdMs" toml:"fast_threshold_ms"`
}

// CaptureConfig configures the built-in capture proxy.
type CaptureConfig struct {
	Listen   string `yaml:"listen" toml:"listen"`
	Dir      string `yaml:"dir" toml:"dir"`
	Compress bool   `yaml:"compress" toml:"compress"` // zstd-archive logs on rotation
	CACert   string `yaml:"caCert" toml:"ca_cert"`   // PEM CA used to decrypt HTTPS; empty uses the built-in CA
	CAKey    string `yaml:"caKey" toml:"ca_key"`
}

// OutputConfig controls where reports land.
type OutputConfig struct {
	Dir   string `yaml:"dir" toml:"dir"`
	Title string `yaml:"title" toml:"title"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Driver:    "appium",
			AppiumURL: "http://127.0.0.1:4723",
		},
		Crawl: CrawlConfig{
			MaxDepth:           2,
			CoordThreshold:     30,
			SettleMs:           3000,
			PageWaitMs:         2000,
			BackRetries:        3,
			IdleWindowMs:       1500,
			TapIntervalMs:      300,
			LaunchTimeoutMs:    15000,
			MaxPopupDismissals: 3,
			TransientPatterns:  []string{"WebView", "H5", "Browser"},
			PopupKeywords: []string{
				"允许", "拒绝", "确定", "取消", "继续", "跳过", "关闭", "知道了",
				"allow", "deny", "ok", "cancel", "continue", "skip", "close", "got it",
			},
			SplashPatterns: []string{"logo", "splash"},
			ClickLog:       "clicks.jsonl",
		},
		Traffic: TrafficConfig{
			SessionFile:     "capture_session.json",
			SignalURL:       "http://127.0.0.1:8080",
			SignalTimeoutMs: 1500,
			NoiseDomains: []string{
				"*.cloudflare.com", "*.akamai.net", "*cdn*",
				"*.googleapis.com", "*.gstatic.com", "*.google.com", "*.googlesyndication.com",
				"*.doubleclick.net", "*.umeng.com", "*.cnzz.com",
				"*.qq.com", "*.baidu.com", "*.weibo.com", "*.alipay.com", "*.taobao.com", "*.alicdn.com",
			},
		},
		Analysis: AnalysisConfig{
			MaxWindowMs:     10000,
			FastThresholdMs: 2000,
		},
		Capture: CaptureConfig{
			Listen: "127.0.0.1:8080",
			Dir:    ".",
		},
		Output: OutputConfig{
			Title: "Tracking Tag Coverage Report",
		},
	}
}

// Load loads configuration from a file on top of the defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads the first config file found in dirs, in order, or the
// defaults when none has one.
func LoadFromDir(dirs ...string) (*Config, error) {
	if path := FindConfig(dirs...); path != "" {
		return Load(path)
	}
	return Default(), nil
}

// Validate checks value ranges the engine relies on.
func (c *Config) Validate() error {
	var problems []string

	switch c.Device.Driver {
	case "appium", "adb", "mock":
	default:
		problems = append(problems, fmt.Sprintf("device.driver %q must be appium, adb or mock", c.Device.Driver))
	}
	if c.Crawl.MaxDepth < 0 {
		problems = append(problems, "crawl.maxDepth must be >= 0")
	}
	if c.Crawl.CoordThreshold < 0 {
		problems = append(problems, "crawl.coordThreshold must be >= 0")
	}
	if c.Crawl.SettleMs <= 0 {
		problems = append(problems, "crawl.settleMs must be > 0")
	}
	if c.Crawl.BackRetries < 1 {
		problems = append(problems, "crawl.backRetries must be >= 1")
	}
	if c.Analysis.MaxWindowMs <= 0 {
		problems = append(problems, "analysis.maxWindowMs must be > 0")
	}
	if c.Analysis.FastThresholdMs <= 0 {
		problems = append(problems, "analysis.fastThresholdMs must be > 0")
	}
	if (c.Capture.CACert == "") != (c.Capture.CAKey == "") {
		problems = append(problems, "capture.caCert and capture.caKey must be set together")
	}

	if len(problems) > 0 {
		return core.ErrInvalidConfig.WithMessage("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// Settle returns the post-tap settle wait.
func (c CrawlConfig) Settle() time.Duration { return ms(c.SettleMs) }

// PageWait returns the wait applied when entering a new screen.
func (c CrawlConfig) PageWait() time.Duration { return ms(c.PageWaitMs) }

// IdleWindow returns the network-quiet period that confirms a back navigation.
func (c CrawlConfig) IdleWindow() time.Duration { return ms(c.IdleWindowMs) }

// TapInterval returns the minimum spacing between driver actions.
func (c CrawlConfig) TapInterval() time.Duration { return ms(c.TapIntervalMs) }

// LaunchTimeout returns how long to wait for the app to stabilise after launch.
func (c CrawlConfig) LaunchTimeout() time.Duration { return ms(c.LaunchTimeoutMs) }

// SignalTimeout returns the timeout applied to side-channel calls.
func (c TrafficConfig) SignalTimeout() time.Duration { return ms(c.SignalTimeoutMs) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
