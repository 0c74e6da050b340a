package appium

import (
	"context"
	"strings"
	"sync"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// Options describe the app and device for a new Appium session.
type Options struct {
	ServerURL       string
	DeviceName      string // adb serial
	PlatformVersion string
	AppPackage      string
	AppActivity     string
}

// Driver implements core.Driver using Appium server.
type Driver struct {
	client *Client
	opts   Options

	mu      sync.Mutex
	started bool
}

// NewDriver creates a driver; the session is opened by Start.
func NewDriver(opts Options) *Driver {
	return &Driver{client: NewClient(opts.ServerURL), opts: opts}
}

// Capabilities builds the W3C capability set for the configured app.
func (d *Driver) Capabilities() map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":                  "Android",
		"appium:automationName":         "UiAutomator2",
		"appium:noReset":                true,
		"appium:newCommandTimeout":      3600,
		"appium:autoGrantPermissions":   true,
		"appium:disableWindowAnimation": true,
	}
	if d.opts.DeviceName != "" {
		caps["appium:deviceName"] = d.opts.DeviceName
		caps["appium:udid"] = d.opts.DeviceName
	}
	if d.opts.PlatformVersion != "" {
		caps["appium:platformVersion"] = d.opts.PlatformVersion
	}
	if d.opts.AppPackage != "" {
		caps["appium:appPackage"] = d.opts.AppPackage
	}
	if d.opts.AppActivity != "" {
		caps["appium:appActivity"] = d.opts.AppActivity
	}
	return caps
}

// Start implements core.Driver.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	if err := d.client.Connect(ctx, d.Capabilities()); err != nil {
		return core.ErrServerUnreachable.WithCause(err)
	}
	d.started = true
	if d.opts.AppPackage != "" {
		// noReset sessions keep the app in its previous state; bring it forward.
		_ = d.client.LaunchApp(ctx, d.opts.AppPackage)
	}
	return nil
}

// Stop implements core.Driver.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false
	return d.client.Disconnect()
}

// CurrentScreen implements core.Driver.
func (d *Driver) CurrentScreen(ctx context.Context) (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	activity, err := d.client.CurrentActivity(ctx)
	if err != nil {
		return "", core.ErrScreenUnavailable.WithCause(err)
	}
	return strings.TrimSpace(activity), nil
}

// Source implements core.Driver.
func (d *Driver) Source(ctx context.Context) (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	src, err := d.client.Source(ctx)
	if err != nil {
		return "", core.ErrUITreeUnavailable.WithCause(err)
	}
	return src, nil
}

// Tap implements core.Driver.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.client.Tap(ctx, x, y); err != nil {
		return core.ErrTapFailed.WithCause(err)
	}
	return nil
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.client.Back(ctx)
}

// GetPlatformInfo implements core.Driver.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	w, h := d.client.ScreenSize()
	return &core.PlatformInfo{
		Platform:     "android",
		OSVersion:    d.opts.PlatformVersion,
		DeviceID:     d.opts.DeviceName,
		ScreenWidth:  w,
		ScreenHeight: h,
		AppID:        d.opts.AppPackage,
		Driver:       "appium",
	}
}

func (d *Driver) ready() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return core.ErrSessionNotStarted
	}
	return nil
}
