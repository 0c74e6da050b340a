// Package adb implements core.Driver with plain adb shell commands: input
// events, uiautomator dumps and dumpsys. It needs no server on the device.
package adb

import (
	"context"
	"sync"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// Device is the subset of device.AndroidDevice the driver uses.
type Device interface {
	Serial() string
	Tap(ctx context.Context, x, y int) error
	Back(ctx context.Context) error
	DumpUI(ctx context.Context) (string, error)
	CurrentActivity(ctx context.Context) (string, error)
	StartApp(ctx context.Context, pkg, activity string) error
}

// Driver implements core.Driver over adb.
type Driver struct {
	dev      Device
	pkg      string
	activity string

	mu      sync.Mutex
	started bool
}

// New creates a driver for the app pkg on dev.
func New(dev Device, pkg, activity string) *Driver {
	return &Driver{dev: dev, pkg: pkg, activity: activity}
}

// Start implements core.Driver.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pkg != "" {
		if err := d.dev.StartApp(ctx, d.pkg, d.activity); err != nil {
			return core.ErrDeviceDisconnected.WithCause(err)
		}
	}
	d.started = true
	return nil
}

// Stop implements core.Driver. The app is left running.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// CurrentScreen implements core.Driver.
func (d *Driver) CurrentScreen(ctx context.Context) (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	activity, err := d.dev.CurrentActivity(ctx)
	if err != nil {
		return "", core.ErrScreenUnavailable.WithCause(err)
	}
	return activity, nil
}

// Source implements core.Driver.
func (d *Driver) Source(ctx context.Context) (string, error) {
	if err := d.ready(); err != nil {
		return "", err
	}
	xml, err := d.dev.DumpUI(ctx)
	if err != nil {
		return "", core.ErrUITreeUnavailable.WithCause(err)
	}
	return xml, nil
}

// Tap implements core.Driver.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.dev.Tap(ctx, x, y); err != nil {
		return core.ErrTapFailed.WithCause(err)
	}
	return nil
}

// Back implements core.Driver.
func (d *Driver) Back(ctx context.Context) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.dev.Back(ctx)
}

// GetPlatformInfo implements core.Driver.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform: "android",
		DeviceID: d.dev.Serial(),
		AppID:    d.pkg,
		Driver:   "adb",
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
