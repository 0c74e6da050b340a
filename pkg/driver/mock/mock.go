// Package mock provides a scripted driver for testing without a real device.
// The app is a graph of screens whose buttons lead to other screens.
package mock

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// LauncherScreen is reported after back is pressed on the start screen.
const LauncherScreen = "com.android.launcher3.Launcher"

// Button is a clickable element on a mock screen.
type Button struct {
	Text       string `yaml:"text"`
	Desc       string `yaml:"desc"`
	ResourceID string `yaml:"resourceId"`
	X          int    `yaml:"x"`
	Y          int    `yaml:"y"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Target     string `yaml:"target"`  // screen to open, empty stays
	Replace    bool   `yaml:"replace"` // replace the current screen instead of pushing
	Disabled   bool   `yaml:"disabled"`
}

// Screen is one page of the mock app.
type Screen struct {
	ID      string   `yaml:"id"`
	Buttons []Button `yaml:"buttons"`
	// StuckBack ignores back presses on this screen.
	StuckBack bool `yaml:"stuckBack"`
}

// App describes the mock app.
type App struct {
	Start   string    `yaml:"start"`
	Screens []*Screen `yaml:"screens"`
}

// LoadApp reads an app graph from a YAML file.
func LoadApp(path string) (App, error) {
	var app App
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided app graph
	if err != nil {
		return app, err
	}
	if err := yaml.Unmarshal(data, &app); err != nil {
		return app, fmt.Errorf("parse mock app %s: %w", path, err)
	}
	if app.Start == "" && len(app.Screens) > 0 {
		app.Start = app.Screens[0].ID
	}
	return app, nil
}

// TapEvent is called after a tap is delivered, with the screen it landed on.
type TapEvent func(screenID string, b Button)

// Config configures mock driver behavior.
type Config struct {
	App App
	// LaunchScreens are reported by CurrentScreen, one per call, before the start screen.
	LaunchScreens []string
	// OnTap runs after every tap that hit a button.
	OnTap TapEvent
	// FailSource makes Source fail on the given screens.
	FailSource map[string]bool
	// ActionDelay adds artificial delay per action.
	ActionDelay time.Duration
	// Platform info to report
	DeviceID string
}

// Driver is a mock implementation of core.Driver.
type Driver struct {
	cfg     Config
	screens map[string]*Screen

	mu      sync.Mutex
	started bool
	stopped int
	launch  []string
	stack   []string
	taps    []string
	backs   int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	screens := make(map[string]*Screen, len(cfg.App.Screens))
	for _, s := range cfg.App.Screens {
		screens[s.ID] = s
	}
	return &Driver{cfg: cfg, screens: screens}
}

// Start launches the app on its start screen.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.screens[d.cfg.App.Start]; !ok {
		return core.ErrSessionNotStarted.WithMessage(fmt.Sprintf("mock app has no start screen %q", d.cfg.App.Start))
	}
	d.started = true
	d.launch = append([]string(nil), d.cfg.LaunchScreens...)
	d.stack = []string{d.cfg.App.Start}
	return nil
}

// Stop ends the session. Safe to call more than once.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.stopped++
	return nil
}

// CurrentScreen returns the id of the top screen.
func (d *Driver) CurrentScreen(ctx context.Context) (string, error) {
	d.delay()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return "", core.ErrSessionNotStarted
	}
	if len(d.launch) > 0 {
		id := d.launch[0]
		d.launch = d.launch[1:]
		return id, nil
	}
	return d.current(), nil
}

// Source renders the top screen as a UIAutomator hierarchy.
func (d *Driver) Source(ctx context.Context) (string, error) {
	d.delay()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return "", core.ErrSessionNotStarted
	}

	id := d.current()
	if d.cfg.FailSource[id] {
		return "", fmt.Errorf("mock source failure on %s", id)
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><hierarchy rotation="0">`)
	b.WriteString(`<node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]" clickable="false">`)
	if s, ok := d.screens[id]; ok {
		for _, btn := range s.Buttons {
			w, h := size(btn)
			fmt.Fprintf(&b,
				`<node class="android.widget.Button" text="%s" content-desc="%s" resource-id="%s" bounds="[%d,%d][%d,%d]" clickable="true" enabled="%t"/>`,
				html.EscapeString(btn.Text), html.EscapeString(btn.Desc), html.EscapeString(btn.ResourceID),
				btn.X, btn.Y, btn.X+w, btn.Y+h, !btn.Disabled,
			)
		}
	}
	b.WriteString(`</node></hierarchy>`)
	return b.String(), nil
}

// Tap presses the button under (x, y), if any.
func (d *Driver) Tap(ctx context.Context, x, y int) error {
	d.delay()
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return core.ErrSessionNotStarted
	}

	id := d.current()
	s, ok := d.screens[id]
	if !ok {
		d.mu.Unlock()
		return nil
	}

	var hit *Button
	for i := range s.Buttons {
		btn := &s.Buttons[i]
		w, h := size(*btn)
		bounds := core.Bounds{X: btn.X, Y: btn.Y, Width: w, Height: h}
		if !btn.Disabled && bounds.Contains(x, y) {
			hit = btn
			break
		}
	}
	if hit == nil {
		d.mu.Unlock()
		return nil
	}

	d.taps = append(d.taps, id+"/"+label(*hit))
	if hit.Target != "" {
		if hit.Replace {
			d.stack[len(d.stack)-1] = hit.Target
		} else {
			d.stack = append(d.stack, hit.Target)
		}
	}
	landed := d.current()
	onTap := d.cfg.OnTap
	btn := *hit
	d.mu.Unlock()

	if onTap != nil {
		onTap(landed, btn)
	}
	return nil
}

// Back pops the top screen. Back on the start screen leaves the app.
func (d *Driver) Back(ctx context.Context) error {
	d.delay()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return core.ErrSessionNotStarted
	}
	d.backs++

	if s, ok := d.screens[d.current()]; ok && s.StuckBack {
		return nil
	}
	if len(d.stack) > 0 {
		d.stack = d.stack[:len(d.stack)-1]
	}
	return nil
}

// GetPlatformInfo returns mock platform info.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:     "android",
		OSVersion:    "mock",
		DeviceName:   "Mock Device",
		DeviceID:     d.cfg.DeviceID,
		IsSimulator:  true,
		ScreenWidth:  1080,
		ScreenHeight: 1920,
		Driver:       "mock",
	}
}

// Taps returns "screen/button" for every tap that hit a button.
func (d *Driver) Taps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.taps...)
}

// Backs returns how many back presses were delivered.
func (d *Driver) Backs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backs
}

// Stopped returns how many times Stop was called.
func (d *Driver) Stopped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Current returns the top screen id.
func (d *Driver) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current()
}

func (d *Driver) current() string {
	if len(d.stack) == 0 {
		return LauncherScreen
	}
	return d.stack[len(d.stack)-1]
}

func (d *Driver) delay() {
	if d.cfg.ActionDelay > 0 {
		time.Sleep(d.cfg.ActionDelay)
	}
}

func size(b Button) (int, int) {
	w, h := b.Width, b.Height
	if w <= 0 {
		w = 200
	}
	if h <= 0 {
		h = 80
	}
	return w, h
}

func label(b Button) string {
	switch {
	case b.Text != "":
		return b.Text
	case b.Desc != "":
		return b.Desc
	default:
		return b.ResourceID
	}
}
