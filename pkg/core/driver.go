// Package core provides the driver contract and shared types for tagscout.
package core

import (
	"context"
)

// Driver defines the device-automation bridge the crawler talks to.
// Implementations: Appium (W3C WebDriver), ADB shell, mock.
// The crawler owns traversal logic; Driver only performs single actions.
type Driver interface {
	// Start opens the automation session and launches the app under test.
	Start(ctx context.Context) error

	// Stop releases the session. Safe to call more than once and after a
	// failed Start.
	Stop() error

	// CurrentScreen returns the logical screen identifier (Android activity).
	CurrentScreen(ctx context.Context) (string, error)

	// Source returns the UI hierarchy dump as XML.
	Source(ctx context.Context) (string, error)

	// Tap taps at absolute screen coordinates.
	Tap(ctx context.Context, x, y int) error

	// Back sends system back navigation.
	Back(ctx context.Context) error

	// GetPlatformInfo returns device/platform information
	GetPlatformInfo() *PlatformInfo
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// IsEmpty reports whether the bounds cover no area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// PlatformInfo contains device and platform details
type PlatformInfo struct {
	Platform     string `json:"platform"`               // android
	OSVersion    string `json:"osVersion"`              // e.g., "14"
	DeviceName   string `json:"deviceName"`             // e.g., "Pixel 8"
	DeviceID     string `json:"deviceId"`               // Unique device identifier
	IsSimulator  bool   `json:"isSimulator"`            // Emulator vs real device
	ScreenWidth  int    `json:"screenWidth,omitempty"`  // Screen width in pixels
	ScreenHeight int    `json:"screenHeight,omitempty"` // Screen height in pixels
	AppID        string `json:"appId,omitempty"`        // Package name
	Driver       string `json:"driver,omitempty"`       // appium, adb, mock
}
