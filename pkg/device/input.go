package device

import (
	"context"
	"fmt"
	"strings"
)

const dumpPath = "/sdcard/tagscout_window_dump.xml"

// Tap sends a tap at absolute coordinates.
func (d *AndroidDevice) Tap(ctx context.Context, x, y int) error {
	_, err := d.Shell(ctx, fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// Back presses the system back key.
func (d *AndroidDevice) Back(ctx context.Context) error {
	_, err := d.Shell(ctx, "input keyevent 4")
	return err
}

// DumpUI returns the uiautomator hierarchy dump of the current screen.
func (d *AndroidDevice) DumpUI(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "uiautomator dump "+dumpPath)
	if err != nil {
		return "", err
	}
	if strings.Contains(out, "ERROR") {
		return "", fmt.Errorf("uiautomator dump: %s", strings.TrimSpace(out))
	}
	xml, err := d.Shell(ctx, "cat "+dumpPath)
	if err != nil {
		return "", err
	}
	return xml, nil
}

// CurrentActivity returns the resumed activity, e.g. ".MainActivity".
func (d *AndroidDevice) CurrentActivity(ctx context.Context) (string, error) {
	out, err := d.Shell(ctx, "dumpsys activity activities")
	if err != nil {
		return "", err
	}
	activity := parseResumedActivity(out)
	if activity == "" {
		return "", fmt.Errorf("no resumed activity in dumpsys output")
	}
	return activity, nil
}

// parseResumedActivity extracts the activity name from dumpsys output such as
// "mResumedActivity: ActivityRecord{8a1 u0 com.example/.MainActivity t12}".
func parseResumedActivity(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "ResumedActivity") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if i := strings.Index(field, "/"); i > 0 {
				return strings.TrimSuffix(field[i+1:], "}")
			}
		}
	}
	return ""
}

// StartApp launches pkg, using activity when given.
func (d *AndroidDevice) StartApp(ctx context.Context, pkg, activity string) error {
	if activity != "" {
		_, err := d.Shell(ctx, fmt.Sprintf("am start -n %s/%s", pkg, activity))
		return err
	}
	_, err := d.Shell(ctx, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg))
	return err
}

// StopApp force-stops pkg.
func (d *AndroidDevice) StopApp(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am force-stop "+pkg)
	return err
}

// SetProxy routes the device's HTTP traffic through host:port.
func (d *AndroidDevice) SetProxy(ctx context.Context, host string, port int) error {
	_, err := d.Shell(ctx, fmt.Sprintf("settings put global http_proxy %s:%d", host, port))
	return err
}

// ClearProxy removes the global HTTP proxy.
func (d *AndroidDevice) ClearProxy(ctx context.Context) error {
	_, err := d.Shell(ctx, "settings put global http_proxy :0")
	return err
}

// Reverse exposes a host port on the device's localhost.
func (d *AndroidDevice) Reverse(ctx context.Context, port int) error {
	_, err := d.adb(ctx, "reverse", fmt.Sprintf("tcp:%d", port), fmt.Sprintf("tcp:%d", port))
	return err
}
