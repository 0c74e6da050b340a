package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakeADB struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (f *fakeADB) run(ctx context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)
	for key := range f.fail {
		if strings.Contains(cmd, key) {
			return "", errors.New("exit status 1")
		}
	}
	for key, out := range f.outputs {
		if strings.Contains(cmd, key) {
			return out, nil
		}
	}
	return "", nil
}

func newFakeDevice() (*AndroidDevice, *fakeADB) {
	f := &fakeADB{outputs: map[string]string{}, fail: map[string]bool{}}
	return &AndroidDevice{serial: "emulator-5554", adbPath: "adb", run: f.run}, f
}

func TestParseDevices(t *testing.T) {
	out := "List of devices attached\nR58M123 unauthorized\nemulator-5554\tdevice\n\n"
	serial, err := parseDevices(out)
	if err != nil || serial != "emulator-5554" {
		t.Errorf("parseDevices = %q, %v", serial, err)
	}

	if _, err := parseDevices("List of devices attached\n"); err == nil {
		t.Error("expected error with no devices")
	}
}

func TestParseResumedActivity(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"legacy", "  mResumedActivity: ActivityRecord{8a1 u0 com.example/.MainActivity t12}\n", ".MainActivity"},
		{"android 10+", "    topResumedActivity=ActivityRecord{3f2 u0 com.example/com.example.ui.Home t7}\n", "com.example.ui.Home"},
		{"none", "  mFocusedApp=null\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResumedActivity(tt.out); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAndroidDevice_Commands(t *testing.T) {
	d, f := newFakeDevice()
	ctx := context.Background()

	if err := d.Tap(ctx, 10, 20); err != nil {
		t.Fatal(err)
	}
	if err := d.Back(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.StartApp(ctx, "com.example", ".Main"); err != nil {
		t.Fatal(err)
	}
	if err := d.SetProxy(ctx, "127.0.0.1", 8080); err != nil {
		t.Fatal(err)
	}
	if err := d.Reverse(ctx, 8080); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"-s emulator-5554 shell input tap 10 20",
		"-s emulator-5554 shell input keyevent 4",
		"-s emulator-5554 shell am start -n com.example/.Main",
		"-s emulator-5554 shell settings put global http_proxy 127.0.0.1:8080",
		"-s emulator-5554 reverse tcp:8080 tcp:8080",
	}
	if strings.Join(f.calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls:\n%s\nwant:\n%s", strings.Join(f.calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestAndroidDevice_DumpUI(t *testing.T) {
	d, f := newFakeDevice()
	f.outputs["uiautomator dump"] = "UI hierchary dumped to: " + dumpPath
	f.outputs["cat "+dumpPath] = "<hierarchy rotation=\"0\"/>"

	xml, err := d.DumpUI(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if xml != "<hierarchy rotation=\"0\"/>" {
		t.Errorf("unexpected dump %q", xml)
	}
}

func TestAndroidDevice_DumpUIError(t *testing.T) {
	d, f := newFakeDevice()
	f.outputs["uiautomator dump"] = "ERROR: could not get idle state."

	if _, err := d.DumpUI(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestAndroidDevice_ShellError(t *testing.T) {
	d, f := newFakeDevice()
	f.fail["input tap"] = true

	err := d.Tap(context.Background(), 1, 1)
	if err == nil || !strings.Contains(err.Error(), "adb shell input tap 1 1") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAndroidDevice_Info(t *testing.T) {
	d, f := newFakeDevice()
	f.outputs["ro.product.model"] = "Pixel 7\n"
	f.outputs["ro.build.version.sdk"] = "34\n"
	f.outputs["ro.kernel.qemu"] = "1\n"

	info := d.Info(context.Background())
	if info.Model != "Pixel 7" || info.SDK != "34" || !info.IsEmulator {
		t.Errorf("unexpected info %+v", info)
	}
}
