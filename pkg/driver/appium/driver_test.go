package appium

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type fakeServer struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string]map[string]interface{}
	fail   map[string]bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{bodies: map[string]map[string]interface{}{}, fail: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.calls = append(f.calls, key)
		f.bodies[key] = body
		fail := f.fail[key]
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{"error": "unknown error", "message": "boom"},
			})
			return
		}

		switch key {
		case "POST /session":
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{"sessionId": "s1"},
			})
		case "GET /session/s1/window/rect":
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{"width": 1080.0, "height": 2400.0},
			})
		case "GET /session/s1/appium/device/current_activity":
			writeJSON(w, map[string]interface{}{"value": ".MainActivity"})
		case "GET /session/s1/source":
			writeJSON(w, map[string]interface{}{"value": "<hierarchy/>"})
		default:
			writeJSON(w, map[string]interface{}{"value": nil})
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

func (f *fakeServer) body(key string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func startedDriver(t *testing.T) (*Driver, *fakeServer) {
	f, srv := newFakeServer(t)
	d := NewDriver(Options{ServerURL: srv.URL, DeviceName: "emulator-5554", AppPackage: "com.example"})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d, f
}

func TestDriver_Start(t *testing.T) {
	d, f := startedDriver(t)

	if d.client.SessionID() != "s1" {
		t.Errorf("expected session s1, got %q", d.client.SessionID())
	}
	info := d.GetPlatformInfo()
	if info.ScreenWidth != 1080 || info.ScreenHeight != 2400 {
		t.Errorf("unexpected screen size %dx%d", info.ScreenWidth, info.ScreenHeight)
	}
	if !f.called("POST /session/s1/appium/device/activate_app") {
		t.Error("expected app activation")
	}

	caps := f.body("POST /session")["capabilities"].(map[string]interface{})["alwaysMatch"].(map[string]interface{})
	if caps["appium:appPackage"] != "com.example" || caps["appium:udid"] != "emulator-5554" {
		t.Errorf("unexpected capabilities: %v", caps)
	}

	// second Start is a no-op
	if err := d.Start(context.Background()); err != nil {
		t.Errorf("second Start failed: %v", err)
	}
}

func TestDriver_StartFailure(t *testing.T) {
	f, srv := newFakeServer(t)
	f.mu.Lock()
	f.fail["POST /session"] = true
	f.mu.Unlock()

	d := NewDriver(Options{ServerURL: srv.URL})
	err := d.Start(context.Background())
	if !errors.Is(err, core.ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestDriver_NotStarted(t *testing.T) {
	d := NewDriver(Options{ServerURL: "http://127.0.0.1:1"})
	if _, err := d.Source(context.Background()); !errors.Is(err, core.ErrSessionNotStarted) {
		t.Errorf("expected ErrSessionNotStarted, got %v", err)
	}
	if err := d.Tap(context.Background(), 1, 1); !errors.Is(err, core.ErrSessionNotStarted) {
		t.Errorf("expected ErrSessionNotStarted, got %v", err)
	}
}

func TestDriver_Actions(t *testing.T) {
	d, f := startedDriver(t)
	ctx := context.Background()

	screen, err := d.CurrentScreen(ctx)
	if err != nil || screen != ".MainActivity" {
		t.Errorf("CurrentScreen = %q, %v", screen, err)
	}

	src, err := d.Source(ctx)
	if err != nil || src != "<hierarchy/>" {
		t.Errorf("Source = %q, %v", src, err)
	}

	if err := d.Tap(ctx, 100, 200); err != nil {
		t.Errorf("Tap failed: %v", err)
	}
	actions := f.body("POST /session/s1/actions")["actions"].([]interface{})
	move := actions[0].(map[string]interface{})["actions"].([]interface{})[0].(map[string]interface{})
	if move["x"] != 100.0 || move["y"] != 200.0 {
		t.Errorf("unexpected pointer move: %v", move)
	}

	if err := d.Back(ctx); err != nil {
		t.Errorf("Back failed: %v", err)
	}
	if f.body("POST /session/s1/appium/device/press_keycode")["keycode"] != 4.0 {
		t.Error("expected KEYCODE_BACK")
	}

	if err := d.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if !f.called("DELETE /session/s1") {
		t.Error("expected session delete")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestDriver_SourceError(t *testing.T) {
	d, f := startedDriver(t)
	f.mu.Lock()
	f.fail["GET /session/s1/source"] = true
	f.mu.Unlock()

	_, err := d.Source(context.Background())
	if !errors.Is(err, core.ErrUITreeUnavailable) {
		t.Errorf("expected ErrUITreeUnavailable, got %v", err)
	}
}
