package traffic

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher tracks writes to the traffic log through filesystem notifications.
// It is the local fallback for network-idle detection when the capture
// process cannot be queried.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu        sync.Mutex
	lastWrite time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher starts watching the directory holding path. The file itself
// need not exist yet.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:      abs,
		watcher:   fw,
		logger:    logger,
		lastWrite: time.Now(),
		stopChan:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.mu.Lock()
				w.lastWrite = time.Now()
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("traffic watcher error", zap.Error(err))
		case <-w.stopChan:
			return
		}
	}
}

// LastWrite returns when the log was last written to, or when watching began.
func (w *Watcher) LastWrite() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWrite
}

// WaitIdle blocks until the log has not been written for idle, or max
// elapses, or ctx is done. It reports whether idle was observed.
func (w *Watcher) WaitIdle(ctx context.Context, idle, max time.Duration) bool {
	deadline := time.Now().Add(max)
	poll := idle / 5
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if time.Since(w.LastWrite()) >= idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	select {
	case <-w.stopChan:
		return nil
	default:
		close(w.stopChan)
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
