// Package capture implements the traffic-capture proxy: it forwards device
// traffic, appends one JSON line per request to the session log and serves
// the control endpoints the crawler uses to mark actions and poll activity.
package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// Recorder appends traffic records to a JSONL file. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	n    int
}

// NewRecorder opens path for appending.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //#nosec G304 -- capture dir from config
	if err != nil {
		return nil, fmt.Errorf("open traffic log: %w", err)
	}
	return &Recorder{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the log file path.
func (r *Recorder) Path() string {
	return r.path
}

// Count returns how many records were written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Write appends one record and flushes it so readers see it immediately.
func (r *Recorder) Write(rec traffic.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode traffic record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return fmt.Errorf("traffic log %s is closed", r.path)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	r.n++
	return nil
}

// Close flushes and closes the file. Calling it twice is harmless.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	r.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
