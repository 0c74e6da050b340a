// Package clicklog persists effective interactions as line-delimited JSON.
package clicklog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/screen"
)

// Reason explains why an interaction was judged effective.
type Reason string

const (
	ReasonBoth            Reason = "both"
	ReasonBusinessRequest Reason = "business_request"
	ReasonPageChange      Reason = "page_change"
	ReasonNoEffect        Reason = "no_effect"
)

// Counts holds request counts observed after an interaction.
type Counts struct {
	Business int `json:"business"`
	Tag      int `json:"tag"`
}

// Validation records the independent signals that made a click valid for
// coverage attribution.
type Validation struct {
	PageChanged bool `json:"page_changed"`
	HasBusiness bool `json:"has_business"`
	HasTag      bool `json:"has_tag"`
}

// Valid reports whether any signal fired.
func (v Validation) Valid() bool {
	return v.PageChanged || v.HasBusiness || v.HasTag
}

// Request is the abbreviated form of a request stored with an interaction.
type Request struct {
	Category  string `json:"type"`
	Method    string `json:"method"`
	Host      string `json:"host"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// Record is one effective interaction. Immutable once written.
type Record struct {
	Seq               int            `json:"seq"`
	RunID             string         `json:"run_id,omitempty"`
	Timestamp         int64          `json:"timestamp"` // unix ms of the tap
	Depth             int            `json:"depth"`
	ScreenBefore      string         `json:"screen_before"`
	ScreenAfter       string         `json:"screen_after"`
	FingerprintBefore string         `json:"fingerprint_before"`
	FingerprintAfter  string         `json:"fingerprint_after"`
	Element           screen.Element `json:"element"`
	PageChanged       bool           `json:"page_changed"`
	Reason            Reason         `json:"reason"`
	Requests          Counts         `json:"request_counts"`
	RequestDetails    []Request      `json:"requests,omitempty"`
	Validation        Validation     `json:"validation"`
}

// Writer appends records to a click log. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	n    int
}

// Create opens path for appending, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create click log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //#nosec G304 -- configured output path
	if err != nil {
		return nil, fmt.Errorf("open click log: %w", err)
	}
	return &Writer{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Count returns how many records this writer appended.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Append writes one record and flushes it to disk.
func (w *Writer) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode click record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return fmt.Errorf("click log %s is closed", w.path)
	}
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write click record: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush click record: %w", err)
	}
	w.n++
	return nil
}

// Close flushes and closes the log.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Read loads a click log. Malformed lines are skipped and counted. A missing
// file yields no records and no error.
func Read(path string) ([]Record, int, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided log file
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, core.ErrLogUnreadable.WithCause(fmt.Errorf("read click log: %w", err))
	}

	var records []Record
	skipped := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}
