package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/signal"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Dir            string // where traffic logs are written
	DescriptorPath string // session descriptor file; empty disables it
	Compress       bool   // zstd-archive a log when its session ends
	Logger         *zap.Logger
}

// Session is the capture state shared by the proxy handlers: the active
// log and the last action and request timestamps. All fields are guarded
// by one mutex and reset when a new session starts.
type Session struct {
	opts SessionOptions
	now  func() time.Time

	mu           sync.Mutex
	id           string
	startedAt    int64
	lastAction   int64
	lastRequest  int64
	lastBusiness int64
	rec          *Recorder
}

// NewSession returns an idle session; call Start before recording.
func NewSession(opts SessionOptions) *Session {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{opts: opts, now: time.Now}
}

// Start ends the current session, if any, and opens a fresh log. The new
// descriptor is written to DescriptorPath when configured.
func (s *Session) Start() (traffic.SessionDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishLocked()

	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return traffic.SessionDescriptor{}, fmt.Errorf("create capture dir: %w", err)
	}

	now := s.now()
	id := newSessionID(now)
	logPath := filepath.Join(s.opts.Dir, "traffic_"+id+".jsonl")
	rec, err := NewRecorder(logPath)
	if err != nil {
		return traffic.SessionDescriptor{}, err
	}

	s.id = id
	s.rec = rec
	s.startedAt = now.UnixMilli()
	s.lastAction = s.startedAt
	s.lastRequest = 0
	s.lastBusiness = 0

	d := traffic.SessionDescriptor{SessionID: id, LogFile: logPath, StartTimestamp: s.startedAt}
	if s.opts.DescriptorPath != "" {
		if err := traffic.WriteSession(s.opts.DescriptorPath, d); err != nil {
			return d, err
		}
	}
	s.opts.Logger.Info("capture session started", zap.String("session_id", id), zap.String("log", logPath))
	return d, nil
}

// ID returns the active session id, "" before Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// LogFile returns the active traffic log path.
func (s *Session) LogFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return ""
	}
	return s.rec.Path()
}

// MarkAction records that a user action happened now.
func (s *Session) MarkAction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = s.now().UnixMilli()
}

// Activity reports the last request timestamps.
func (s *Session) Activity() signal.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return signal.Activity{
		Now:          s.now().UnixMilli(),
		LastRequest:  s.lastRequest,
		LastBusiness: s.lastBusiness,
	}
}

// Record stamps rec with the session id, time and action gap, then appends
// it. Stamping and writing happen under the session lock, so log lines are
// in timestamp order and a concurrent Start cannot close the log mid-write.
func (s *Session) Record(rec traffic.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec == nil {
		return fmt.Errorf("no capture session started")
	}
	now := s.now().UnixMilli()
	rec.SessionID = s.id
	rec.Timestamp = traffic.Millis(now)
	rec.ActionGapMs = now - s.lastAction
	if err := s.rec.Write(rec); err != nil {
		return err
	}
	s.lastRequest = now
	if rec.Category == traffic.CategoryBusiness {
		s.lastBusiness = now
	}
	return nil
}

// Close ends the active session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

func (s *Session) finishLocked() {
	if s.rec == nil {
		return
	}
	path := s.rec.Path()
	count := s.rec.Count()
	if err := s.rec.Close(); err != nil {
		s.opts.Logger.Warn("close traffic log", zap.String("path", path), zap.Error(err))
	}
	s.rec = nil
	s.opts.Logger.Info("capture session ended", zap.String("session_id", s.id), zap.Int("records", count))

	if !s.opts.Compress {
		return
	}
	dest, err := Archive(path)
	if err != nil {
		s.opts.Logger.Warn("archive traffic log", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.Remove(path); err != nil {
		s.opts.Logger.Warn("remove archived log", zap.String("path", path), zap.Error(err))
	}
	s.opts.Logger.Info("traffic log archived", zap.String("archive", dest))
}

func newSessionID(t time.Time) string {
	return t.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
