package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession(t *testing.T, compress bool) (*Session, *fakeClock, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSession(SessionOptions{
		Dir:            dir,
		DescriptorPath: filepath.Join(dir, "capture_session.json"),
		Compress:       compress,
		Logger:         zaptest.NewLogger(t),
	})
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)}
	s.now = clock.now
	return s, clock, dir
}

func TestSession_StartWritesDescriptor(t *testing.T) {
	s, clock, dir := newTestSession(t, false)
	defer s.Close()

	d, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, clock.t.UnixMilli(), d.StartTimestamp)
	assert.Contains(t, d.SessionID, "20240501_100000_")
	assert.Equal(t, s.ID(), d.SessionID)
	assert.Equal(t, s.LogFile(), d.LogFile)

	got, err := traffic.ReadSession(filepath.Join(dir, "capture_session.json"))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestSession_RecordStampsGap(t *testing.T) {
	s, clock, _ := newTestSession(t, false)
	defer s.Close()
	_, err := s.Start()
	require.NoError(t, err)

	clock.advance(2 * time.Second)
	s.MarkAction()
	clock.advance(350 * time.Millisecond)
	require.NoError(t, s.Record(traffic.Record{Host: "api.test", Category: traffic.CategoryBusiness}))

	a := s.Activity()
	assert.Equal(t, clock.t.UnixMilli(), a.LastRequest)
	assert.Equal(t, clock.t.UnixMilli(), a.LastBusiness)

	res, err := traffic.ReadLog(s.LogFile())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(350), res.Records[0].ActionGapMs)
	assert.Equal(t, s.ID(), res.Records[0].SessionID)
	assert.Equal(t, traffic.Millis(clock.t.UnixMilli()), res.Records[0].Timestamp)
}

func TestSession_StartResetsState(t *testing.T) {
	s, clock, _ := newTestSession(t, false)
	defer s.Close()
	_, err := s.Start()
	require.NoError(t, err)
	first := s.LogFile()

	require.NoError(t, s.Record(traffic.Record{Host: "a", Category: traffic.CategoryBusiness}))
	clock.advance(time.Second)

	_, err = s.Start()
	require.NoError(t, err)
	assert.NotEqual(t, first, s.LogFile())

	a := s.Activity()
	assert.Zero(t, a.LastRequest)
	assert.Zero(t, a.LastBusiness)

	_, err = os.Stat(first)
	assert.NoError(t, err, "previous log kept")
}

func TestSession_RecordBeforeStart(t *testing.T) {
	s, _, _ := newTestSession(t, false)
	assert.Error(t, s.Record(traffic.Record{Host: "a"}))
}

func TestSession_CompressOnClose(t *testing.T) {
	s, _, _ := newTestSession(t, true)
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Record(traffic.Record{Host: "a"}))
	log := s.LogFile()

	s.Close()

	_, err = os.Stat(log)
	assert.True(t, os.IsNotExist(err))
	res, err := traffic.ReadLog(log + ".zst")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestArchive_RejectsOtherFiles(t *testing.T) {
	_, err := Archive(filepath.Join(t.TempDir(), "notes.txt"))
	assert.Error(t, err)
}

func TestSession_RecordConcurrentWithStart(t *testing.T) {
	dir := t.TempDir()
	s := NewSession(SessionOptions{Dir: dir, Logger: zaptest.NewLogger(t)})
	_, err := s.Start()
	require.NoError(t, err)

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := s.Record(traffic.Record{Host: "api.test"}); err != nil {
					errs <- err
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := s.Start()
		require.NoError(t, err)
	}
	wg.Wait()
	s.Close()
	close(errs)

	for err := range errs {
		t.Errorf("record failed: %v", err)
	}

	logs, err := filepath.Glob(filepath.Join(dir, "traffic_*.jsonl"))
	require.NoError(t, err)
	total := 0
	for _, p := range logs {
		res, err := traffic.ReadLog(p)
		require.NoError(t, err)
		assert.Zero(t, res.Skipped, p)
		for i := 1; i < len(res.Records); i++ {
			assert.LessOrEqual(t, res.Records[i-1].Timestamp, res.Records[i].Timestamp, p)
		}
		total += len(res.Records)
	}
	assert.Equal(t, workers*perWorker, total)
}

type closeFailWriter struct {
	bytes.Buffer
}

func (w *closeFailWriter) Close() error { return errors.New("disk full") }

func TestCompressTo_ReturnsCloseError(t *testing.T) {
	err := compressTo(&closeFailWriter{}, strings.NewReader(`{"host":"a"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close archive")
}

func TestSession_ArchiveFailureKeepsLog(t *testing.T) {
	s, _, _ := newTestSession(t, true)
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Record(traffic.Record{Host: "a"}))
	log := s.LogFile()

	// a directory in the archive's place makes Archive fail
	require.NoError(t, os.Mkdir(log+".zst", 0o755))
	s.Close()

	res, err := traffic.ReadLog(log)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}
