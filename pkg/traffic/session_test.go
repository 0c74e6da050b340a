package traffic

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "capture_session.json")
	want := SessionDescriptor{SessionID: "abc", LogFile: "traffic_abc.jsonl", StartTimestamp: 42}

	require.NoError(t, WriteSession(p, want))
	got, err := ReadSession(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = os.Stat(p + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestResolveLogPath(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "/explicit.jsonl", ResolveLogPath("/explicit.jsonl", "", dir))
	assert.Equal(t, "", ResolveLogPath("", "", dir))

	older := filepath.Join(dir, "mitm_capture_20240101_000000.jsonl")
	newer := filepath.Join(dir, "traffic_20240102.jsonl")
	require.NoError(t, os.WriteFile(older, nil, 0o644))
	require.NoError(t, os.WriteFile(newer, nil, 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	assert.Equal(t, newer, ResolveLogPath("", filepath.Join(dir, "missing.json"), dir))

	session := filepath.Join(dir, "capture_session.json")
	require.NoError(t, WriteSession(session, SessionDescriptor{SessionID: "x", LogFile: "traffic_x.jsonl"}))
	assert.Equal(t, filepath.Join(dir, "traffic_x.jsonl"), ResolveLogPath("", session, dir))
}

func TestLatestCapture_None(t *testing.T) {
	_, err := LatestCapture(t.TempDir())
	assert.Error(t, err)
}
