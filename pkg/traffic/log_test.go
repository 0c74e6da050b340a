package traffic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

const sampleLog = `{"session_id":"s1","timestamp":1000,"host":"dc.cmicapm.com","method":"POST","url":"https://dc.cmicapm.com/c","path":"/c","action_gap_ms":120,"body":{"event":"click"}}
not json
{"session_id":"s1","timestamp":2000,"host":"api.chinamobile.com","method":"GET","url":"https://api.chinamobile.com/x","path":"/x","action_gap_ms":900}

{"session_id":"s1","timestamp":3000,"host":"img.cdn.net","method":"GET","url":"https://img.cdn.net/a","path":"/a"}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReadLog_Lines(t *testing.T) {
	p := writeFile(t, "traffic.jsonl", sampleLog)

	res, err := ReadLog(p)
	require.NoError(t, err)
	assert.False(t, res.Missing)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Records, 3)

	assert.Equal(t, Millis(1000), res.Records[0].Timestamp)
	assert.Equal(t, int64(120), res.Records[0].ActionGapMs)
	assert.JSONEq(t, `{"event":"click"}`, string(res.Records[0].Body))
	assert.Equal(t, 0, res.Records[0].Seq)
	assert.Equal(t, 2, res.Records[2].Seq)
}

func TestReadLog_Missing(t *testing.T) {
	res, err := ReadLog(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.True(t, res.Missing)
	assert.Empty(t, res.Records)
}

func TestReadLog_Empty(t *testing.T) {
	res, err := ReadLog(writeFile(t, "empty.jsonl", "\n\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Records)
}

func TestReadLog_Array(t *testing.T) {
	p := writeFile(t, "traffic.json", `[
  {"timestamp": 5, "host": "a"},
  "bogus",
  {"timestamp": 6, "host": "b"}
]`)

	res, err := ReadLog(p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "b", res.Records[1].Host)
}

func TestReadLog_Unreadable(t *testing.T) {
	_, err := ReadLog(t.TempDir()) // a directory opens but cannot be read
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLogUnreadable))

	_, err = ReadLog(writeFile(t, "bad.jsonl.zst", "not zstd"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLogUnreadable))
}

func TestReadLog_Zstd(t *testing.T) {
	p := filepath.Join(t.TempDir(), "traffic_1.jsonl.zst")
	f, err := os.Create(p)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(sampleLog))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	res, err := ReadLog(p)
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, 1, res.Skipped)
}

func TestMillis_Unmarshal(t *testing.T) {
	iso := time.Date(2024, 5, 1, 10, 0, 0, 500*int(time.Millisecond), time.Local)

	tests := []struct {
		in   string
		want Millis
	}{
		{`1714550400123`, 1714550400123},
		{`1714550400.5`, 1714550400500},
		{`1.7145504005e9`, 1714550400500},
		{`500`, 500},
		{`2200`, 2200},
		{`0`, 0},
		{`"1714550400123"`, 1714550400123},
		{`"2024-05-01T10:00:00.500000"`, Millis(iso.UnixMilli())},
		{`null`, 0},
	}
	for _, tt := range tests {
		var m Millis
		require.NoError(t, m.UnmarshalJSON([]byte(tt.in)), tt.in)
		assert.Equal(t, tt.want, m, tt.in)
	}

	var m Millis
	assert.Error(t, m.UnmarshalJSON([]byte(`"yesterday"`)))
}
