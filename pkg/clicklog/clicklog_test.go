package clicklog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/screen"
)

func TestWriterAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clicks.jsonl")
	w, err := Create(path)
	require.NoError(t, err)

	rec := Record{
		Seq:          1,
		Timestamp:    1000,
		ScreenBefore: ".Main",
		ScreenAfter:  ".Detail",
		Element:      screen.Element{Label: "Open", CenterX: 10, CenterY: 20},
		PageChanged:  true,
		Reason:       ReasonPageChange,
		Validation:   Validation{PageChanged: true},
	}
	require.NoError(t, w.Append(rec))

	// flushed per record, readable before Close
	got, skipped, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])

	rec.Seq = 2
	require.NoError(t, w.Append(rec))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Error(t, w.Append(rec))
}

func TestWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"seq":1}`+"\n"), 0o644))

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Record{Seq: 2}))
	require.NoError(t, w.Close())

	got, _, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, 2, got[1].Seq)
}

func TestWriter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicks.jsonl")
	w, err := Create(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Append(Record{Seq: i}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	got, skipped, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, got, 20)
}

func TestRead_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicks.jsonl")
	content := `{"seq":1,"reason":"both"}
{broken
{"seq":2,"reason":"page_change"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, skipped, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, ReasonBoth, got[0].Reason)
}

func TestRead_Missing(t *testing.T) {
	got, skipped, err := Read(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, skipped)
}

func TestRead_Unreadable(t *testing.T) {
	_, _, err := Read(t.TempDir()) // a directory
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLogUnreadable))
	assert.Equal(t, core.ErrCategoryLog, core.CategoryOf(err))
}

func TestValidation_Valid(t *testing.T) {
	assert.False(t, Validation{}.Valid())
	assert.True(t, Validation{PageChanged: true}.Valid())
	assert.True(t, Validation{HasBusiness: true}.Valid())
	assert.True(t, Validation{HasTag: true}.Valid())
}
