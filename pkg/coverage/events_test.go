package coverage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEvents_Nested(t *testing.T) {
	body := `{
		"header": {"app": "demo"},
		"data": [
			{"event": "page_view", "params": {"page": "home", "count": 3}, "local_time_ms": 1700000000000, "session_id": "abc"},
			{"wrapper": {"event": "click", "params": "{\"btn\":\"buy\",\"price\":9.5}"}},
			{"event": "share", "params": "not json"}
		]
	}`
	root, err := ParseTree([]byte(body))
	require.NoError(t, err)

	events := ExtractEvents(root)
	require.Len(t, events, 3)

	assert.Equal(t, "page_view", events[0].Name)
	assert.Equal(t, "data[0]", events[0].Path)
	assert.Equal(t, int64(1700000000000), events[0].LocalTimeMs)
	assert.Equal(t, "abc", events[0].SessionID)
	require.Len(t, events[0].Params, 2)
	assert.Equal(t, "count", events[0].Params[0].Key)
	assert.Equal(t, "integer", events[0].Params[0].Value.TypeName())

	assert.Equal(t, "click", events[1].Name)
	assert.Equal(t, "data[1].wrapper", events[1].Path)
	require.Len(t, events[1].Params, 2)
	assert.Equal(t, "float", events[1].Params[1].Value.TypeName())

	assert.Equal(t, "share", events[2].Name)
	require.Len(t, events[2].Params, 1)
	assert.Equal(t, "_raw", events[2].Params[0].Key)
	assert.Equal(t, "not json", events[2].Params[0].Value.String())
}

func TestExtractEvents_DeepNesting(t *testing.T) {
	depth := 5000
	body := strings.Repeat(`{"a":`, depth) + `{"event":"deep"}` + strings.Repeat(`}`, depth)
	root, err := ParseTree([]byte(body))
	require.NoError(t, err)

	events := ExtractEvents(root)
	require.Len(t, events, 1)
	assert.Equal(t, "deep", events[0].Name)
}

func TestExtractEvents_None(t *testing.T) {
	root, err := ParseTree([]byte(`[1, "two", {"name": "x"}]`))
	require.NoError(t, err)
	assert.Empty(t, ExtractEvents(root))
	assert.Empty(t, ExtractEvents(nil))
}

func TestNodeTypeName(t *testing.T) {
	root, err := ParseTree([]byte(`{"b": true, "f": 1.5, "i": 2, "n": null, "o": {}, "s": "x"}`))
	require.NoError(t, err)

	want := map[string]string{"b": "boolean", "f": "float", "i": "integer", "n": "null", "o": "object", "s": "string"}
	for key, typ := range want {
		n, ok := root.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, typ, n.TypeName(), key)
	}
	_, ok := root.Get("missing")
	assert.False(t, ok)
}
