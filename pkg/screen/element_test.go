package screen

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/pagesource"
)

const homeHierarchy = `<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]" clickable="false">
    <node class="android.widget.LinearLayout" resource-id="com.app:id/card" bounds="[0,100][1080,400]" clickable="true">
      <node class="android.widget.TextView" text="Inner" bounds="[10,110][300,150]" clickable="true"/>
    </node>
    <node class="android.widget.ImageButton" content-desc="Settings" bounds="[900,20][1000,80]" clickable="true"/>
    <node class="android.widget.ImageView" resource-id="com.app:id/avatar" bounds="[20,20][100,80]" clickable="true"/>
    <node class="android.view.View" bounds="[500,1800][600,1900]" clickable="true"/>
    <node class="android.widget.Button" text="Disabled" bounds="[100,600][300,680]" clickable="true" enabled="false"/>
    <node class="android.widget.Button" text="Zero" bounds="[100,700][100,700]" clickable="true"/>
  </node>
</hierarchy>`

func TestExtract(t *testing.T) {
	root, err := pagesource.Parse(homeHierarchy)
	require.NoError(t, err)

	elements := Extract(root, 30)
	labels := make([]string, len(elements))
	for i, e := range elements {
		labels[i] = e.Label
	}

	// card is kept (outermost), Inner is dropped (clickable ancestor),
	// disabled and zero-area nodes are skipped.
	assert.Equal(t, []string{"card", "Settings", "avatar", "<View>"}, labels)

	card := elements[0]
	assert.Equal(t, 540, card.CenterX)
	assert.Equal(t, 250, card.CenterY)
	assert.Equal(t, 1, card.Depth)
}

func TestExtract_NilRoot(t *testing.T) {
	assert.Empty(t, Extract(nil, 30))
}

func TestDedup_KeepsElementWithText(t *testing.T) {
	empty := Element{Class: "android.view.View", Bounds: core.Bounds{X: 100, Y: 100, Width: 100, Height: 40}, CenterX: 150, CenterY: 120, Depth: 2}
	withText := Element{Class: "android.widget.Button", Text: "确定", Bounds: core.Bounds{X: 103, Y: 104, Width: 100, Height: 40}, CenterX: 153, CenterY: 124, Depth: 3}

	// distance between centers is 5
	got := Dedup([]Element{empty, withText}, 30)
	require.Len(t, got, 1)
	assert.Equal(t, "确定", got[0].Text)

	got = Dedup([]Element{withText, empty}, 30)
	require.Len(t, got, 1)
	assert.Equal(t, "确定", got[0].Text)
}

func TestDedup_Ranking(t *testing.T) {
	tests := []struct {
		name string
		a, b Element
		want Element
	}{
		{
			name: "resource id beats nothing",
			a:    Element{CenterX: 10, CenterY: 10, Depth: 1},
			b:    Element{CenterX: 12, CenterY: 10, ResourceID: "com.app:id/x", Depth: 4},
			want: Element{CenterX: 12, CenterY: 10, ResourceID: "com.app:id/x", Depth: 4},
		},
		{
			name: "shallower wins on equal information",
			a:    Element{CenterX: 10, CenterY: 10, Depth: 5},
			b:    Element{CenterX: 12, CenterY: 10, Depth: 2},
			want: Element{CenterX: 12, CenterY: 10, Depth: 2},
		},
		{
			name: "tie keeps first",
			a:    Element{CenterX: 10, CenterY: 10, Depth: 2, Class: "first"},
			b:    Element{CenterX: 12, CenterY: 10, Depth: 2, Class: "second"},
			want: Element{CenterX: 10, CenterY: 10, Depth: 2, Class: "first"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup([]Element{tt.a, tt.b}, 30)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestDedup_FarApartKept(t *testing.T) {
	a := Element{CenterX: 0, CenterY: 0}
	b := Element{CenterX: 100, CenterY: 0}
	assert.Len(t, Dedup([]Element{a, b}, 30), 2)
	assert.Len(t, Dedup([]Element{a, a}, 0), 2, "threshold 0 disables dedup")
}

func TestDedup_ChainedReplacementConverges(t *testing.T) {
	// c replaces a and lands within range of b; a second pass merges them.
	a := Element{CenterX: 0, CenterY: 0}
	b := Element{CenterX: 40, CenterY: 0}
	c := Element{CenterX: 20, CenterY: 0, Text: "c"}

	got := Dedup([]Element{a, b, c}, 30)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Text)
}

func buildElements(xs, ys []int, texts []bool) []Element {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	elems := make([]Element, n)
	for i := 0; i < n; i++ {
		e := Element{CenterX: xs[i], CenterY: ys[i], Depth: i % 4}
		if i < len(texts) && texts[i] {
			e.Text = fmt.Sprintf("t%d", i)
		}
		e.Label = displayLabel(e)
		elems[i] = e
	}
	return elems
}

func TestDedupIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Dedup(Dedup(x)) == Dedup(x)", prop.ForAll(
		func(xs, ys []int, texts []bool) bool {
			elems := buildElements(xs, ys, texts)
			once := Dedup(elems, 30)
			twice := Dedup(once, 30)
			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(gen.IntRange(0, 300)),
		gen.SliceOf(gen.IntRange(0, 300)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestElementSignature(t *testing.T) {
	a := Element{CenterX: 10, CenterY: 20, Text: "OK", ResourceID: "id/ok", Label: "OK"}
	b := a
	b.Label = "different label"
	assert.Equal(t, a.Signature(), b.Signature(), "label is not part of identity")

	b.CenterY = 21
	assert.NotEqual(t, a.Signature(), b.Signature())
}
