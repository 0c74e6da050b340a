package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/pagesource"
)

func twoScreenApp() App {
	return App{
		Start: ".Main",
		Screens: []*Screen{
			{ID: ".Main", Buttons: []Button{{Text: "Open", X: 0, Y: 0, Target: ".Detail"}, {Text: "Noop", X: 0, Y: 500}}},
			{ID: ".Detail", Buttons: []Button{{Text: "Back", X: 0, Y: 0}}},
		},
	}
}

func TestDriver_Navigation(t *testing.T) {
	ctx := context.Background()
	var landed []string
	d := New(Config{App: twoScreenApp(), OnTap: func(id string, b Button) { landed = append(landed, id) }})

	_, err := d.CurrentScreen(ctx)
	assert.True(t, errors.Is(err, core.ErrSessionNotStarted))

	require.NoError(t, d.Start(ctx))
	id, err := d.CurrentScreen(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".Main", id)

	require.NoError(t, d.Tap(ctx, 100, 540)) // Noop
	assert.Equal(t, ".Main", d.Current())

	require.NoError(t, d.Tap(ctx, 100, 40))
	assert.Equal(t, ".Detail", d.Current())
	assert.Equal(t, []string{".Main", ".Detail"}, landed)

	require.NoError(t, d.Back(ctx))
	assert.Equal(t, ".Main", d.Current())
	require.NoError(t, d.Back(ctx))
	assert.Equal(t, LauncherScreen, d.Current())

	assert.Equal(t, []string{".Main/Noop", ".Main/Open"}, d.Taps())
	assert.Equal(t, 2, d.Backs())

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	assert.Equal(t, 2, d.Stopped())
}

func TestDriver_SourceParses(t *testing.T) {
	ctx := context.Background()
	d := New(Config{App: twoScreenApp()})
	require.NoError(t, d.Start(ctx))

	xml, err := d.Source(ctx)
	require.NoError(t, err)
	root, err := pagesource.Parse(xml)
	require.NoError(t, err)
	assert.Equal(t, 3, pagesource.Count(root))
}

func TestDriver_LaunchScreensAndFailures(t *testing.T) {
	ctx := context.Background()
	d := New(Config{App: twoScreenApp(), LaunchScreens: []string{".LogoActivity"}, FailSource: map[string]bool{".Main": true}})
	require.NoError(t, d.Start(ctx))

	id, _ := d.CurrentScreen(ctx)
	assert.Equal(t, ".LogoActivity", id)
	id, _ = d.CurrentScreen(ctx)
	assert.Equal(t, ".Main", id)

	_, err := d.Source(ctx)
	assert.Error(t, err)

	bad := New(Config{App: App{Start: "missing"}})
	assert.Error(t, bad.Start(ctx))
}

func TestLoadApp(t *testing.T) {
	p := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
screens:
  - id: .Home
    buttons:
      - text: Files
        x: 0
        y: 1800
        target: .Files
  - id: .Files
    stuckBack: true
`), 0o644))

	app, err := LoadApp(p)
	require.NoError(t, err)
	assert.Equal(t, ".Home", app.Start)
	require.Len(t, app.Screens, 2)
	assert.Equal(t, ".Files", app.Screens[0].Buttons[0].Target)
	assert.True(t, app.Screens[1].StuckBack)
}
