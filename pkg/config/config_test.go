package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
app:
  package: com.example.app
  activity: .LaunchActivity
crawl:
  maxDepth: 3
  coordThreshold: 25
traffic:
  tagDomains: ["dc.example.com"]
  businessDomains: ["*.example.com"]
analysis:
  maxWindowMs: 8000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", cfg.App.Package)
	assert.Equal(t, 3, cfg.Crawl.MaxDepth)
	assert.Equal(t, 25, cfg.Crawl.CoordThreshold)
	assert.Equal(t, []string{"dc.example.com"}, cfg.Traffic.TagDomains)
	assert.Equal(t, 8000, cfg.Analysis.MaxWindowMs)

	// Untouched fields keep their defaults
	assert.Equal(t, 3000, cfg.Crawl.SettleMs)
	assert.Equal(t, 2000, cfg.Analysis.FastThresholdMs)
	assert.NotEmpty(t, cfg.Crawl.PopupKeywords)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[device]
driver = "adb"
serial = "emulator-5554"

[crawl]
max_depth = 1
settle_ms = 1500

[traffic]
tag_domains = ["dc.example.com"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "adb", cfg.Device.Driver)
	assert.Equal(t, "emulator-5554", cfg.Device.Serial)
	assert.Equal(t, 1, cfg.Crawl.MaxDepth)
	assert.Equal(t, 1500, cfg.Crawl.SettleMs)
	assert.Equal(t, 30, cfg.Crawl.CoordThreshold)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `crawl: [invalid yaml`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `[crawl
max_depth = `)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", ``)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromDir(t *testing.T) {
	t.Run("yaml preferred over yml and toml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.yaml", "crawl:\n  maxDepth: 4\n")
		writeFile(t, dir, "config.yml", "crawl:\n  maxDepth: 5\n")
		writeFile(t, dir, "config.toml", "[crawl]\nmax_depth = 6\n")

		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Crawl.MaxDepth)
	})

	t.Run("toml fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.toml", "[crawl]\nmax_depth = 6\n")

		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Crawl.MaxDepth)
	})

	t.Run("earlier directory shadows later", func(t *testing.T) {
		project, home := t.TempDir(), t.TempDir()
		writeFile(t, project, "config.toml", "[crawl]\nmax_depth = 2\n")
		writeFile(t, home, "config.yaml", "crawl:\n  maxDepth: 7\n")

		cfg, err := LoadFromDir(project, home)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Crawl.MaxDepth)
	})

	t.Run("no config returns defaults", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Device.Driver = "wda"
	cfg.Crawl.MaxDepth = -1
	cfg.Crawl.BackRetries = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "device.driver")
	assert.Contains(t, err.Error(), "maxDepth")
	assert.Contains(t, err.Error(), "backRetries")

	cfg = Default()
	cfg.Capture.CACert = "ca.pem"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caCert and capture.caKey")

	cfg.Capture.CAKey = "ca.key"
	assert.NoError(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "3s", cfg.Crawl.Settle().String())
	assert.Equal(t, "1.5s", cfg.Traffic.SignalTimeout().String())
	assert.Equal(t, "300ms", cfg.Crawl.TapInterval().String())
}
