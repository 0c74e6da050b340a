package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	envHome    = "TAGSCOUT_HOME"
	envXDGData = "XDG_DATA_HOME"
)

var configNames = []string{"config.yaml", "config.yml", "config.toml"}

// Workspace is where tagscout keeps state that is not named on the command
// line: the user config, timestamped report folders and capture sessions.
type Workspace struct {
	Home     string
	Reports  string
	Captures string
}

var (
	wsOnce sync.Once
	ws     Workspace
)

// DefaultWorkspace returns the workspace for this process. The home is
// resolved once:
//  1. $TAGSCOUT_HOME
//  2. $XDG_DATA_HOME/tagscout
//  3. ~/.tagscout
//  4. the working directory
func DefaultWorkspace() Workspace {
	wsOnce.Do(func() {
		ws = NewWorkspace(resolveHome(os.Getenv, os.UserHomeDir))
	})
	return ws
}

// ResetWorkspace drops the cached workspace so the next call re-reads the
// environment.
func ResetWorkspace() {
	wsOnce = sync.Once{}
	ws = Workspace{}
}

// NewWorkspace lays out a workspace rooted at home.
func NewWorkspace(home string) Workspace {
	return Workspace{
		Home:     home,
		Reports:  filepath.Join(home, "reports"),
		Captures: filepath.Join(home, "captures"),
	}
}

// RunDir is the report folder for a run started at t.
func (w Workspace) RunDir(t time.Time) string {
	return filepath.Join(w.Reports, t.Format("2006-01-02_15-04-05"))
}

// ConfigDirs lists where a config file is looked for: the working directory
// first, so a project config shadows the user one.
func (w Workspace) ConfigDirs() []string {
	if w.Home == "." {
		return []string{"."}
	}
	return []string{".", w.Home}
}

// FindConfig returns the first config.yaml, config.yml or config.toml in dirs.
func FindConfig(dirs ...string) string {
	for _, dir := range dirs {
		for _, name := range configNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

func resolveHome(getenv func(string) string, userHome func() (string, error)) string {
	if h := getenv(envHome); h != "" {
		return h
	}
	if d := getenv(envXDGData); d != "" {
		return filepath.Join(d, "tagscout")
	}
	if h, err := userHome(); err == nil && h != "" {
		return filepath.Join(h, ".tagscout")
	}
	return "."
}
