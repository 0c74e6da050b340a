package traffic

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// SessionDescriptor is the small file the capture proxy writes on session
// start so other processes can find the active log.
type SessionDescriptor struct {
	SessionID      string `json:"session_id"`
	LogFile        string `json:"log_file"`
	StartTimestamp int64  `json:"start_timestamp"`
}

// ReadSession loads a session descriptor.
func ReadSession(path string) (SessionDescriptor, error) {
	var d SessionDescriptor
	data, err := os.ReadFile(path) //#nosec G304 -- descriptor path from config
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse session descriptor %s: %w", path, err)
	}
	return d, nil
}

// WriteSession writes a session descriptor atomically.
func WriteSession(path string, d SessionDescriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session descriptor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session descriptor: %w", err)
	}
	return nil
}

// capture file name patterns, newest wins
var capturePatterns = []string{
	"mitm_capture_*.jsonl",
	"traffic_*.jsonl",
	"traffic_*.jsonl.zst",
}

// ResolveLogPath picks the traffic log to read: the explicit path if set,
// else the log named by the session descriptor, else the newest capture
// file in dir. It returns "" when nothing is found.
func ResolveLogPath(explicit, sessionFile, dir string) string {
	if explicit != "" {
		return explicit
	}

	if sessionFile != "" {
		if d, err := ReadSession(sessionFile); err == nil && d.LogFile != "" {
			if filepath.IsAbs(d.LogFile) {
				return d.LogFile
			}
			return filepath.Join(filepath.Dir(sessionFile), d.LogFile)
		}
	}

	latest, err := LatestCapture(dir)
	if err != nil {
		return ""
	}
	return latest
}

// LatestCapture returns the most recently modified capture file in dir.
func LatestCapture(dir string) (string, error) {
	type candidate struct {
		path string
		mod  int64
	}
	var found []candidate

	for _, pattern := range capturePatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			found = append(found, candidate{path: m, mod: info.ModTime().UnixNano()})
		}
	}

	if len(found) == 0 {
		return "", fmt.Errorf("no capture file in %s: %w", dir, fs.ErrNotExist)
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mod != found[j].mod {
			return found[i].mod > found[j].mod
		}
		return found[i].path > found[j].path
	})
	return found[0].path, nil
}
