// Package paths resolves where this module reads and writes its on-disk
// state: event-store JSONL streams and rotated log files.
package paths

import (
	"os"
	"path/filepath"
)

// StateDir returns the directory event-store streams and logs live under.
// Defaults to <user_home>/.cursor per the deployment convention this
// ecosystem already assumes; overridable with MCPAUDIT_STATE_HOME for
// tests and non-standard deployments.
func StateDir() (string, error) {
	if dir := os.Getenv("MCPAUDIT_STATE_HOME"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".cursor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// StreamFile returns the path of the JSONL file backing the named
// event-store stream.
func StreamFile(stateDir, stream string) string {
	return filepath.Join(stateDir, stream+".jsonl")
}

// LogDir returns the directory rotated log files are written to. Currently
// the same directory as StateDir, but kept distinct so callers don't
// conflate "event data" with "operational logs".
func LogDir() (string, error) {
	return StateDir()
}
