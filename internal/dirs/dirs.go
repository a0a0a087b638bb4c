// Package dirs provides standard directory resolution for servelaunch.
package dirs

import (
	"os"
	"path/filepath"
)

// StateDir returns the directory for persistent state (launch records).
// Priority: $SERVELAUNCH_STATE_DIR > $XDG_STATE_HOME/servelaunch > ~/.local/state/servelaunch
func StateDir() string {
	if v := os.Getenv("SERVELAUNCH_STATE_DIR"); v != "" {
		return v
	}
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, "servelaunch")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "state", "servelaunch")
	}
	return filepath.Join(os.TempDir(), "servelaunch-state")
}

// LaunchesDir returns the directory holding one record per launched server.
func LaunchesDir() string {
	return filepath.Join(StateDir(), "launches")
}
