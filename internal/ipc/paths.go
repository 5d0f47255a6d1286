package ipc

import (
	"os"
	"path/filepath"
)

const socketName = "tarabot.sock"

// DefaultSocketPath is $XDG_RUNTIME_DIR/tarabot/tarabot.sock, or the same below
// the system temp directory when no runtime directory is set.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}

	return filepath.Join(dir, "tarabot", socketName)
}
