package ipc

import (
	"os"
	"path/filepath"

	"github.com/mithrel/msgport/pkg/api"
)

// RuntimeDir returns the directory holding port sockets and lock files and
// ensures it exists with private permissions. A non-empty override wins;
// otherwise $XDG_RUNTIME_DIR/msgport, then ~/.local/share/msgport/run.
func RuntimeDir(override string) (string, error) {
	dir := override
	if dir == "" {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			dir = filepath.Join(xdg, "msgport")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".local", "share", "msgport", "run")
		}
	}
	// Expand ~ for convenience
	if len(dir) > 0 && dir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath is where the port registered under name listens.
func SocketPath(dir, name string) string {
	return filepath.Join(dir, api.Stem(name)+".sock")
}

// LockPath is the registration lock for name.
func LockPath(dir, name string) string {
	return filepath.Join(dir, api.Stem(name)+".lock")
}
