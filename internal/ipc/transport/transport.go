package transport

import (
	"fmt"
	"log/slog"
	"net"
	"os"
)

// Listener abstracts how a local port obtains its net.Listener.
type Listener interface {
	Listen() (net.Listener, error)
}

// ListenerFunc builds the Listener for a port's socket path.
type ListenerFunc func(path string, logger *slog.Logger) Listener

func unixListenerFunc(path string, logger *slog.Logger) Listener {
	return UnixListener{Path: path, Logger: logger}
}

// UnixListener listens on a Unix domain socket path.
type UnixListener struct {
	Path   string
	Logger *slog.Logger
}

// Listen removes a stale socket left by a dead owner and binds Path.
// The caller must already hold the name's registration lock.
func (u UnixListener) Listen() (net.Listener, error) {
	if err := os.Remove(u.Path); err == nil {
		if u.Logger != nil {
			u.Logger.Debug("removed stale socket", "path", u.Path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", u.Path, err)
	}
	l, err := net.Listen("unix", u.Path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", u.Path, err)
	}
	if ul, ok := l.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}
	_ = os.Chmod(u.Path, 0o600)
	return l, nil
}
