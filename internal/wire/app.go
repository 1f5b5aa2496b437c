package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mithrel/msgport/internal/ipc"
	"github.com/mithrel/msgport/internal/ipc/transport"
)

// App aggregates the major services for easy injection.
type App struct {
	Cfg      *viper.Viper
	Log      *slog.Logger
	Facility *transport.UnixFacility
}

// BuildApp wires dependencies with the provided config. Logs go to stderr
// so command output on stdout stays machine-readable.
func BuildApp(ctx context.Context, v *viper.Viper) (*App, error) {
	return BuildAppWithLogOutput(ctx, v, os.Stderr)
}

// BuildAppWithLogOutput is BuildApp with the log destination chosen by the
// caller.
func BuildAppWithLogOutput(ctx context.Context, v *viper.Viper, w io.Writer) (*App, error) {
	logger, err := NewLogger(w, v.GetString("log.level"), v.GetString("log.format"))
	if err != nil {
		return nil, err
	}
	dir, err := ipc.RuntimeDir(v.GetString("runtime_dir"))
	if err != nil {
		return nil, fmt.Errorf("resolving runtime dir: %w", err)
	}
	return &App{
		Cfg:      v,
		Log:      logger,
		Facility: transport.NewUnixFacility(dir, logger),
	}, nil
}

// NewLogger builds a slog logger writing to w. Empty level and format mean
// warn and text.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "", "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
