package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigOption is one documented configuration key.
type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns every configuration key with its default and
// meaning. Defaults, the generated config file and validation all read it.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "runtime_dir", Default: "", Comment: "Directory for port sockets and lock files; empty means $XDG_RUNTIME_DIR/msgport"},
		{Key: "send_timeout", Default: "1s", Comment: "Default time allowed to hand a message to the receiver"},
		{Key: "recv_timeout", Default: "1s", Comment: "Default time to wait for the receiver's acknowledgement"},
		{Key: "scheduler", Default: "queue", Comment: "Where listen runs callbacks: queue (worker pool) or loop (single run loop)"},
		{Key: "workers", Default: 0, Comment: "Worker pool size for the queue scheduler; 0 means GOMAXPROCS"},
		{Key: "endpoint_concurrency", Default: false, Comment: "Let callbacks of one port overlap on the queue scheduler"},
		{Key: "output", Default: "plain", Comment: "Output mode: plain, pretty, json or ndjson"},

		{Key: "log.level", Default: "warn", Comment: "Log level: debug, info, warn or error"},
		{Key: "log.format", Default: "text", Comment: "Log format: text or json"},
	}
}

// applyDefaults seeds Viper with defaults defined in GetConfigOptions.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// The provided Viper instance is mutated with defaults, file contents, and env.
func Load(ctx context.Context, v *viper.Viper) error {
	// If SetConfigFile was provided upstream it takes precedence; these
	// paths are fallbacks.
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "msgport"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "msgport"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	// Environment variables: MSGPORT_* (highest among these sources)
	v.SetEnvPrefix("msgport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "msgport", "config.toml")
}

// CheckConfigValidity reports every invalid value at once.
func CheckConfigValidity(v *viper.Viper) error {
	var problems []string

	for _, key := range []string{"send_timeout", "recv_timeout"} {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s must be a duration like 500ms or 2s", key))
		case d < 0:
			problems = append(problems, fmt.Sprintf("%s must not be negative", key))
		}
	}
	if s := strings.ToLower(v.GetString("scheduler")); s != "" && s != "queue" && s != "loop" {
		problems = append(problems, fmt.Sprintf("scheduler must be queue or loop, got %q", s))
	}
	if v.GetInt("workers") < 0 {
		problems = append(problems, "workers must not be negative")
	}
	switch strings.ToLower(v.GetString("output")) {
	case "", "plain", "pretty", "json", "ndjson":
	default:
		problems = append(problems, fmt.Sprintf("output must be plain, pretty, json or ndjson, got %q", v.GetString("output")))
	}
	switch strings.ToLower(v.GetString("log.level")) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", v.GetString("log.level")))
	}
	switch strings.ToLower(v.GetString("log.format")) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be text or json, got %q", v.GetString("log.format")))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
