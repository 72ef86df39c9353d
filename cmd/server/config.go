package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"webterm/internal/backend"
	"webterm/internal/console"
)

// Config holds server configuration. Values come from flags, then
// WEBTERM_* environment variables, then an optional config file.
type Config struct {
	Port           int
	StaticDir      string
	BackendURL     string
	MaxSessions    int
	PollInterval   time.Duration
	ExecuteTimeout time.Duration
	HistoryLimit   int
	DiagnosticsCap int
	LogLevel       string
	LogFormat      string
	WatchStatic    bool
}

func registerFlags(fs *pflag.FlagSet) {
	fs.Int("port", 8420, "HTTP listen port")
	fs.String("static-dir", "./frontend/dist", "directory of console web assets")
	fs.String("backend-url", backend.DefaultBaseURL, "base URL of the execution service")
	fs.Int("max-sessions", 10, "maximum concurrent console sessions")
	fs.Duration("poll-interval", console.DefaultPollInterval, "health and metrics poll interval")
	fs.Duration("execute-timeout", console.DefaultExecuteTimeout, "per-command timeout, 0 to disable")
	fs.Int("history-limit", console.DefaultHistoryLimit, "commands kept for recall per session")
	fs.Int("diagnostics-capacity", console.DefaultDiagnosticsCapacity, "failure records kept per session")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	fs.Bool("watch-static", false, "notify browsers to reload when static assets change")
	fs.String("config", "", "optional config file (yaml, json or toml)")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBTERM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:           v.GetInt("port"),
		StaticDir:      v.GetString("static-dir"),
		BackendURL:     v.GetString("backend-url"),
		MaxSessions:    v.GetInt("max-sessions"),
		PollInterval:   v.GetDuration("poll-interval"),
		ExecuteTimeout: v.GetDuration("execute-timeout"),
		HistoryLimit:   v.GetInt("history-limit"),
		DiagnosticsCap: v.GetInt("diagnostics-capacity"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		WatchStatic:    v.GetBool("watch-static"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxSessions <= 0 {
		return cfg, fmt.Errorf("max-sessions must be positive, got %d", cfg.MaxSessions)
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll-interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.ExecuteTimeout < 0 {
		return cfg, fmt.Errorf("execute-timeout must not be negative, got %s", cfg.ExecuteTimeout)
	}
	if cfg.HistoryLimit <= 0 {
		return cfg, fmt.Errorf("history-limit must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.DiagnosticsCap <= 0 {
		return cfg, fmt.Errorf("diagnostics-capacity must be positive, got %d", cfg.DiagnosticsCap)
	}
	if cfg.BackendURL == "" {
		return cfg, fmt.Errorf("backend-url is required")
	}
	return cfg, nil
}

func (c Config) consoleOptions() []console.Option {
	return []console.Option{
		console.WithPollInterval(c.PollInterval),
		console.WithExecuteTimeout(c.ExecuteTimeout),
		console.WithHistoryLimit(c.HistoryLimit),
		console.WithDiagnosticsCapacity(c.DiagnosticsCap),
	}
}
