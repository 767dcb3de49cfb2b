// Package config loads terminal server settings from HACKTERM_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/hack-terminal/internal/difficulty"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8077"
	defaultDBPath          = "hack_terminal.db"
	defaultTick            = 100 * time.Millisecond
	defaultResultDelay     = 2 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultLogLevel        = slog.LevelInfo
	defaultKeyringService  = "hack-terminal"
	defaultTitle           = "MOSH TERMINAL"
)

// Config controls the terminal server.
type Config struct {
	HTTPAddr        string
	DBPath          string
	Difficulty      decimal.Decimal
	Tick            time.Duration
	ResultDelay     time.Duration
	ShutdownTimeout time.Duration
	MacroDir        string
	LogLevel        slog.Level
	KeyringService  string
	TokenFallback   string
	Title           string
}

// Load reads runtime configuration from environment variables.
func Load() (Config, error) {
	cfg := Default()

	if addr := strings.TrimSpace(os.Getenv("HACKTERM_HTTP_ADDR")); addr != "" {
		cfg.HTTPAddr = addr
	}
	if path := strings.TrimSpace(os.Getenv("HACKTERM_DB_PATH")); path != "" {
		cfg.DBPath = path
	}
	if mult := strings.TrimSpace(os.Getenv("HACKTERM_DIFFICULTY")); mult != "" {
		parsed, err := difficulty.ParseMultiplier(mult)
		if err != nil {
			return Config{}, fmt.Errorf("parse HACKTERM_DIFFICULTY: %w", err)
		}
		cfg.Difficulty = parsed
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"HACKTERM_TICK", &cfg.Tick},
		{"HACKTERM_RESULT_DELAY", &cfg.ResultDelay},
		{"HACKTERM_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(os.Getenv(d.env))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.env, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("parse %s: value must be > 0", d.env)
		}
		*d.dst = parsed
	}

	if dir := strings.TrimSpace(os.Getenv("HACKTERM_MACRO_DIR")); dir != "" {
		cfg.MacroDir = dir
	}
	if level := strings.TrimSpace(os.Getenv("HACKTERM_LOG_LEVEL")); level != "" {
		parsed, err := parseLogLevel(level)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = parsed
	}
	if service := strings.TrimSpace(os.Getenv("HACKTERM_KEYRING_SERVICE")); service != "" {
		cfg.KeyringService = service
	}
	if path := strings.TrimSpace(os.Getenv("HACKTERM_TOKEN_FALLBACK")); path != "" {
		cfg.TokenFallback = path
	}
	if title := strings.TrimSpace(os.Getenv("HACKTERM_TITLE")); title != "" {
		cfg.Title = title
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Default() Config {
	return Config{
		HTTPAddr:        defaultHTTPAddr,
		DBPath:          defaultDBPath,
		Difficulty:      decimal.NewFromInt(1),
		Tick:            defaultTick,
		ResultDelay:     defaultResultDelay,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
		KeyringService:  defaultKeyringService,
		Title:           defaultTitle,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("validate config: HACKTERM_HTTP_ADDR is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("validate config: HACKTERM_DB_PATH is required")
	}
	if !c.Difficulty.IsPositive() {
		return errors.New("validate config: HACKTERM_DIFFICULTY must be > 0")
	}
	if c.Tick <= 0 || c.ResultDelay <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("validate config: durations must be > 0")
	}

	switch c.LogLevel {
	case slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError:
	default:
		return fmt.Errorf("validate config: unsupported HACKTERM_LOG_LEVEL %q", c.LogLevel.String())
	}
	return nil
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(
			"parse HACKTERM_LOG_LEVEL: unsupported value %q (allowed: %q, %q, %q, %q)",
			input,
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}
}
