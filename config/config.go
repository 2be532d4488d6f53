// Package config loads critique's runtime settings from defaults, optional
// YAML/JSON/TOML files and CRITIQUE_* environment variables, in that order of
// precedence (environment wins).
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jinzhu/configor"

	"github.com/Skryldev/critique/db"
)

type Config struct {
	DB  DBConfig  `yaml:"db" json:"db"`
	Log LogConfig `yaml:"log" json:"log"`
}

type DBConfig struct {
	Path string `yaml:"path" json:"path" default:"critique.db" env:"CRITIQUE_DB_PATH"`
	// ForeignKeys is on unless explicitly set to false.
	ForeignKeys      *bool  `yaml:"foreign_keys" json:"foreign_keys" env:"CRITIQUE_DB_FOREIGN_KEYS"`
	BusyTimeoutMS    int    `yaml:"busy_timeout_ms" json:"busy_timeout_ms" default:"5000" env:"CRITIQUE_DB_BUSY_TIMEOUT_MS"`
	DefaultTimeoutMS int    `yaml:"default_timeout_ms" json:"default_timeout_ms" env:"CRITIQUE_DB_DEFAULT_TIMEOUT_MS"`
	SlowQueryMS      int    `yaml:"slow_query_ms" json:"slow_query_ms" default:"200" env:"CRITIQUE_DB_SLOW_QUERY_MS"`
	LogArgs          bool   `yaml:"log_args" json:"log_args" env:"CRITIQUE_DB_LOG_ARGS"`
	SchemaScript     string `yaml:"schema_script" json:"schema_script" env:"CRITIQUE_DB_SCHEMA_SCRIPT"`
	DataScript       string `yaml:"data_script" json:"data_script" env:"CRITIQUE_DB_DATA_SCRIPT"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" default:"info" env:"CRITIQUE_LOG_LEVEL"`
	Format string `yaml:"format" json:"format" default:"text" env:"CRITIQUE_LOG_FORMAT"`
}

// Load reads files in order on top of the defaults and applies environment
// overrides last. Missing files are skipped.
func Load(files ...string) (*Config, error) {
	var cfg Config
	if err := configor.New(&configor.Config{ENVPrefix: "CRITIQUE"}).Load(&cfg, files...); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	if cfg.DB.Path == "" {
		return nil, fmt.Errorf("config: db.path must not be empty")
	}
	return &cfg, nil
}

// ForeignKeysOn resolves the ForeignKeys setting.
func (c DBConfig) ForeignKeysOn() bool {
	return c.ForeignKeys == nil || *c.ForeignKeys
}

// StoreConfig builds the store configuration. A statement log hook driven by
// SlowQueryMS and LogArgs is installed ahead of extra.
func (c DBConfig) StoreConfig(logger *slog.Logger, extra ...db.Hook) db.Config {
	hooks := append([]db.Hook{db.NewLogHook(db.LogHookConfig{
		Logger:             logger,
		SlowQueryThreshold: ms(c.SlowQueryMS),
		LogArgs:            c.LogArgs,
	})}, extra...)

	return db.Config{
		Path:           c.Path,
		ForeignKeys:    c.ForeignKeysOn(),
		BusyTimeout:    ms(c.BusyTimeoutMS),
		DefaultTimeout: ms(c.DefaultTimeoutMS),
		Hooks:          hooks,
		Logger:         logger,
	}
}

// NewLogger returns a slog logger writing to w in the configured format
// ("text" or "json") at the configured level.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.Format)
	}
}

func ms(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
