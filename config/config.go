// Package config reads the server settings from the environment. An optional
// .env file in the working directory is loaded first; variables already set
// in the process environment take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/botaojia/chat/history"
)

type Config struct {
	// Workers is the number of reactor workers.
	Workers int
	// LogLevel is one of debug, info, warn, error.
	LogLevel slog.Level
	// HistorySize is the number of messages replayed to new participants.
	HistorySize int
	// MaxQueue caps outbound queues; 0 means unbounded.
	MaxQueue int
	// HTTPAddr enables the WebSocket/health/stats gateway when not empty.
	HTTPAddr string
}

// ClientConfig holds the settings the console client reads. Server settings
// in the same environment are ignored.
type ClientConfig struct {
	LogLevel slog.Level
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return FromEnv(os.Getenv)
}

// LoadClient reads .env (if present) and then the client settings from the
// environment.
func LoadClient() (ClientConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ClientConfig{}, err
	}
	return ClientFromEnv(os.Getenv)
}

func ClientFromEnv(getenv func(string) string) (ClientConfig, error) {
	level, err := parseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{LogLevel: level}, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Config{
		Workers:     1,
		HistorySize: history.DefaultSize,
		HTTPAddr:    getenv("HTTP_ADDR"),
	}

	var err error
	if c.LogLevel, err = parseLevel(getenv("LOG_LEVEL")); err != nil {
		return Config{}, err
	}
	if c.Workers, err = intVar(getenv, "WORKERS", c.Workers, 1); err != nil {
		return Config{}, err
	}
	if c.HistorySize, err = intVar(getenv, "HISTORY_SIZE", c.HistorySize, 1); err != nil {
		return Config{}, err
	}
	if c.MaxQueue, err = intVar(getenv, "MAX_QUEUE", c.MaxQueue, 0); err != nil {
		return Config{}, err
	}
	return c, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
}

func intVar(getenv func(string) string, name string, def, min int) (int, error) {
	s := getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	if v < min {
		return 0, fmt.Errorf("config: %s (%d) must be at least %d", name, v, min)
	}
	return v, nil
}
