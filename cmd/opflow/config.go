package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/rendis/opflow/internal/logging"
)

// Config holds the opflow CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	LogLevel      string `json:"log_level" env:"OPFLOW_LOG_LEVEL"`
	LogFormat     string `json:"log_format" env:"OPFLOW_LOG_FORMAT"`
	ParallelLimit int    `json:"parallel_limit" env:"OPFLOW_PARALLEL_LIMIT"`
	OTelEndpoint  string `json:"otel_endpoint" env:"OPFLOW_OTEL_ENDPOINT"`
	HistoryDB     string `json:"history_db" env:"OPFLOW_HISTORY_DB"` // empty disables run history
}

func defaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func opflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opflow"
	}
	return filepath.Join(home, ".opflow")
}

func settingsPath() string {
	return filepath.Join(opflowDir(), "settings.json")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), nil)
}

// loadConfigFrom layers the settings file at path and the environment over
// the defaults. A nil environ reads the process environment.
func loadConfigFrom(path string, environ map[string]string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Layer 3: env vars override.
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, c.LogFormat)
}
