package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/SeaRoll/bookshelf/config"
)

//go:embed config.yaml
var configData string

// loadConfig parses the file at path, or the embedded config.yaml when path is empty,
// and validates the result.
func loadConfig(path string) (config.BaseConfig, error) {
	var cfg config.BaseConfig
	var err error

	if path != "" {
		cfg, err = config.FromFile[config.BaseConfig](path)
	} else {
		cfg, err = config.FromYAML[config.BaseConfig](configData)
	}
	if err != nil {
		return cfg, err
	}

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}
