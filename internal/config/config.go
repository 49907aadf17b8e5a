// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the monitor configuration from defaults, a .env file,
// the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	dotenv "github.com/joho/godotenv"

	"github.com/Thermoquad/xgtmon/pkg/channel"
	"github.com/Thermoquad/xgtmon/pkg/scheduler"
	"github.com/Thermoquad/xgtmon/pkg/sink"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

// Defaults
const (
	DefaultPort    = "/dev/ttyUSB0"
	DefaultEnvFile = ".env"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	Port           string
	Baud           int
	UpdateInterval time.Duration
	Output         string

	// Channels lists the enabled channels in publication order
	Channels []channel.Request
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		AppEnv:         "dev",
		LogLevel:       slog.LevelInfo,
		Port:           DefaultPort,
		Baud:           xgt.BaudRate,
		UpdateInterval: scheduler.DefaultUpdateInterval,
		Output:         sink.FormatLog,
	}
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. An empty path loads DefaultEnvFile if it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := dotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	cfg := Default()

	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		switch appEnv {
		case "dev", "prod":
		default:
			return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
		}
		cfg.AppEnv = appEnv
	}

	if s := strings.TrimSpace(os.Getenv("LOG_LEVEL")); s != "" {
		level, err := ParseLogLevel(s)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = level
	}

	if port := strings.TrimSpace(os.Getenv("XGT_PORT")); port != "" {
		cfg.Port = port
	}

	if s := strings.TrimSpace(os.Getenv("XGT_BAUD")); s != "" {
		baud, err := strconv.Atoi(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid XGT_BAUD %q: %w", s, err)
		}
		cfg.Baud = baud
	}

	if s := strings.TrimSpace(os.Getenv("XGT_UPDATE_INTERVAL")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid XGT_UPDATE_INTERVAL %q: %w", s, err)
		}
		cfg.UpdateInterval = d
	}

	if s := strings.TrimSpace(os.Getenv("XGT_CHANNELS")); s != "" {
		cfg.Channels = ParseChannelList(s)
	}

	if s := strings.TrimSpace(os.Getenv("XGT_OUTPUT")); s != "" {
		cfg.Output = strings.ToLower(s)
	}

	return cfg, nil
}

// ParseChannelList splits a comma separated list of channel identifiers
func ParseChannelList(s string) []channel.Request {
	var reqs []channel.Request
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		reqs = append(reqs, channel.Request{ID: id})
	}
	return reqs
}

// ParseLogLevel converts a level name to a slog level
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

// Validate checks the configuration and the enabled channels
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("serial port is required"))
	}
	if c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Baud))
	}
	if c.UpdateInterval <= 0 {
		errs = append(errs, fmt.Errorf("update interval must be positive, got %s", c.UpdateInterval))
	}
	if !validOutput(c.Output) {
		errs = append(errs, fmt.Errorf("unknown output format %q (valid: %s)", c.Output, strings.Join(sink.Formats, ", ")))
	}
	if _, err := channel.Build(c.Channels); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Registry builds the channel registry for the enabled channels
func (c Config) Registry() (*channel.Registry, error) {
	return channel.Build(c.Channels)
}

func validOutput(format string) bool {
	for _, f := range sink.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
