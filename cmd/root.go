// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xgtmon/internal/config"
	"github.com/Thermoquad/xgtmon/internal/logging"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

const (
	appName = "xgtmon"
	version = "1.0.0"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// Configuration sources
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "xgtmon",
	Short: "XGT Battery Telemetry Monitor",
	Long: `xgtmon - A CLI tool for decoding and publishing XGT battery telemetry.

The battery management system streams 40-byte telemetry frames over a
half-duplex UART at 9600 baud, 8 data bits, even parity, one stop bit, with
inverted line levels. xgtmon synchronizes to the stream, validates every
frame and publishes the enabled channels on a fixed interval.

Configuration is layered, lowest priority first:
  defaults, .env file, environment (XGT_*), --config YAML file, flags.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", config.DefaultPort, "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", xgt.BaudRate, "Baud rate")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the configuration layers for a command
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, err
	}

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baud = baudRate
	}
	if flags.Changed("log-level") {
		level, err := config.ParseLogLevel(logLevel)
		if err != nil {
			return config.Config{}, err
		}
		cfg.LogLevel = level
	}

	return cfg, nil
}

// newLogger builds the process logger and installs it as the default
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(cfg, w, version, appName)
	slog.SetDefault(logger)
	return logger
}
