// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/xgtmon/internal/config"
	"github.com/Thermoquad/xgtmon/internal/logging"
	"github.com/Thermoquad/xgtmon/pkg/scheduler"
	"github.com/Thermoquad/xgtmon/pkg/sink"
	"github.com/Thermoquad/xgtmon/pkg/transport"
)

var (
	monitorTUI      bool
	monitorOutput   string
	monitorInterval time.Duration
	monitorChannels []string
	monitorLogFile  string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode telemetry and publish enabled channels",
	Long: `Poll the BMS stream every update interval and publish the enabled channels.

Each firing drains the bytes received since the previous one, decodes every
complete frame, installs the newest valid snapshot and publishes one value per
enabled channel. Firings without a valid frame publish nothing.

Output formats:
  log   structured log records on stderr (default)
  json  one JSON object per value on stdout
  cbor  a CBOR sequence on stdout

With --tui a live dashboard is shown instead. Logs are then written to
--log-file, or discarded.

Channels: ` + strings.Join(channelHelp(), ", "),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Show a live dashboard (requires a terminal)")
	monitorCmd.Flags().StringVarP(&monitorOutput, "output", "o", "", "Output format (log, json, cbor)")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Update interval (default 10s)")
	monitorCmd.Flags().StringSliceVar(&monitorChannels, "channels", nil, "Channels to enable (comma separated)")
	monitorCmd.Flags().StringVar(&monitorLogFile, "log-file", "", "Log file for --tui mode")
}

func channelHelp() []string {
	return []string{
		"battery_voltage", "battery_temperature", "battery_charge", "battery_health",
		"num_charges", "cell_size", "parallel_count",
		"min_cell_voltage", "max_cell_voltage", "cell_divergence",
		"cell_voltage_1 .. cell_voltage_10",
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output = strings.ToLower(monitorOutput)
	}
	if flags.Changed("interval") {
		cfg.UpdateInterval = monitorInterval
	}
	if flags.Changed("channels") {
		cfg.Channels = config.ParseChannelList(strings.Join(monitorChannels, ","))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	if monitorTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("--tui requires a terminal on stdout")
	}

	var logger *slog.Logger
	if monitorTUI {
		logger, err = tuiLogger(cfg)
		if err != nil {
			return err
		}
	} else {
		logger = newLogger(cfg, os.Stderr)
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}

	reader := transport.NewReader(conn, transport.Options{Logger: logger})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := scheduler.Options{
		UpdateInterval: cfg.UpdateInterval,
		Logger:         logger,
	}

	if monitorTUI {
		return runMonitorTUI(ctx, reader, registry, opts, connInfo)
	}

	out, err := sink.New(cfg.Output, os.Stdout, logger)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(reader, registry, out, opts)
	if err != nil {
		return err
	}
	logger.Info("connected", "connection", connInfo)
	sched.DumpConfig()

	if err := sched.Run(ctx); err != nil {
		return err
	}
	logger.Info("stopped", "decoded", sched.Statistics().Snapshot().Decoded)
	return nil
}

// tuiLogger keeps log output off the dashboard
func tuiLogger(cfg config.Config) (*slog.Logger, error) {
	if monitorLogFile == "" {
		logger := logging.Discard()
		slog.SetDefault(logger)
		return logger, nil
	}

	f, err := os.OpenFile(monitorLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	// The file stays open for the life of the process
	return newLogger(cfg, f), nil
}
