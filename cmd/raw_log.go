// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

var (
	rawLogShowWire bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display XGT telemetry frames as they arrive.

Every candidate frame is printed: valid frames with all decoded fields and
cell aggregates, rejected frames with the reason and the raw wire bytes.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogShowWire, "wire", false, "Also print wire bytes of valid frames")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("xgtmon - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return rawLog(conn, os.Stdout, logger)
}

// rawLog decodes frames from r and prints them to w until r fails
func rawLog(r io.Reader, w io.Writer, logger *slog.Logger) error {
	sync := xgt.NewSynchronizer()
	decoder := xgt.NewDecoder()
	buf := make([]byte, 128)

	handle := func(f xgt.Frame) error {
		snap, err := decoder.Decode(f)
		if err != nil {
			fmt.Fprint(w, xgt.FormatError(f, err))
			return err
		}
		fmt.Fprint(w, xgt.FormatSnapshot(snap))
		if rawLogShowWire {
			fmt.Fprintf(w, "  Wire: %s\n", xgt.FormatHex(f.Bytes()))
		}
		return nil
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, garbage := sync.Feed(buf[:n], handle); garbage > 0 {
				logger.Debug("skipped bytes", "count", garbage)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}
