// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xgtmon/pkg/transport"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupted frames and line errors",
	Long: `Track synchronization garbage, checksum failures and out-of-range fields.

This command validates each candidate frame and detects:
  - Malformed frames (bad marker, message id or padding nibble)
  - Checksum errors
  - Anomalous telemetry values (pack voltage, temperature, percentages)
  - Bytes skipped while searching for a frame marker
  - Bytes dropped because the receive buffer overflowed

By default, only errors are displayed. Use --show-all to display valid frames too.

Statistics summaries are printed at a configurable interval and once more on exit.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}

	reader := transport.NewReader(conn, transport.Options{Logger: logger})
	defer reader.Close()

	fmt.Printf("xgtmon - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := xgt.NewStatistics()
	err = detectErrors(ctx, reader, os.Stdout, stats, time.Duration(statsInterval)*time.Second)

	fmt.Println()
	fmt.Print(stats.String())
	return err
}

// printRejection prints a rejected frame in highlighted format
func printRejection(w io.Writer, f xgt.Frame, err error) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	v, ok := err.(*xgt.ValidationError)
	if !ok {
		fmt.Fprintf(w, "[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
		fmt.Fprintf(w, "  >>> FRAME REJECTED <<<\n\n")
		return
	}

	switch v.Type {
	case xgt.AnomalyChecksum:
		fmt.Fprintf(w, "[%s] \033[1;31mCHECKSUM ERROR:\033[0m %s\n", timestamp, v.Message)
		if got, ok := v.Details["received"].(uint16); ok {
			if want, ok := v.Details["calculated"].(uint16); ok {
				fmt.Fprintf(w, "    received=0x%04X, calculated=0x%04X\n", got, want)
			}
		}
	case xgt.AnomalyOutOfRange:
		fmt.Fprintf(w, "[%s] \033[1;33mVALIDATION ERROR:\033[0m %s\n", timestamp, v.Message)
		fmt.Fprintf(w, "  Checksum: \033[1;32mOK\033[0m\n")
		for k, val := range v.Details {
			fmt.Fprintf(w, "    %s=%v\n", k, val)
		}
	default:
		fmt.Fprintf(w, "[%s] \033[1;31mMALFORMED:\033[0m %s\n", timestamp, v.Message)
	}

	fmt.Fprintf(w, "  Wire: %s\n", xgt.FormatHex(f.Bytes()))
	fmt.Fprintf(w, "  >>> FRAME REJECTED <<<\n\n")
}

// detectErrors validates every frame from src until ctx is done or src fails
func detectErrors(ctx context.Context, src *transport.Reader, w io.Writer, stats *xgt.Statistics, interval time.Duration) error {
	sync := xgt.NewSynchronizer()
	decoder := xgt.NewDecoder()

	// Sync tracking - garbage before the first valid frame is expected
	synchronized := false
	skippedBeforeSync := 0

	handle := func(f xgt.Frame) error {
		snap, err := decoder.Decode(f)
		stats.RecordFrame(err)
		if err != nil {
			if synchronized {
				printRejection(w, f, err)
			}
			return err
		}

		if !synchronized {
			synchronized = true
			if skippedBeforeSync > 0 {
				fmt.Fprintf(w, "[SYNC] Synchronized after skipping %d bytes\n\n", skippedBeforeSync)
			} else {
				fmt.Fprintf(w, "[SYNC] Synchronized\n\n")
			}
		}
		if showAll {
			fmt.Fprint(w, xgt.FormatSnapshot(snap))
		}
		return nil
	}

	statsTicker := time.NewTicker(interval)
	defer statsTicker.Stop()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poll.C:
			for src.Available() > 0 {
				data, _ := src.Read(src.Available())
				_, garbage := sync.Feed(data, handle)
				if synchronized {
					stats.RecordGarbage(garbage)
				} else {
					skippedBeforeSync += garbage
				}
			}
			stats.SetDropped(src.Dropped())
			if err := src.Err(); err != nil && src.Available() == 0 {
				return err
			}

		case <-statsTicker.C:
			fmt.Fprintln(w)
			fmt.Fprint(w, stats.String())
			fmt.Fprintln(w)
		}
	}
}
