// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

var (
	frameTestTimeout int
)

var errFrameTimeout = errors.New("timeout")

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid XGT frame",
	Long: `Wait for a valid XGT telemetry frame on the connection until timeout.

This command opens the serial port and waits for any frame that passes the
marker, padding, checksum and range checks. Bytes before the first valid
frame and rejected candidates are counted but otherwise ignored.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking the inverter and parity settings of a UART adapter.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 30, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("xgtmon - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid XGT frame...\n\n")

	result, err := waitForFrame(conn, time.Duration(frameTestTimeout)*time.Second)
	switch {
	case errors.Is(err, errFrameTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		if result.rejected > 0 {
			fmt.Fprintf(os.Stderr, "(%d candidate frames rejected, check parity and signal inversion)\n", result.rejected)
		}
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	if result.skipped > 0 {
		fmt.Printf("(skipped %d bytes before sync)\n", result.skipped)
	}
	fmt.Printf("SUCCESS: Received valid frame\n")
	fmt.Printf("  Wire: %s\n", xgt.FormatHex(result.frame.Bytes()))
	fmt.Printf("  Length: %d bytes\n", result.frame.Length())
	fmt.Print(xgt.FormatSnapshot(result.snapshot))
	os.Exit(0)

	return nil
}

type frameTestResult struct {
	frame    xgt.Frame
	snapshot telemetry.Snapshot
	skipped  int
	rejected int
}

// waitForFrame reads r until the first valid frame, a read error or timeout
func waitForFrame(r io.Reader, timeout time.Duration) (frameTestResult, error) {
	type outcome struct {
		result frameTestResult
		err    error
	}

	// Buffered so the reader goroutine can exit after a timeout
	done := make(chan outcome, 1)
	progress := make(chan frameTestResult, 1)

	go func() {
		sync := xgt.NewSynchronizer()
		decoder := xgt.NewDecoder()
		buf := make([]byte, 128)

		var res frameTestResult
		found := false
		handle := func(f xgt.Frame) error {
			if found {
				return nil
			}
			snap, err := decoder.Decode(f)
			if err != nil {
				res.rejected++
				return err
			}
			res.frame = f
			res.snapshot = snap
			found = true
			return nil
		}

		for {
			n, err := r.Read(buf)
			if n > 0 {
				_, garbage := sync.Feed(buf[:n], handle)
				res.skipped += garbage
				if found {
					done <- outcome{result: res}
					return
				}
				select {
				case <-progress:
				default:
				}
				progress <- res
			}
			if err != nil {
				done <- outcome{result: res, err: err}
				return
			}
		}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(timeout):
		var res frameTestResult
		select {
		case res = <-progress:
		default:
		}
		return res, errFrameTimeout
	}
}
