// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

var (
	simInterval time.Duration
	simCount    int
	simGarbage  int
	simCorrupt  float64
	simPadding  int
	simSeed     int64
	simStdout   bool
	simHex      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emit synthetic XGT frames for bench testing",
	Long: `Generate a stream of synthetic XGT telemetry frames.

Frames are written to the serial port, or to stdout with --stdout. Cell
voltages drift slowly between frames. Optional line noise is inserted between
frames and a fraction of frames can be corrupted with a single bit flip so
the synchronizer and checksum paths can be exercised end to end.

Connect two adapters back to back (or use a virtual null-modem pair) and run
monitor or error_detection on the other end.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "Time between frames")
	simulateCmd.Flags().IntVar(&simCount, "count", 0, "Number of frames to send (0 = until interrupted)")
	simulateCmd.Flags().IntVar(&simGarbage, "garbage", 0, "Maximum noise bytes inserted before each frame")
	simulateCmd.Flags().Float64Var(&simCorrupt, "corrupt", 0, "Fraction of frames with a flipped bit (0-1)")
	simulateCmd.Flags().IntVar(&simPadding, "padding", 0, "Trailing pad bytes per frame (0-2)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Random seed (0 = time based)")
	simulateCmd.Flags().BoolVar(&simStdout, "stdout", false, "Write to stdout instead of the serial port")
	simulateCmd.Flags().BoolVar(&simHex, "hex", false, "Write frames as hex lines (implies --stdout)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simCorrupt < 0 || simCorrupt > 1 {
		return fmt.Errorf("--corrupt must be between 0 and 1, got %g", simCorrupt)
	}
	if simPadding < 0 || simPadding > xgt.MaxPadding {
		return fmt.Errorf("--padding must be between 0 and %d, got %d", xgt.MaxPadding, simPadding)
	}
	if simInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	var w io.Writer = os.Stdout
	if !simStdout && !simHex {
		conn, connInfo, err := OpenConnection(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		w = conn
		logger.Info("simulating", "connection", connInfo, "interval", simInterval)
	}

	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sim := newSimulator(seed, simPadding)
	logger.Debug("simulator seeded", "seed", seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()

	for sent := 0; simCount == 0 || sent < simCount; sent++ {
		if sent > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		data, corrupted, err := sim.next(simGarbage, simCorrupt)
		if err != nil {
			return err
		}
		if simHex {
			_, err = fmt.Fprintln(w, xgt.FormatHex(data))
		} else {
			_, err = w.Write(data)
		}
		if err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		logger.Debug("frame sent", "bytes", len(data), "corrupted", corrupted)
	}
	return nil
}

// simulator produces a drifting 10S pack
type simulator struct {
	rng     *rand.Rand
	encoder *xgt.Encoder
	state   telemetry.Snapshot
}

func newSimulator(seed int64, padding int) *simulator {
	s := &simulator{
		rng:     rand.New(rand.NewSource(seed)),
		encoder: xgt.NewEncoder().WithPadding(padding),
		state: telemetry.Snapshot{
			TemperatureDeci: 220,
			ChargePercent:   80,
			HealthPercent:   96,
			CycleCount:      57,
			CellSizeMAh:     4000,
			ParallelCount:   2,
		},
	}
	for i := range s.state.Cells {
		s.state.Cells[i] = telemetry.Cell{Millivolts: uint16(3600 + s.rng.Intn(50)), Present: true}
	}
	s.updatePack()
	return s
}

func (s *simulator) updatePack() {
	var total uint32
	for _, c := range s.state.Cells {
		if c.Present {
			total += uint32(c.Millivolts)
		}
	}
	s.state.PackMillivolts = total
}

// step drifts the pack state by one frame
func (s *simulator) step() {
	for i := range s.state.Cells {
		mv := int(s.state.Cells[i].Millivolts) + s.rng.Intn(11) - 5
		s.state.Cells[i].Millivolts = uint16(min(max(mv, 3000), 4200))
	}
	s.updatePack()

	temp := s.state.TemperatureDeci + int32(s.rng.Intn(3)-1)
	s.state.TemperatureDeci = min(max(temp, 100), 450)
}

// next returns the wire bytes for the next frame, preceded by up to
// maxGarbage noise bytes
func (s *simulator) next(maxGarbage int, corrupt float64) ([]byte, bool, error) {
	s.step()
	snap := s.state
	snap.ReceivedAt = time.Now()

	frame, err := s.encoder.Encode(snap)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode frame: %w", err)
	}

	corrupted := corrupt > 0 && s.rng.Float64() < corrupt
	if corrupted {
		bit := s.rng.Intn((len(frame) - xgt.MarkerLength) * 8)
		frame[xgt.MarkerLength+bit/8] ^= 1 << (bit % 8)
	}

	var out []byte
	if maxGarbage > 0 {
		for i, n := 0, s.rng.Intn(maxGarbage+1); i < n; i++ {
			b := byte(s.rng.Intn(256))
			if b == xgt.MarkerByte {
				b = 0
			}
			out = append(out, b)
		}
	}
	return append(out, frame...), corrupted, nil
}
