// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/xgtmon/internal/logging"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

func TestSimulator_FramesDecode(t *testing.T) {
	sim := newSimulator(1, 0)
	sync := xgt.NewSynchronizer()
	decoder := xgt.NewDecoder()

	decoded := 0
	for i := 0; i < 50; i++ {
		data, corrupted, err := sim.next(20, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if corrupted {
			t.Fatalf("frame %d corrupted with rate 0", i)
		}
		sync.Feed(data, func(f xgt.Frame) error {
			snap, err := decoder.Decode(f)
			if err != nil {
				return err
			}
			if snap.PresentCells() != 10 {
				t.Errorf("expected 10 cells, got %d", snap.PresentCells())
			}
			decoded++
			return nil
		})
	}
	if decoded != 50 {
		t.Errorf("decoded %d frames, want 50", decoded)
	}
}

func TestSimulator_Padding(t *testing.T) {
	for padding := 0; padding <= xgt.MaxPadding; padding++ {
		data, _, err := newSimulator(7, padding).next(0, 0)
		if err != nil {
			t.Fatalf("padding %d: %v", padding, err)
		}
		if _, err := xgt.NewDecoder().Decode(xgt.NewFrame(data)); err != nil {
			t.Errorf("padding %d: %v", padding, err)
		}
	}
}

func TestSimulator_Corrupt(t *testing.T) {
	sim := newSimulator(3, 0)
	for i := 0; i < 20; i++ {
		data, corrupted, err := sim.next(0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !corrupted {
			t.Fatal("expected every frame to be corrupted")
		}
		if _, err := xgt.NewDecoder().Decode(xgt.NewFrame(data)); err == nil {
			t.Errorf("frame %d: corrupted frame decoded", i)
		}
	}
}

func TestRawLog(t *testing.T) {
	sim := newSimulator(5, 0)
	var stream bytes.Buffer
	good, _, _ := sim.next(0, 0)
	bad, _, _ := sim.next(0, 1)
	stream.Write([]byte{0x00, 0x13})
	stream.Write(good)
	stream.Write(bad)

	var out bytes.Buffer
	if err := rawLog(&stream, &out, logging.Discard()); err != nil {
		t.Fatalf("rawLog returned %v", err)
	}

	text := out.String()
	if strings.Count(text, "TELEMETRY (0x3C)") != 1 {
		t.Errorf("expected one decoded frame:\n%s", text)
	}
	if !strings.Contains(text, "REJECTED") {
		t.Errorf("expected a rejected frame:\n%s", text)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device removed") }

func TestRawLog_ReadError(t *testing.T) {
	if err := rawLog(failingReader{}, io.Discard, logging.Discard()); err == nil {
		t.Error("expected read error")
	}
}

func TestWaitForFrame(t *testing.T) {
	sim := newSimulator(9, 0)
	frame, _, _ := sim.next(0, 0)

	pr, pw := io.Pipe()
	defer pw.Close()
	go func() {
		pw.Write([]byte{0x01, 0x02, 0x03})
		pw.Write(frame[:15])
		pw.Write(frame[15:])
	}()

	res, err := waitForFrame(pr, 2*time.Second)
	if err != nil {
		t.Fatalf("waitForFrame returned %v", err)
	}
	if res.skipped != 3 {
		t.Errorf("skipped = %d, want 3", res.skipped)
	}
	if !bytes.Equal(res.frame.Bytes(), frame) {
		t.Error("returned frame does not match")
	}
}

func TestWaitForFrame_Timeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	_, err := waitForFrame(pr, 50*time.Millisecond)
	if !errors.Is(err, errFrameTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestWaitForFrame_ReadError(t *testing.T) {
	_, err := waitForFrame(failingReader{}, time.Second)
	if err == nil || errors.Is(err, errFrameTimeout) {
		t.Errorf("expected read error, got %v", err)
	}
}
