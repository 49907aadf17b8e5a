// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomSnapshot builds a snapshot the decoder accepts
func randomSnapshot(rng *rand.Rand) telemetry.Snapshot {
	s := telemetry.Snapshot{
		PackMillivolts:  uint32(rng.Intn(MaxPackMillivolts + 1)),
		TemperatureDeci: int32(rng.Intn(MaxTemperatureDeci-MinTemperatureDeci+1) + MinTemperatureDeci),
		ChargePercent:   uint8(rng.Intn(MaxPercent + 1)),
		HealthPercent:   uint8(rng.Intn(MaxPercent + 1)),
		CycleCount:      uint16(rng.Intn(0x10000)),
		CellSizeMAh:     uint32(rng.Intn(61)) * cellSizeScale,
		ParallelCount:   uint8(rng.Intn(11)),
	}
	for i := range s.Cells {
		if rng.Intn(3) > 0 {
			s.Cells[i] = telemetry.Cell{Millivolts: uint16(rng.Intn(MaxCellMillivolts + 1)), Present: true}
		}
	}
	return s
}

// randomGarbage returns noise that never contains a marker byte
func randomGarbage(rng *rand.Rand, max int) []byte {
	data := make([]byte, rng.Intn(max+1))
	for i := range data {
		b := byte(rng.Intn(256))
		if b == MarkerByte {
			b = 0x00
		}
		data[i] = b
	}
	return data
}

// ============================================================
// Synchronizer Fuzz Tests
// ============================================================

// TestFuzzSynchronizer_RandomBytes feeds random bytes in random chunk sizes
// and verifies every byte is accounted for and the buffer stays bounded
func TestFuzzSynchronizer_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	decoder := NewDecoder()
	for i := 0; i < rounds; i++ {
		sync := NewSynchronizer()
		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)

		fed, frames, discarded := 0, 0, 0
		for fed < len(data) {
			n := rng.Intn(64) + 1
			if fed+n > len(data) {
				n = len(data) - fed
			}
			f, d := sync.Feed(data[fed:fed+n], func(f Frame) error {
				_, err := decoder.Decode(f)
				return err
			})
			frames += f
			discarded += d
			fed += n

			if sync.Buffered() > MaxBufferSize {
				t.Fatalf("Round %d: buffer grew to %d", i, sync.Buffered())
			}
		}

		if frames*FrameLength+discarded+sync.Buffered() != len(data) {
			t.Errorf("Round %d: %d frames, %d discarded, %d buffered do not account for %d bytes",
				i, frames, discarded, sync.Buffered(), len(data))
		}
	}
}

// TestFuzzSynchronizer_FramesInNoise interleaves valid frames with noise and
// verifies every frame is recovered intact
func TestFuzzSynchronizer_FramesInNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		count := rng.Intn(5) + 1
		var want []telemetry.Snapshot
		var stream []byte
		for j := 0; j < count; j++ {
			s := randomSnapshot(rng)
			wire, err := NewEncoder().WithPadding(rng.Intn(MaxPadding + 1)).Encode(s)
			if err != nil {
				t.Fatalf("Round %d: encode failed: %v", i, err)
			}
			stream = append(stream, randomGarbage(rng, FrameLength-1)...)
			stream = append(stream, wire...)
			want = append(want, s)
		}

		var got []telemetry.Snapshot
		sync := NewSynchronizer()
		handle := decodeHandler(&got)
		for len(stream) > 0 {
			n := min(rng.Intn(50)+1, len(stream))
			sync.Feed(stream[:n], handle)
			stream = stream[n:]
		}

		if len(got) != len(want) {
			t.Errorf("Round %d: expected %d frames, got %d", i, len(want), len(got))
			continue
		}
		for j := range want {
			if !snapshotsEqual(got[j], want[j]) {
				t.Errorf("Round %d frame %d: mismatch\n got  %+v\n want %+v", i, j, got[j], want[j])
			}
		}
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomFrames decodes random 40-byte candidates and verifies
// every rejection carries a classified error
func TestFuzzDecoder_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	decoder := NewDecoder()
	for i := 0; i < rounds; i++ {
		data := make([]byte, FrameLength)
		rng.Read(data)
		data[0], data[1] = MarkerByte, MarkerByte

		_, err := decoder.Decode(NewFrame(data))
		if err == nil {
			continue
		}
		if _, ok := Anomaly(err); !ok {
			t.Errorf("Round %d: unclassified error: %v", i, err)
		}
	}
}

// TestFuzzDecoder_BitFlips flips one random bit in a valid frame and verifies
// the decoder rejects it
func TestFuzzDecoder_BitFlips(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	decoder := NewDecoder()
	for i := 0; i < rounds; i++ {
		wire := EncodeSnapshot(randomSnapshot(rng))
		pos := rng.Intn(FrameLength)
		bit := rng.Intn(8)
		wire[pos] ^= 1 << bit

		if _, err := decoder.Decode(NewFrame(wire)); err == nil {
			t.Errorf("Round %d: flip of byte %d bit %d was accepted", i, pos, bit)
		}
	}
}

// TestFuzzEncoder_RoundTrip encodes random snapshots and decodes them back
func TestFuzzEncoder_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	decoder := NewDecoder()
	for i := 0; i < rounds; i++ {
		s := randomSnapshot(rng)
		wire, err := NewEncoder().WithPadding(rng.Intn(MaxPadding + 1)).Encode(s)
		if err != nil {
			t.Fatalf("Round %d: encode failed: %v", i, err)
		}

		got, err := decoder.Decode(NewFrame(wire))
		if err != nil {
			t.Errorf("Round %d: decode failed: %v", i, err)
			continue
		}
		if !snapshotsEqual(got, s) {
			t.Errorf("Round %d: mismatch\n got  %+v\n want %+v", i, got, s)
		}
	}
}
