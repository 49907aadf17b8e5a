// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime time.Time
	Elapsed   time.Duration

	Candidates     uint64
	Decoded        uint64
	ChecksumErrors uint64
	RangeErrors    uint64
	Malformed      uint64
	GarbageBytes   uint64
	DroppedBytes   uint64
	Superseded     uint64
	PublishErrors  uint64
}

// Rejected returns the number of candidate frames that failed decoding
func (c Counters) Rejected() uint64 {
	return c.ChecksumErrors + c.RangeErrors + c.Malformed
}

// FrameRate returns decoded frames per second
func (c Counters) FrameRate() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Decoded) / c.Elapsed.Seconds()
}

// ErrorRate returns rejected frames per second
func (c Counters) ErrorRate() float64 {
	if c.Elapsed <= 0 {
		return 0
	}
	return float64(c.Rejected()) / c.Elapsed.Seconds()
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== Statistics (%.0f seconds) ===\n", c.Elapsed.Seconds())
	fmt.Fprintf(&sb, "Candidate Frames:%8d\n", c.Candidates)
	fmt.Fprintf(&sb, "Decoded Frames:  %8d (%.1f%%)\n", c.Decoded, percent(c.Decoded, c.Candidates))

	if c.ChecksumErrors > 0 {
		fmt.Fprintf(&sb, "Checksum Errors: %8d (%.1f%%)\n", c.ChecksumErrors, percent(c.ChecksumErrors, c.Candidates))
	}
	if c.RangeErrors > 0 {
		fmt.Fprintf(&sb, "Out of Range:    %8d (%.1f%%)\n", c.RangeErrors, percent(c.RangeErrors, c.Candidates))
	}
	if c.Malformed > 0 {
		fmt.Fprintf(&sb, "Malformed:       %8d (%.1f%%)\n", c.Malformed, percent(c.Malformed, c.Candidates))
	}
	if c.Superseded > 0 {
		fmt.Fprintf(&sb, "Superseded:      %8d\n", c.Superseded)
	}
	if c.GarbageBytes > 0 {
		fmt.Fprintf(&sb, "Garbage Bytes:   %8d\n", c.GarbageBytes)
	}
	if c.DroppedBytes > 0 {
		fmt.Fprintf(&sb, "Dropped Bytes:   %8d\n", c.DroppedBytes)
	}
	if c.PublishErrors > 0 {
		fmt.Fprintf(&sb, "Publish Errors:  %8d\n", c.PublishErrors)
	}

	fmt.Fprintf(&sb, "Frame Rate:      %8.2f frames/sec\n", c.FrameRate())
	fmt.Fprintf(&sb, "Error Rate:      %8.2f errors/sec\n", c.ErrorRate())
	sb.WriteString("================================\n")

	return sb.String()
}

// Statistics tracks frame statistics and error rates. It is safe for
// concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// RecordFrame records the decode result of one candidate frame
func (s *Statistics) RecordFrame(decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Candidates++
	switch {
	case decodeErr == nil:
		s.c.Decoded++
	case errors.Is(decodeErr, ErrChecksumMismatch):
		s.c.ChecksumErrors++
	case errors.Is(decodeErr, ErrFieldOutOfRange):
		s.c.RangeErrors++
	default:
		s.c.Malformed++
	}
}

// RecordGarbage adds bytes discarded while searching for a frame
func (s *Statistics) RecordGarbage(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.c.GarbageBytes += uint64(n)
	s.mu.Unlock()
}

// SetDropped records the transport's running count of bytes lost to overflow
func (s *Statistics) SetDropped(n uint64) {
	s.mu.Lock()
	s.c.DroppedBytes = n
	s.mu.Unlock()
}

// RecordSuperseded adds valid frames replaced by a newer one before publishing
func (s *Statistics) RecordSuperseded(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.c.Superseded += uint64(n)
	s.mu.Unlock()
}

// RecordPublishError counts a failed sink write
func (s *Statistics) RecordPublishError() {
	s.mu.Lock()
	s.c.PublishErrors++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	c.Elapsed = time.Since(c.StartTime)
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return s.Snapshot().String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}
