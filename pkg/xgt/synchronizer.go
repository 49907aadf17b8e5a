// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import "bytes"

var marker = []byte{MarkerByte, MarkerByte}

// Synchronizer finds frame boundaries in an unframed byte stream.
//
// Bytes are accumulated in a bounded buffer. Anything before a start marker
// is discarded as garbage. Once a full frame length follows a marker, the
// candidate is handed to the caller. If the caller rejects it the marker is
// treated as a false positive and the search resumes one byte later, so a
// real frame overlapping a rejected candidate is still found.
type Synchronizer struct {
	buf []byte
}

// NewSynchronizer creates an empty synchronizer
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{buf: make([]byte, 0, MaxBufferSize)}
}

// Feed appends data to the buffer and calls handle for every candidate frame
// that becomes available. A nil return from handle accepts the frame and its
// bytes are consumed. A non-nil return rejects it.
//
// Returns the number of accepted frames and the number of bytes discarded as
// garbage.
func (s *Synchronizer) Feed(data []byte, handle func(Frame) error) (frames, discarded int) {
	for {
		n := min(len(data), MaxBufferSize-len(s.buf))
		s.buf = append(s.buf, data[:n]...)
		data = data[n:]

		for {
			f, dropped, ok := s.next()
			discarded += dropped
			if !ok {
				break
			}
			if err := handle(f); err != nil {
				s.consume(1)
				discarded++
				continue
			}
			s.consume(FrameLength)
			frames++
		}

		if len(data) == 0 {
			return frames, discarded
		}

		// Buffer full with no frame in it. Keep the stream moving.
		if len(s.buf) == MaxBufferSize {
			s.consume(1)
			discarded++
		}
	}
}

// next discards leading garbage and returns the frame at the head of the
// buffer if one is complete
func (s *Synchronizer) next() (Frame, int, bool) {
	i := bytes.Index(s.buf, marker)
	if i < 0 {
		// A trailing marker byte may be the first half of a split marker
		keep := 0
		if len(s.buf) > 0 && s.buf[len(s.buf)-1] == MarkerByte {
			keep = 1
		}
		drop := len(s.buf) - keep
		s.consume(drop)
		return Frame{}, drop, false
	}

	s.consume(i)
	if len(s.buf) < FrameLength {
		return Frame{}, i, false
	}
	return NewFrame(s.buf[:FrameLength]), i, true
}

func (s *Synchronizer) consume(n int) {
	if n <= 0 {
		return
	}
	s.buf = append(s.buf[:0], s.buf[n:]...)
}

// Buffered returns the number of bytes waiting for a complete frame
func (s *Synchronizer) Buffered() int {
	return len(s.buf)
}

// Reset discards all buffered bytes
func (s *Synchronizer) Reset() {
	s.buf = s.buf[:0]
}
