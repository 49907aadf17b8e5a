// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import "time"

// Frame is one candidate frame cut from the byte stream, still in wire order
type Frame struct {
	raw       []byte
	timestamp time.Time
}

// NewFrame copies raw wire bytes into a frame stamped with the current time
func NewFrame(raw []byte) Frame {
	return Frame{
		raw:       append([]byte(nil), raw...),
		timestamp: time.Now(),
	}
}

// Bytes returns the frame's wire bytes
func (f Frame) Bytes() []byte {
	return f.raw
}

// Logical returns a bit-reversed copy of the frame, the order fields are
// defined in
func (f Frame) Logical() []byte {
	return ReverseBits(f.raw)
}

// Length returns the number of wire bytes
func (f Frame) Length() int {
	return len(f.raw)
}

// Timestamp returns when the frame was cut from the stream
func (f Frame) Timestamp() time.Time {
	return f.timestamp
}
