// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/xgtmon/pkg/channel"
)

type encoder interface {
	Encode(v interface{}) error
}

// Stream writes each published value as one record: newline-delimited JSON
// or a CBOR sequence
type Stream struct {
	mu  sync.Mutex
	enc encoder
	now func() time.Time
}

// NewJSON creates a stream sink writing JSON lines to w
func NewJSON(w io.Writer) *Stream {
	return &Stream{enc: json.NewEncoder(w), now: time.Now}
}

// NewCBOR creates a stream sink writing a CBOR sequence (RFC 8742) to w
func NewCBOR(w io.Writer) (*Stream, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	return &Stream{enc: em.NewEncoder(w), now: time.Now}, nil
}

// Publish implements Sink
func (s *Stream) Publish(entry channel.Entry, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(newRecord(entry, value, s.now())); err != nil {
		return fmt.Errorf("failed to write %s: %w", entry.ID, err)
	}
	return nil
}
