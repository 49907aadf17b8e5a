// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink provides destinations for published channel values.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Thermoquad/xgtmon/pkg/channel"
)

// Sink receives one value for one channel
type Sink interface {
	Publish(entry channel.Entry, value float64) error
}

// Func adapts a function to the Sink interface
type Func func(entry channel.Entry, value float64) error

// Publish calls f
func (f Func) Publish(entry channel.Entry, value float64) error {
	return f(entry, value)
}

// Output formats
const (
	FormatLog  = "log"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Formats lists the supported output formats
var Formats = []string{FormatLog, FormatJSON, FormatCBOR}

// New creates the sink for an output format. Log output goes to logger,
// stream formats are written to w.
func New(format string, w io.Writer, logger *slog.Logger) (Sink, error) {
	switch strings.ToLower(format) {
	case FormatLog:
		return NewLog(logger), nil
	case FormatJSON:
		return NewJSON(w), nil
	case FormatCBOR:
		return NewCBOR(w)
	default:
		return nil, fmt.Errorf("unknown output format %q (valid: %s)", format, strings.Join(Formats, ", "))
	}
}

// Log publishes values as structured log records
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a sink logging at info level. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, level: slog.LevelInfo}
}

// Publish implements Sink
func (l *Log) Publish(entry channel.Entry, value float64) error {
	l.logger.LogAttrs(context.Background(), l.level, entry.Name,
		slog.String("channel", entry.ID),
		slog.Float64("value", value),
		slog.String("unit", entry.Meta.Unit),
	)
	return nil
}

// Record is the serialized form of one published value
type Record struct {
	Channel   string    `json:"channel" cbor:"channel"`
	Name      string    `json:"name" cbor:"name"`
	Value     float64   `json:"value" cbor:"value"`
	Unit      string    `json:"unit,omitempty" cbor:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp" cbor:"timestamp"`
}

func newRecord(entry channel.Entry, value float64, now time.Time) Record {
	return Record{
		Channel:   entry.ID,
		Name:      entry.Name,
		Value:     value,
		Unit:      entry.Meta.Unit,
		Timestamp: now,
	}
}

// Multi fans a value out to several sinks. Every sink is called; their
// errors are joined.
type Multi []Sink

// Publish implements Sink
func (m Multi) Publish(entry channel.Entry, value float64) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(entry, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
