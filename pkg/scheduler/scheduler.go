// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler drives the acquire, decode and publish cycle on a timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/xgtmon/pkg/channel"
	"github.com/Thermoquad/xgtmon/pkg/sink"
	"github.com/Thermoquad/xgtmon/pkg/telemetry"
	"github.com/Thermoquad/xgtmon/pkg/transport"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

const (
	// DefaultUpdateInterval matches the BMS reporting cadence
	DefaultUpdateInterval = 10 * time.Second

	// DefaultMaxReadPerPoll bounds the bytes consumed by one firing
	DefaultMaxReadPerPoll = 4096
)

// Source is a non-blocking byte stream
type Source interface {
	Available() int
	Read(max int) ([]byte, error)
}

// State is the scheduler's activity
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Outcome is the result of one firing
type Outcome int

const (
	// OutcomeNoFrame means no candidate frame was found
	OutcomeNoFrame Outcome = iota
	// OutcomeDecoded means a new snapshot was installed and published
	OutcomeDecoded
	// OutcomeDecodeError means candidates were found but all were rejected
	OutcomeDecodeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoFrame:
		return "no_frame"
	case OutcomeDecoded:
		return "decoded"
	case OutcomeDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler. Zero values select defaults.
type Options struct {
	UpdateInterval time.Duration
	MaxReadPerPoll int
	Model          *telemetry.Model
	Statistics     *xgt.Statistics
	Logger         *slog.Logger
}

// Scheduler owns the synchronizer, decoder and telemetry model and publishes
// enabled channels to a sink after every successful decode.
type Scheduler struct {
	src      Source
	registry *channel.Registry
	sink     sink.Sink

	sync    *xgt.Synchronizer
	decoder *xgt.Decoder
	model   *telemetry.Model
	stats   *xgt.Statistics
	logger  *slog.Logger

	interval time.Duration
	maxRead  int
	state    atomic.Int32
}

// New creates a scheduler. The update interval must be positive; zero selects
// DefaultUpdateInterval.
func New(src Source, registry *channel.Registry, out sink.Sink, opts Options) (*Scheduler, error) {
	if src == nil {
		return nil, errors.New("scheduler: nil source")
	}
	if registry == nil {
		return nil, errors.New("scheduler: nil registry")
	}
	if out == nil {
		return nil, errors.New("scheduler: nil sink")
	}

	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.UpdateInterval < 0 {
		return nil, fmt.Errorf("scheduler: update interval must be positive, got %s", opts.UpdateInterval)
	}
	if opts.MaxReadPerPoll <= 0 {
		opts.MaxReadPerPoll = DefaultMaxReadPerPoll
	}
	if opts.Model == nil {
		opts.Model = telemetry.NewModel()
	}
	if opts.Statistics == nil {
		opts.Statistics = xgt.NewStatistics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		src:      src,
		registry: registry,
		sink:     out,
		sync:     xgt.NewSynchronizer(),
		decoder:  xgt.NewDecoder(),
		model:    opts.Model,
		stats:    opts.Statistics,
		logger:   opts.Logger,
		interval: opts.UpdateInterval,
		maxRead:  opts.MaxReadPerPoll,
	}, nil
}

// Model returns the telemetry model the scheduler installs into
func (s *Scheduler) Model() *telemetry.Model { return s.model }

// Statistics returns the frame statistics
func (s *Scheduler) Statistics() *xgt.Statistics { return s.stats }

// State returns whether a firing is in progress
func (s *Scheduler) State() State { return State(s.state.Load()) }

// UpdateInterval returns the polling period
func (s *Scheduler) UpdateInterval() time.Duration { return s.interval }

// DumpConfig logs the scheduler's configuration
func (s *Scheduler) DumpConfig() {
	s.logger.Info("XGT battery monitor",
		"update_interval", s.interval,
		"uart", fmt.Sprintf("%d 8E1, inverted levels", xgt.BaudRate),
		"channels", s.registry.IDs(),
	)
	if s.registry.Len() == 0 {
		s.logger.Warn("no channels enabled, decoded frames will not be published")
	}
}

// Run polls every update interval until ctx is cancelled or the transport
// fails. Returns nil on cancellation and the fault otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(); err != nil {
				return err
			}
		}
	}
}

// Poll runs one firing: drain available bytes, synchronize and decode every
// candidate, install the newest valid snapshot and publish it.
//
// Frames other than the newest valid one are counted as superseded. With no
// valid frame the previous snapshot stays installed and nothing is published.
// The returned error is non-nil only for a transport fault.
func (s *Scheduler) Poll() (Outcome, error) {
	s.state.Store(int32(StatePolling))
	defer s.state.Store(int32(StateIdle))

	var (
		latest   telemetry.Snapshot
		valid    int
		rejected int
	)

	handle := func(f xgt.Frame) error {
		snap, err := s.decoder.Decode(f)
		s.stats.RecordFrame(err)
		if err != nil {
			rejected++
			s.logger.Debug("frame rejected", "error", err, "wire", xgt.FormatHex(f.Bytes()))
			return err
		}
		valid++
		latest = snap
		return nil
	}

	fault := s.drain(handle)

	if d, ok := s.src.(interface{ Dropped() uint64 }); ok {
		s.stats.SetDropped(d.Dropped())
	}

	outcome := OutcomeNoFrame
	switch {
	case valid > 0:
		outcome = OutcomeDecoded
		s.stats.RecordSuperseded(valid - 1)
		reading := s.model.Install(latest)
		s.logger.Debug(reading.Snapshot.Summary(), "sequence", reading.Sequence)
		s.publish(reading)
	case rejected > 0:
		outcome = OutcomeDecodeError
		s.logger.Warn("no valid frame this cycle", "rejected", rejected)
	}

	if fault != nil {
		s.logger.Error("transport fault", "error", fault)
	}
	return outcome, fault
}

// drain feeds up to maxRead available bytes through the synchronizer
func (s *Scheduler) drain(handle func(xgt.Frame) error) error {
	budget := s.maxRead
	for budget > 0 {
		data, err := s.src.Read(min(max(s.src.Available(), 1), budget))
		if len(data) > 0 {
			budget -= len(data)
			_, garbage := s.sync.Feed(data, handle)
			s.stats.RecordGarbage(garbage)
		}
		if err != nil {
			if errors.Is(err, transport.ErrTransportFault) || errors.Is(err, transport.ErrClosed) {
				return err
			}
			return fmt.Errorf("%w: %w", transport.ErrTransportFault, err)
		}
		if len(data) == 0 {
			return nil
		}
	}
	return nil
}

func (s *Scheduler) publish(reading telemetry.Reading) {
	for _, entry := range s.registry.Entries() {
		value, ok := entry.Resolve(reading)
		if !ok {
			continue
		}
		if err := s.sink.Publish(entry, value); err != nil {
			s.stats.RecordPublishError()
			s.logger.Warn("publish failed", "channel", entry.ID, "error", err)
		}
	}
}
