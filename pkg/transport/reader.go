// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport turns a blocking byte source such as a serial port into a
// non-blocking byte stream that a polling loop can drain.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTransportFault is returned once the source has failed and every byte
	// read before the failure has been handed out
	ErrTransportFault = errors.New("transport fault")

	// ErrClosed is returned by Read after Close
	ErrClosed = errors.New("reader closed")
)

const (
	// DefaultCapacity holds several seconds of 9600 baud traffic
	DefaultCapacity = 4096

	// DefaultChunkSize is the size of a single read from the source
	DefaultChunkSize = 128

	// idleBackoff throttles sources that return (0, nil) without blocking
	idleBackoff = 10 * time.Millisecond
)

// Options configures a Reader
type Options struct {
	Capacity  int
	ChunkSize int
	Logger    *slog.Logger
}

// Reader buffers bytes from a source in the background.
//
// A single pump goroutine reads the source into a bounded buffer. When the
// buffer is full the oldest bytes are dropped. Available and Read never block.
type Reader struct {
	src    io.Reader
	logger *slog.Logger

	mu       sync.Mutex
	buf      []byte
	capacity int
	dropped  uint64
	err      error
	closed   bool

	done chan struct{}
}

// NewReader starts pumping src into a new reader
func NewReader(src io.Reader, opts Options) *Reader {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Reader{
		src:      src,
		logger:   opts.Logger,
		buf:      make([]byte, 0, opts.Capacity),
		capacity: opts.Capacity,
		done:     make(chan struct{}),
	}
	go r.pump(opts.ChunkSize)
	return r
}

func (r *Reader) pump(chunkSize int) {
	defer close(r.done)

	chunk := make([]byte, chunkSize)
	for {
		n, err := r.src.Read(chunk)
		if n > 0 {
			r.store(chunk[:n])
		}

		if err != nil {
			r.mu.Lock()
			closed := r.closed
			if !closed {
				r.err = fmt.Errorf("%w: %w", ErrTransportFault, err)
			}
			r.mu.Unlock()

			if !closed {
				r.logger.Warn("transport read failed", "error", err)
			}
			return
		}

		if n == 0 {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return
			}
			time.Sleep(idleBackoff)
		}
	}
}

func (r *Reader) store(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(data) > r.capacity {
		r.dropped += uint64(len(data) - r.capacity)
		data = data[len(data)-r.capacity:]
	}
	if overflow := len(r.buf) + len(data) - r.capacity; overflow > 0 {
		r.dropped += uint64(overflow)
		r.buf = append(r.buf[:0], r.buf[overflow:]...)
	}
	r.buf = append(r.buf, data...)
}

// Available returns the number of buffered bytes
func (r *Reader) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Read returns up to max buffered bytes (all of them if max <= 0). An empty
// result with a nil error means no data is waiting.
func (r *Reader) Read(max int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		if r.closed {
			return nil, ErrClosed
		}
		return nil, r.err
	}

	n := len(r.buf)
	if max > 0 && max < n {
		n = max
	}
	out := append([]byte(nil), r.buf[:n]...)
	r.buf = append(r.buf[:0], r.buf[n:]...)
	return out, nil
}

// Dropped returns the number of bytes lost to buffer overflow
func (r *Reader) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Err returns the source failure, if any, regardless of buffered bytes
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the pump goroutine exits
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Close stops the pump. If the source is an io.Closer it is closed and Close
// waits for the pump to exit.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.buf = r.buf[:0]
	r.mu.Unlock()

	c, ok := r.src.(io.Closer)
	if !ok {
		return nil
	}
	err := c.Close()
	<-r.done
	return err
}
