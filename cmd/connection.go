// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/xgtmon/internal/config"
	"github.com/Thermoquad/xgtmon/pkg/xgt"
)

// serialReadTimeout bounds a single port read so readers can be stopped
const serialReadTimeout = 100 * time.Millisecond

// Connection provides a common interface for reading/writing bytes from the BMS
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerialConnection opens a serial port with the XGT line settings
// (8 data bits, even parity, one stop bit). The inverted line levels must be
// handled by the adapter.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: xgt.DataBits,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenConnection opens the serial port named by the configuration
func OpenConnection(cfg config.Config) (Connection, string, error) {
	if cfg.Port == "" {
		return nil, "", fmt.Errorf("--port must be specified")
	}

	conn, err := OpenSerialConnection(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, "", err
	}

	return conn, fmt.Sprintf("Serial: %s @ %d baud 8E1", cfg.Port, cfg.Baud), nil
}
