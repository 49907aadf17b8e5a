// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package xgt implements the telemetry side of the XGT battery serial protocol.
//
// The BMS reports its state in fixed-length "long message" frames that start
// with an A5 A5 marker and end with a 16-bit additive checksum. Bytes travel
// MSB-first on the wire, so every byte is bit-reversed before it is
// interpreted. This package provides frame synchronization, checksum
// validation, field decoding, encoding (for simulators and tests), formatting
// and error statistics.
package xgt

// Protocol framing
const (
	MarkerByte   = 0xA5
	MarkerLength = 2
	FrameLength  = 40
	ChecksumSize = 2
	MaxPadding   = 2

	// MaxBufferSize bounds the synchronizer's rolling buffer
	MaxBufferSize = 2 * FrameLength
)

// Message identifiers
const (
	MsgTelemetry = 0x3C
)

// Field offsets within a logical (bit-reversed) frame
const (
	offMessageID   = 2
	offFlags       = 3
	offPackVoltage = 4
	offTemperature = 6
	offCharge      = 8
	offHealth      = 10
	offCycleCount  = 12
	offCellSize    = 14
	offParallel    = 15
	offCells       = 16
	offChecksum    = FrameLength - ChecksumSize // shifted left by padding

	flagsPaddingMask = 0x0F
)

// Field encodings
const (
	// CellAbsent marks a cell slot the pack does not populate
	CellAbsent = 0xFFFF

	// temperatureOffsetDeci converts deci-kelvin to deci-celsius
	temperatureOffsetDeci = 2731

	// chargeScale converts the raw state-of-charge word to percent
	chargeScale = 255

	// cellSizeScale converts the raw cell size byte to mAh
	cellSizeScale = 100
)

// Plausibility limits. Frames carrying values outside these are rejected.
const (
	MaxPackMillivolts  = 60000
	MaxCellMillivolts  = 5000
	MinTemperatureDeci = -400
	MaxTemperatureDeci = 1250
	MaxPercent         = 100
	MaxCellSizeMAh     = 255 * cellSizeScale
)

// Serial line settings required by the pack: 9600 baud, 8 data bits, even
// parity, one stop bit, inverted TX/RX levels (handled by the adapter).
const (
	BaudRate = 9600
	DataBits = 8
)
