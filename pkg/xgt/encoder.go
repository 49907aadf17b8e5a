// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// Encoder builds wire-format frames from snapshots. It is used by the
// simulator and by tests; the BMS itself is the only producer on a real bus.
//
// Values are checked only for whether they fit their wire field, so frames
// the decoder would reject as out of range can still be produced.
type Encoder struct {
	padding int
}

// NewEncoder creates an encoder that emits unpadded frames
func NewEncoder() *Encoder {
	return &Encoder{}
}

// WithPadding sets the number of trailing pad bytes (0 to MaxPadding)
func (e *Encoder) WithPadding(padding int) *Encoder {
	e.padding = padding
	return e
}

// Encode encodes a snapshot to wire format
func (e *Encoder) Encode(s telemetry.Snapshot) ([]byte, error) {
	logical, err := encodeLogical(MsgTelemetry, e.padding, s)
	if err != nil {
		return nil, err
	}
	return ReverseBits(logical), nil
}

// EncodeSnapshot encodes an unpadded frame.
// Panics on encoding error (use Encoder.Encode for error handling).
func EncodeSnapshot(s telemetry.Snapshot) []byte {
	data, err := NewEncoder().Encode(s)
	if err != nil {
		panic(fmt.Sprintf("xgt: encode error: %v", err))
	}
	return data
}

func encodeLogical(msgID byte, padding int, s telemetry.Snapshot) ([]byte, error) {
	if padding < 0 || padding > MaxPadding {
		return nil, fmt.Errorf("invalid padding: %d (max %d)", padding, MaxPadding)
	}
	if s.PackMillivolts > 0xFFFF {
		return nil, fmt.Errorf("pack voltage %d mV does not fit the frame", s.PackMillivolts)
	}
	rawTemp := int64(s.TemperatureDeci) + temperatureOffsetDeci
	if rawTemp < 0 || rawTemp > 0xFFFF {
		return nil, fmt.Errorf("temperature %d deci-°C does not fit the frame", s.TemperatureDeci)
	}
	rawCharge := uint32(s.ChargePercent) * chargeScale
	if s.CellSizeMAh%cellSizeScale != 0 || s.CellSizeMAh > MaxCellSizeMAh {
		return nil, fmt.Errorf("cell size %d mAh must be a multiple of %d up to %d", s.CellSizeMAh, cellSizeScale, MaxCellSizeMAh)
	}
	cellSizeRaw := s.CellSizeMAh / cellSizeScale

	var rawHealth uint32
	if cellSizeRaw > 0 && s.ParallelCount > 0 {
		rawHealth = uint32(s.HealthPercent) * cellSizeRaw * uint32(s.ParallelCount)
	} else {
		rawHealth = (uint32(s.HealthPercent)*chargeScale + 99) / 100
	}
	if rawHealth > 0xFFFF {
		return nil, fmt.Errorf("health %d%% does not fit the frame", s.HealthPercent)
	}

	b := make([]byte, FrameLength)
	le := binary.LittleEndian

	b[0], b[1] = MarkerByte, MarkerByte
	b[offMessageID] = msgID
	b[offFlags] = byte(padding)
	le.PutUint16(b[offPackVoltage:], uint16(s.PackMillivolts))
	le.PutUint16(b[offTemperature:], uint16(rawTemp))
	le.PutUint16(b[offCharge:], uint16(rawCharge))
	le.PutUint16(b[offHealth:], uint16(rawHealth))
	le.PutUint16(b[offCycleCount:], s.CycleCount)
	b[offCellSize] = byte(cellSizeRaw)
	b[offParallel] = s.ParallelCount

	for i, c := range s.Cells {
		raw := uint16(CellAbsent)
		if c.Present {
			if c.Millivolts == CellAbsent {
				return nil, fmt.Errorf("cell %d voltage collides with the absent marker", i+1)
			}
			raw = c.Millivolts
		}
		le.PutUint16(b[offCells+2*i:], raw)
	}

	csOff := offChecksum - padding
	binary.BigEndian.PutUint16(b[csOff:], CalculateChecksum(b[MarkerLength:csOff]))

	return b, nil
}
