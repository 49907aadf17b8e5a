// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// Decoder validates candidate frames and extracts telemetry snapshots
type Decoder struct{}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode validates f and returns the snapshot it carries.
// On any error the returned snapshot is the zero value and must not be used.
func (d *Decoder) Decode(f Frame) (telemetry.Snapshot, error) {
	b := f.Logical()

	if len(b) != FrameLength {
		return telemetry.Snapshot{}, malformed(
			fmt.Sprintf("invalid frame length: %d (expected %d)", len(b), FrameLength),
			map[string]interface{}{"length": len(b), "expected": FrameLength},
		)
	}
	if b[0] != MarkerByte || b[1] != MarkerByte {
		return telemetry.Snapshot{}, malformed(
			fmt.Sprintf("missing start marker: %02X %02X", b[0], b[1]),
			map[string]interface{}{"marker": b[:MarkerLength]},
		)
	}

	csOff, err := checksumOffset(b)
	if err != nil {
		return telemetry.Snapshot{}, err
	}

	received := binary.BigEndian.Uint16(b[csOff:])
	calculated := CalculateChecksum(b[MarkerLength:csOff])
	if received != calculated {
		return telemetry.Snapshot{}, &ValidationError{
			Type:    AnomalyChecksum,
			Message: fmt.Sprintf("checksum mismatch: expected 0x%04X, got 0x%04X", calculated, received),
			Details: map[string]interface{}{"received": received, "calculated": calculated},
		}
	}

	if b[offMessageID] != MsgTelemetry {
		return telemetry.Snapshot{}, outOfRange(
			fmt.Sprintf("unsupported message id 0x%02X", b[offMessageID]),
			map[string]interface{}{"message_id": b[offMessageID]},
		)
	}

	return decodeFields(b, f.Timestamp())
}

// checksumOffset returns where the checksum word sits once trailing padding
// declared in the flags nibble is accounted for
func checksumOffset(b []byte) (int, error) {
	padding := int(b[offFlags] & flagsPaddingMask)
	if padding > MaxPadding {
		return 0, malformed(
			fmt.Sprintf("invalid padding: %d (max %d)", padding, MaxPadding),
			map[string]interface{}{"padding": padding, "max": MaxPadding},
		)
	}
	return offChecksum - padding, nil
}

func decodeFields(b []byte, ts time.Time) (telemetry.Snapshot, error) {
	le := binary.LittleEndian

	s := telemetry.Snapshot{
		PackMillivolts:  uint32(le.Uint16(b[offPackVoltage:])),
		TemperatureDeci: int32(le.Uint16(b[offTemperature:])) - temperatureOffsetDeci,
		CycleCount:      le.Uint16(b[offCycleCount:]),
		CellSizeMAh:     uint32(b[offCellSize]) * cellSizeScale,
		ParallelCount:   b[offParallel],
		ReceivedAt:      ts,
	}

	if s.PackMillivolts > MaxPackMillivolts {
		return telemetry.Snapshot{}, outOfRange(
			fmt.Sprintf("pack voltage out of range (%d mV, max %d)", s.PackMillivolts, MaxPackMillivolts),
			map[string]interface{}{"value": s.PackMillivolts, "max": MaxPackMillivolts},
		)
	}

	if s.TemperatureDeci < MinTemperatureDeci || s.TemperatureDeci > MaxTemperatureDeci {
		return telemetry.Snapshot{}, outOfRange(
			fmt.Sprintf("temperature out of range (%.1f°C, valid: -40 to 125°C)", float64(s.TemperatureDeci)/10),
			map[string]interface{}{"value": s.TemperatureDeci, "min": MinTemperatureDeci, "max": MaxTemperatureDeci},
		)
	}

	charge := uint32(le.Uint16(b[offCharge:])) / chargeScale
	if charge > MaxPercent {
		return telemetry.Snapshot{}, outOfRange(
			fmt.Sprintf("charge out of range (%d%%)", charge),
			map[string]interface{}{"value": charge, "max": MaxPercent},
		)
	}
	s.ChargePercent = uint8(charge)

	health := healthPercent(uint32(le.Uint16(b[offHealth:])), uint32(b[offCellSize]), uint32(b[offParallel]))
	if health > MaxPercent {
		return telemetry.Snapshot{}, outOfRange(
			fmt.Sprintf("health out of range (%d%%)", health),
			map[string]interface{}{"value": health, "max": MaxPercent},
		)
	}
	s.HealthPercent = uint8(health)

	for i := 0; i < telemetry.CellSlots; i++ {
		raw := le.Uint16(b[offCells+2*i:])
		if raw == CellAbsent {
			continue
		}
		if raw > MaxCellMillivolts {
			return telemetry.Snapshot{}, outOfRange(
				fmt.Sprintf("cell %d voltage out of range (%d mV, max %d)", i+1, raw, MaxCellMillivolts),
				map[string]interface{}{"cell": i + 1, "value": raw, "max": MaxCellMillivolts},
			)
		}
		s.Cells[i] = telemetry.Cell{Millivolts: raw, Present: true}
	}

	return s, nil
}

// healthPercent scales the raw health word by the pack's capacity. Packs that
// report no cell size or parallel count fall back to a 0-255 scale.
func healthPercent(raw, cellSizeRaw, parallel uint32) uint32 {
	if cellSizeRaw > 0 && parallel > 0 {
		return raw / (cellSizeRaw * parallel)
	}
	return raw * 100 / chargeScale
}
