// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry holds the decoded state of an XGT battery pack.
//
// Quantities are kept in integer milli/deci units exactly as they come off
// the wire and converted to floating point only at the edges.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// CellSlots is the fixed number of cell voltage slots in a snapshot
const CellSlots = 10

// Cell is one cell voltage slot. Present is false when the pack reports
// fewer physical cells than slots.
type Cell struct {
	Millivolts uint16
	Present    bool
}

// Volts returns the cell voltage in volts
func (c Cell) Volts() float64 {
	return Volts(uint32(c.Millivolts))
}

// Snapshot is one complete decoded telemetry frame
type Snapshot struct {
	PackMillivolts  uint32
	TemperatureDeci int32 // tenths of a degree Celsius
	ChargePercent   uint8
	HealthPercent   uint8
	CycleCount      uint16
	CellSizeMAh     uint32
	ParallelCount   uint8
	Cells           [CellSlots]Cell
	ReceivedAt      time.Time
}

// PackVoltage returns the pack voltage in volts
func (s Snapshot) PackVoltage() float64 {
	return Volts(s.PackMillivolts)
}

// Temperature returns the pack temperature in degrees Celsius
func (s Snapshot) Temperature() float64 {
	return float64(s.TemperatureDeci) / 10.0
}

// Cell returns the slot for a 1-based cell index. ok is false when the index
// is outside 1..CellSlots or the slot is absent.
func (s Snapshot) Cell(index int) (Cell, bool) {
	if index < 1 || index > CellSlots {
		return Cell{}, false
	}
	c := s.Cells[index-1]
	return c, c.Present
}

// PresentCells returns the number of populated cell slots
func (s Snapshot) PresentCells() int {
	n := 0
	for _, c := range s.Cells {
		if c.Present {
			n++
		}
	}
	return n
}

// Summary renders a one-line description suitable for debug logs
func (s Snapshot) Summary() string {
	cells := make([]string, 0, CellSlots)
	for _, c := range s.Cells {
		if c.Present {
			cells = append(cells, fmt.Sprintf("%.3f", c.Volts()))
		} else {
			cells = append(cells, "-")
		}
	}
	return fmt.Sprintf("Charge: %d%%, Health: %d%%, Temp: %.1f°C, Voltage: %.2fV, Charges: %d, CellSize: %dmAh, Parallel: %d, Cells: [%s]V",
		s.ChargePercent, s.HealthPercent, s.Temperature(), s.PackVoltage(),
		s.CycleCount, s.CellSizeMAh, s.ParallelCount, strings.Join(cells, " "))
}

// Volts converts millivolts to volts
func Volts(mV uint32) float64 {
	return float64(mV) / 1000.0
}
