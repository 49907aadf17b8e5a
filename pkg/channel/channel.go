// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package channel defines the publishable telemetry channels and the
// immutable registry of channels enabled for a run.
package channel

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// Field selects which quantity of a reading a channel publishes
type Field int

const (
	BatteryVoltage Field = iota
	BatteryTemperature
	BatteryCharge
	BatteryHealth
	NumCharges
	CellSize
	ParallelCount
	CellVoltage
	MinCellVoltage
	MaxCellVoltage
	CellDivergence
)

// Channel identifiers
const (
	IDBatteryVoltage     = "battery_voltage"
	IDBatteryTemperature = "battery_temperature"
	IDBatteryCharge      = "battery_charge"
	IDBatteryHealth      = "battery_health"
	IDNumCharges         = "num_charges"
	IDCellSize           = "cell_size"
	IDParallelCount      = "parallel_count"
	IDCellVoltage        = "cell_voltage"
	IDMinCellVoltage     = "min_cell_voltage"
	IDMaxCellVoltage     = "max_cell_voltage"
	IDCellDivergence     = "cell_divergence"
)

// Units
const (
	UnitVolt    = "V"
	UnitCelsius = "°C"
	UnitPercent = "%"
	UnitMAh     = "mAh"
)

// Meta describes how a channel's value is presented
type Meta struct {
	Unit       string
	Decimals   int
	Diagnostic bool
}

type fieldInfo struct {
	id   string
	name string
	meta Meta
}

var fields = map[Field]fieldInfo{
	BatteryVoltage:     {IDBatteryVoltage, "Battery Voltage", Meta{Unit: UnitVolt, Decimals: 2}},
	BatteryTemperature: {IDBatteryTemperature, "Battery Temperature", Meta{Unit: UnitCelsius, Decimals: 1}},
	BatteryCharge:      {IDBatteryCharge, "Battery Charge", Meta{Unit: UnitPercent}},
	BatteryHealth:      {IDBatteryHealth, "Battery Health", Meta{Unit: UnitPercent, Diagnostic: true}},
	NumCharges:         {IDNumCharges, "Charge Cycles", Meta{Diagnostic: true}},
	CellSize:           {IDCellSize, "Cell Size", Meta{Unit: UnitMAh, Diagnostic: true}},
	ParallelCount:      {IDParallelCount, "Parallel Count", Meta{Diagnostic: true}},
	CellVoltage:        {IDCellVoltage, "Cell Voltage", Meta{Unit: UnitVolt, Decimals: 3, Diagnostic: true}},
	MinCellVoltage:     {IDMinCellVoltage, "Min Cell Voltage", Meta{Unit: UnitVolt, Decimals: 3}},
	MaxCellVoltage:     {IDMaxCellVoltage, "Max Cell Voltage", Meta{Unit: UnitVolt, Decimals: 3}},
	CellDivergence:     {IDCellDivergence, "Cell Divergence", Meta{Unit: UnitVolt, Decimals: 3}},
}

var fieldsByID = func() map[string]Field {
	m := make(map[string]Field, len(fields))
	for f, info := range fields {
		m[info.id] = f
	}
	return m
}()

// String returns the base identifier of the field
func (f Field) String() string {
	if info, ok := fields[f]; ok {
		return info.id
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Selector picks a value out of a reading. Cell is the 1-based slot for
// CellVoltage and zero for every other field.
type Selector struct {
	Field Field
	Cell  int
}

// ID returns the channel identifier for the selector
func (s Selector) ID() string {
	if s.Field == CellVoltage {
		return fmt.Sprintf("%s_%d", IDCellVoltage, s.Cell)
	}
	return s.Field.String()
}

// Validate checks that the selector names a real field and cell slot
func (s Selector) Validate() error {
	if _, ok := fields[s.Field]; !ok {
		return fmt.Errorf("unknown field %d", int(s.Field))
	}
	if s.Field == CellVoltage {
		if s.Cell < 1 || s.Cell > telemetry.CellSlots {
			return fmt.Errorf("cell index %d out of range (1-%d)", s.Cell, telemetry.CellSlots)
		}
		return nil
	}
	if s.Cell != 0 {
		return fmt.Errorf("%s does not take a cell index", s.Field)
	}
	return nil
}

// ParseID converts a channel identifier such as "battery_voltage" or
// "cell_voltage_3" into a selector
func ParseID(id string) (Selector, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	if rest, ok := strings.CutPrefix(id, IDCellVoltage+"_"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Selector{}, fmt.Errorf("invalid cell channel %q", id)
		}
		s := Selector{Field: CellVoltage, Cell: n}
		if err := s.Validate(); err != nil {
			return Selector{}, fmt.Errorf("channel %q: %w", id, err)
		}
		return s, nil
	}

	f, ok := fieldsByID[id]
	if !ok || f == CellVoltage {
		return Selector{}, fmt.Errorf("unknown channel %q", id)
	}
	return Selector{Field: f}, nil
}

// KnownIDs lists every valid channel identifier in publication order
func KnownIDs() []string {
	ids := []string{
		IDBatteryVoltage, IDBatteryTemperature, IDBatteryCharge, IDBatteryHealth,
		IDNumCharges, IDCellSize, IDParallelCount,
		IDMinCellVoltage, IDMaxCellVoltage, IDCellDivergence,
	}
	for i := 1; i <= telemetry.CellSlots; i++ {
		ids = append(ids, Selector{Field: CellVoltage, Cell: i}.ID())
	}
	return ids
}

// Entry is one enabled channel
type Entry struct {
	ID       string
	Name     string
	Selector Selector
	Meta     Meta
}

// newEntry builds the entry for a validated selector
func newEntry(s Selector, name string) Entry {
	info := fields[s.Field]
	if name == "" {
		name = info.name
		if s.Field == CellVoltage {
			name = fmt.Sprintf("Cell %d Voltage", s.Cell)
		}
	}
	return Entry{ID: s.ID(), Name: name, Selector: s, Meta: info.meta}
}

// Resolve returns the entry's value from a reading, rounded to the channel's
// decimals. ok is false when the value is undefined for this reading: an
// absent cell, or an aggregate when no cell is present.
func (e Entry) Resolve(r telemetry.Reading) (float64, bool) {
	var v float64
	s := r.Snapshot

	switch e.Selector.Field {
	case BatteryVoltage:
		v = s.PackVoltage()
	case BatteryTemperature:
		v = s.Temperature()
	case BatteryCharge:
		v = float64(s.ChargePercent)
	case BatteryHealth:
		v = float64(s.HealthPercent)
	case NumCharges:
		v = float64(s.CycleCount)
	case CellSize:
		v = float64(s.CellSizeMAh)
	case ParallelCount:
		v = float64(s.ParallelCount)
	case CellVoltage:
		c, ok := s.Cell(e.Selector.Cell)
		if !ok {
			return 0, false
		}
		v = c.Volts()
	case MinCellVoltage:
		if !r.Aggregates.Valid {
			return 0, false
		}
		v = r.Aggregates.MinVolts()
	case MaxCellVoltage:
		if !r.Aggregates.Valid {
			return 0, false
		}
		v = r.Aggregates.MaxVolts()
	case CellDivergence:
		if !r.Aggregates.Valid {
			return 0, false
		}
		v = r.Aggregates.DivergenceVolts()
	default:
		return 0, false
	}

	return Round(v, e.Meta.Decimals), true
}

// Round rounds v to the given number of decimal places
func Round(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

// FormatValue renders v with the entry's decimals and unit
func (e Entry) FormatValue(v float64) string {
	out := strconv.FormatFloat(v, 'f', e.Meta.Decimals, 64)
	if e.Meta.Unit != "" {
		out += " " + e.Meta.Unit
	}
	return out
}
