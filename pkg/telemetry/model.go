// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "sync/atomic"

// Aggregates are statistics derived from the present cell slots of a snapshot
type Aggregates struct {
	MinMillivolts uint16
	MaxMillivolts uint16
	Cells         int  // number of slots the aggregates cover
	Valid         bool // false when no cell is present
}

// DivergenceMillivolts returns max - min, or 0 when no cell is present
func (a Aggregates) DivergenceMillivolts() uint16 {
	if !a.Valid {
		return 0
	}
	return a.MaxMillivolts - a.MinMillivolts
}

// MinVolts returns the lowest cell voltage in volts
func (a Aggregates) MinVolts() float64 { return Volts(uint32(a.MinMillivolts)) }

// MaxVolts returns the highest cell voltage in volts
func (a Aggregates) MaxVolts() float64 { return Volts(uint32(a.MaxMillivolts)) }

// DivergenceVolts returns the cell divergence in volts
func (a Aggregates) DivergenceVolts() float64 {
	return Volts(uint32(a.DivergenceMillivolts()))
}

// Aggregate computes min/max over the present slots only
func Aggregate(cells [CellSlots]Cell) Aggregates {
	var a Aggregates
	for _, c := range cells {
		if !c.Present {
			continue
		}
		if !a.Valid {
			a.MinMillivolts = c.Millivolts
			a.MaxMillivolts = c.Millivolts
			a.Valid = true
		}
		if c.Millivolts < a.MinMillivolts {
			a.MinMillivolts = c.Millivolts
		}
		if c.Millivolts > a.MaxMillivolts {
			a.MaxMillivolts = c.Millivolts
		}
		a.Cells++
	}
	return a
}

// Reading is an installed snapshot together with its aggregates.
// Sequence increases by one on every install, starting at 1.
type Reading struct {
	Snapshot   Snapshot
	Aggregates Aggregates
	Sequence   uint64
}

// Model holds the latest installed reading. Install and Current are safe to
// call from different goroutines; readers always see a complete reading.
type Model struct {
	current atomic.Pointer[Reading]
	seq     atomic.Uint64
}

// NewModel creates a model holding no data
func NewModel() *Model {
	return &Model{}
}

// Install replaces the current reading with s and its freshly computed
// aggregates in a single pointer swap.
func (m *Model) Install(s Snapshot) Reading {
	r := &Reading{
		Snapshot:   s,
		Aggregates: Aggregate(s.Cells),
		Sequence:   m.seq.Add(1),
	}
	m.current.Store(r)
	return *r
}

// Current returns the latest reading. ok is false until the first Install.
func (m *Model) Current() (Reading, bool) {
	r := m.current.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}
