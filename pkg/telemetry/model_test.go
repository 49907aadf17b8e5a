// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"math"
	"sync"
	"testing"
)

func cellsOf(mv ...uint16) [CellSlots]Cell {
	var cells [CellSlots]Cell
	for i, v := range mv {
		cells[i] = Cell{Millivolts: v, Present: true}
	}
	return cells
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		cells   [CellSlots]Cell
		valid   bool
		min     uint16
		max     uint16
		diverge uint16
		count   int
	}{
		{
			name:  "no cells",
			cells: [CellSlots]Cell{},
			valid: false,
		},
		{
			name:    "single cell",
			cells:   cellsOf(3650),
			valid:   true,
			min:     3650,
			max:     3650,
			diverge: 0,
			count:   1,
		},
		{
			name:    "four cells",
			cells:   cellsOf(3210, 3220, 3190, 3200),
			valid:   true,
			min:     3190,
			max:     3220,
			diverge: 30,
			count:   4,
		},
		{
			name:    "zero voltage cell is still present",
			cells:   cellsOf(0, 3300),
			valid:   true,
			min:     0,
			max:     3300,
			diverge: 3300,
			count:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Aggregate(tt.cells)
			if a.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v", a.Valid, tt.valid)
			}
			if !tt.valid {
				if a.DivergenceMillivolts() != 0 {
					t.Errorf("divergence of empty aggregate = %d, want 0", a.DivergenceMillivolts())
				}
				return
			}
			if a.MinMillivolts != tt.min || a.MaxMillivolts != tt.max {
				t.Errorf("min/max = %d/%d, want %d/%d", a.MinMillivolts, a.MaxMillivolts, tt.min, tt.max)
			}
			if a.DivergenceMillivolts() != tt.diverge {
				t.Errorf("divergence = %d, want %d", a.DivergenceMillivolts(), tt.diverge)
			}
			if a.Cells != tt.count {
				t.Errorf("Cells = %d, want %d", a.Cells, tt.count)
			}
		})
	}
}

func TestAggregate_AbsentSlotsIgnored(t *testing.T) {
	// Slots 6-10 absent, 1-5 populated
	cells := cellsOf(3300, 3310, 3290, 3305, 3295)
	a := Aggregate(cells)
	if a.Cells != 5 {
		t.Fatalf("Cells = %d, want 5", a.Cells)
	}
	if a.MinMillivolts != 3290 || a.MaxMillivolts != 3310 {
		t.Errorf("min/max = %d/%d, want 3290/3310", a.MinMillivolts, a.MaxMillivolts)
	}
	if math.Abs(a.DivergenceVolts()-0.020) > 1e-9 {
		t.Errorf("DivergenceVolts = %f, want 0.020", a.DivergenceVolts())
	}
}

func TestSnapshot_Cell(t *testing.T) {
	s := Snapshot{Cells: cellsOf(3100, 3200)}

	if c, ok := s.Cell(2); !ok || c.Millivolts != 3200 {
		t.Errorf("Cell(2) = %+v, %v; want 3200, true", c, ok)
	}
	if _, ok := s.Cell(3); ok {
		t.Error("Cell(3) should be absent")
	}
	if _, ok := s.Cell(0); ok {
		t.Error("Cell(0) should be out of range")
	}
	if _, ok := s.Cell(CellSlots + 1); ok {
		t.Error("Cell(11) should be out of range")
	}
	if s.PresentCells() != 2 {
		t.Errorf("PresentCells = %d, want 2", s.PresentCells())
	}
}

func TestSnapshot_Conversions(t *testing.T) {
	s := Snapshot{PackMillivolts: 48320, TemperatureDeci: 251}
	if math.Abs(s.PackVoltage()-48.32) > 1e-9 {
		t.Errorf("PackVoltage = %f, want 48.32", s.PackVoltage())
	}
	if math.Abs(s.Temperature()-25.1) > 1e-9 {
		t.Errorf("Temperature = %f, want 25.1", s.Temperature())
	}
}

func TestModel_NoDataBeforeInstall(t *testing.T) {
	m := NewModel()
	if _, ok := m.Current(); ok {
		t.Error("new model should hold no data")
	}
}

func TestModel_InstallRecomputesAggregates(t *testing.T) {
	m := NewModel()

	first := m.Install(Snapshot{Cells: cellsOf(3000, 3100)})
	if first.Sequence != 1 {
		t.Errorf("first Sequence = %d, want 1", first.Sequence)
	}

	m.Install(Snapshot{Cells: cellsOf(3500)})
	r, ok := m.Current()
	if !ok {
		t.Fatal("expected data after install")
	}
	if r.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", r.Sequence)
	}
	if r.Aggregates.MinMillivolts != 3500 || r.Aggregates.MaxMillivolts != 3500 {
		t.Errorf("aggregates are stale: %+v", r.Aggregates)
	}
}

// Readers must never observe a reading whose fields come from two installs.
// Run with -race.
func TestModel_AtomicReplacement(t *testing.T) {
	m := NewModel()
	const installs = 2000

	build := func(k uint16) Snapshot {
		var cells [CellSlots]Cell
		for i := range cells {
			cells[i] = Cell{Millivolts: k + uint16(i), Present: true}
		}
		return Snapshot{
			PackMillivolts:  uint32(k),
			TemperatureDeci: int32(k),
			CycleCount:      k,
			Cells:           cells,
		}
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				cur, ok := m.Current()
				if !ok {
					continue
				}
				k := cur.Snapshot.CycleCount
				s := cur.Snapshot
				if s.PackMillivolts != uint32(k) || s.TemperatureDeci != int32(k) ||
					s.Cells[0].Millivolts != k || s.Cells[CellSlots-1].Millivolts != k+CellSlots-1 ||
					cur.Aggregates.MinMillivolts != k || cur.Aggregates.MaxMillivolts != k+CellSlots-1 {
					select {
					case errs <- "mixed reading observed":
					default:
					}
					return
				}
			}
		}()
	}

	for k := uint16(1); k <= installs; k++ {
		m.Install(build(k))
	}
	close(done)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
