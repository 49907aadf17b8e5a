// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package channel

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

func sampleReading(cells ...uint16) telemetry.Reading {
	s := telemetry.Snapshot{
		PackMillivolts:  48320,
		TemperatureDeci: 251,
		ChargePercent:   87,
		HealthPercent:   95,
		CycleCount:      42,
		CellSizeMAh:     4000,
		ParallelCount:   2,
	}
	for i, mv := range cells {
		s.Cells[i] = telemetry.Cell{Millivolts: mv, Present: true}
	}
	return telemetry.NewModel().Install(s)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		id      string
		want    Selector
		wantErr bool
	}{
		{id: "battery_voltage", want: Selector{Field: BatteryVoltage}},
		{id: " Battery_Temperature ", want: Selector{Field: BatteryTemperature}},
		{id: "cell_divergence", want: Selector{Field: CellDivergence}},
		{id: "cell_voltage_1", want: Selector{Field: CellVoltage, Cell: 1}},
		{id: "cell_voltage_10", want: Selector{Field: CellVoltage, Cell: 10}},
		{id: "cell_voltage_0", wantErr: true},
		{id: "cell_voltage_11", wantErr: true},
		{id: "cell_voltage_x", wantErr: true},
		{id: "cell_voltage", wantErr: true},
		{id: "battery_current", wantErr: true},
		{id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ParseID(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestKnownIDs_AllParse(t *testing.T) {
	ids := KnownIDs()
	if len(ids) != 20 {
		t.Errorf("expected 20 channel ids, got %d", len(ids))
	}
	for _, id := range ids {
		s, err := ParseID(id)
		if err != nil {
			t.Errorf("%s: %v", id, err)
			continue
		}
		if s.ID() != id {
			t.Errorf("%s round-tripped to %s", id, s.ID())
		}
	}
}

func TestBuild(t *testing.T) {
	r, err := Build([]Request{
		{ID: "cell_divergence"},
		{ID: "battery_voltage", Name: "Pack"},
		{ID: "cell_voltage", Cell: 3},
		{ID: "cell_voltage_3"},
		{ID: "battery_voltage"},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{"cell_divergence", "battery_voltage", "cell_voltage_3"}
	if !reflect.DeepEqual(r.IDs(), want) {
		t.Errorf("IDs = %v, want %v", r.IDs(), want)
	}

	e, ok := r.Lookup("battery_voltage")
	if !ok {
		t.Fatal("battery_voltage not found")
	}
	if e.Name != "Pack" {
		t.Errorf("first occurrence should win, got name %q", e.Name)
	}

	e, _ = r.Lookup("cell_voltage_3")
	if e.Name != "Cell 3 Voltage" || e.Meta.Decimals != 3 || e.Meta.Unit != UnitVolt {
		t.Errorf("unexpected cell entry: %+v", e)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown id", Request{ID: "battery_current"}},
		{"cell index too high", Request{ID: "cell_voltage", Cell: 11}},
		{"cell index missing", Request{ID: "cell_voltage"}},
		{"cell index on scalar", Request{ID: "battery_voltage", Cell: 2}},
		{"conflicting cell index", Request{ID: "cell_voltage_2", Cell: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build([]Request{tt.req}); err == nil {
				t.Error("expected build error")
			}
		})
	}
}

func TestBuild_ReportsEveryError(t *testing.T) {
	_, err := BuildFromIDs("nope", "battery_voltage", "cell_voltage_12")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"nope", "cell_voltage_12"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestBuild_Empty(t *testing.T) {
	r, err := BuildFromIDs()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_EntriesIsACopy(t *testing.T) {
	r, _ := BuildFromIDs("battery_voltage")
	entries := r.Entries()
	entries[0].Name = "changed"
	if e, _ := r.Lookup("battery_voltage"); e.Name == "changed" {
		t.Error("registry should not be modified through Entries")
	}
}

func TestResolve(t *testing.T) {
	reading := sampleReading(3210, 3220, 3190, 3200)
	r, err := BuildFromIDs(KnownIDs()...)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := map[string]float64{
		"battery_voltage":     48.32,
		"battery_temperature": 25.1,
		"battery_charge":      87,
		"battery_health":      95,
		"num_charges":         42,
		"cell_size":           4000,
		"parallel_count":      2,
		"min_cell_voltage":    3.19,
		"max_cell_voltage":    3.22,
		"cell_divergence":     0.03,
		"cell_voltage_1":      3.21,
		"cell_voltage_2":      3.22,
		"cell_voltage_3":      3.19,
		"cell_voltage_4":      3.2,
	}

	for _, e := range r.Entries() {
		v, ok := e.Resolve(reading)
		expected, defined := want[e.ID]
		if ok != defined {
			t.Errorf("%s: defined = %v, want %v", e.ID, ok, defined)
			continue
		}
		if ok && math.Abs(v-expected) > 1e-9 {
			t.Errorf("%s: got %v, want %v", e.ID, v, expected)
		}
	}
}

func TestResolve_NoCells(t *testing.T) {
	reading := sampleReading()
	r, _ := BuildFromIDs("min_cell_voltage", "max_cell_voltage", "cell_divergence", "cell_voltage_1", "battery_voltage")

	defined := 0
	for _, e := range r.Entries() {
		if _, ok := e.Resolve(reading); ok {
			defined++
		}
	}
	if defined != 1 {
		t.Errorf("only battery_voltage should resolve, got %d values", defined)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v        float64
		decimals int
		want     float64
	}{
		{3.2104, 3, 3.21},
		{3.2105, 2, 3.21},
		{25.14, 1, 25.1},
		{86.6, 0, 87},
		{0.0299999, 3, 0.03},
	}

	for _, tt := range tests {
		if got := Round(tt.v, tt.decimals); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.decimals, got, tt.want)
		}
	}
}

func TestEntry_FormatValue(t *testing.T) {
	r, _ := BuildFromIDs("battery_voltage", "num_charges")
	entries := r.Entries()

	if got := entries[0].FormatValue(48.32); got != "48.32 V" {
		t.Errorf("got %q", got)
	}
	if got := entries[1].FormatValue(42); got != "42" {
		t.Errorf("got %q", got)
	}
}

func TestSelector_Validate(t *testing.T) {
	if err := (Selector{Field: Field(99)}).Validate(); err == nil {
		t.Error("unknown field should not validate")
	}
	if err := (Selector{Field: CellVoltage, Cell: 10}).Validate(); err != nil {
		t.Errorf("cell 10 should validate: %v", err)
	}
	var target interface{ Unwrap() []error }
	_, err := BuildFromIDs("x", "y")
	if !errors.As(err, &target) || len(target.Unwrap()) != 2 {
		t.Errorf("expected a joined error of 2, got %v", err)
	}
}
