// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// FormatSnapshot formats a decoded frame into a human-readable string
func FormatSnapshot(s telemetry.Snapshot) string {
	timestamp := s.ReceivedAt.Format("15:04:05.000")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] TELEMETRY (0x%02X)\n", timestamp, MsgTelemetry)
	fmt.Fprintf(&sb, "  Pack: %.3fV  Temp: %.1f°C  Charge: %d%%  Health: %d%%\n",
		s.PackVoltage(), s.Temperature(), s.ChargePercent, s.HealthPercent)
	fmt.Fprintf(&sb, "  Cycles: %d  Cell size: %d mAh  Parallel: %d\n",
		s.CycleCount, s.CellSizeMAh, s.ParallelCount)

	cells := make([]string, 0, telemetry.CellSlots)
	for i, c := range s.Cells {
		if !c.Present {
			continue
		}
		cells = append(cells, fmt.Sprintf("%d=%.3fV", i+1, c.Volts()))
	}
	if len(cells) == 0 {
		sb.WriteString("  Cells: none reported\n")
	} else {
		fmt.Fprintf(&sb, "  Cells: %s\n", strings.Join(cells, " "))
	}

	agg := telemetry.Aggregate(s.Cells)
	if agg.Valid {
		fmt.Fprintf(&sb, "  Min: %.3fV  Max: %.3fV  Divergence: %.3fV\n",
			agg.MinVolts(), agg.MaxVolts(), agg.DivergenceVolts())
	}

	return sb.String()
}

// FormatHex formats bytes as space-separated uppercase hex
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// FormatError formats a rejected frame for display
func FormatError(f Frame, err error) string {
	kind := "error"
	if a, ok := Anomaly(err); ok {
		kind = a.String()
	}
	return fmt.Sprintf("[%s] REJECTED (%s): %v\n  Wire: %s\n",
		f.Timestamp().Format("15:04:05.000"), kind, err, FormatHex(f.Bytes()))
}
