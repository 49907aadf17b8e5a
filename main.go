// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// xgtmon - XGT Battery Telemetry Monitor
//
// A CLI tool for decoding XGT battery management system telemetry frames
// and publishing the enabled channels at a fixed cadence.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/xgtmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
