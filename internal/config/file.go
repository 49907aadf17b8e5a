// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/xgtmon/pkg/channel"
	"github.com/Thermoquad/xgtmon/pkg/telemetry"
)

// sensorConfig is one enabled sensor. An empty entry enables the sensor with
// its default name.
type sensorConfig struct {
	Name string `yaml:"name"`
}

// fileConfig mirrors the component schema:
//
//	update_interval: 10s
//	battery_voltage:
//	  name: "Pack Voltage"
//	cell_divergence:
//	cell_voltage:
//	  cell_1:
//	    name: "Cell 1"
type fileConfig struct {
	Port           string        `yaml:"port"`
	BaudRate       int           `yaml:"baud_rate"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	Output         string        `yaml:"output"`
	LogLevel       string        `yaml:"log_level"`

	CellVoltage map[string]*sensorConfig `yaml:"cell_voltage"`
	Sensors     map[string]*sensorConfig `yaml:",inline"`
}

// LoadFile applies a YAML configuration file on top of c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := c.applyYAML(data); err != nil {
		return fmt.Errorf("config %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.BaudRate != 0 {
		c.Baud = fc.BaudRate
	}
	if fc.UpdateInterval != 0 {
		c.UpdateInterval = fc.UpdateInterval
	}
	if fc.Output != "" {
		c.Output = strings.ToLower(fc.Output)
	}
	if fc.LogLevel != "" {
		level, err := ParseLogLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}

	reqs, err := fc.channels()
	if err != nil {
		return err
	}
	if len(reqs) > 0 {
		c.Channels = reqs
	}
	return nil
}

// channels returns the configured sensors in publication order
func (fc fileConfig) channels() ([]channel.Request, error) {
	known := make(map[string]bool)
	for _, id := range channel.KnownIDs() {
		known[id] = true
	}

	var errs []error
	for _, key := range sortedKeys(fc.Sensors) {
		if !known[key] {
			errs = append(errs, fmt.Errorf("unknown sensor %q", key))
		}
	}

	cells := make(map[int]*sensorConfig, len(fc.CellVoltage))
	for _, key := range sortedKeys(fc.CellVoltage) {
		n, err := parseCellKey(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cells[n] = fc.CellVoltage[key]
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var reqs []channel.Request
	for _, id := range channel.KnownIDs() {
		if sc, ok := fc.Sensors[id]; ok {
			reqs = append(reqs, channel.Request{ID: id, Name: sc.name()})
			continue
		}
		sel, err := channel.ParseID(id)
		if err != nil || sel.Field != channel.CellVoltage {
			continue
		}
		if sc, ok := cells[sel.Cell]; ok {
			reqs = append(reqs, channel.Request{ID: channel.IDCellVoltage, Cell: sel.Cell, Name: sc.name()})
		}
	}
	return reqs, nil
}

func (sc *sensorConfig) name() string {
	if sc == nil {
		return ""
	}
	return sc.Name
}

// parseCellKey converts "cell_3" to 3
func parseCellKey(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, "cell_")
	if !ok {
		return 0, fmt.Errorf("invalid cell_voltage key %q (expected cell_1 to cell_%d)", key, telemetry.CellSlots)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > telemetry.CellSlots {
		return 0, fmt.Errorf("invalid cell_voltage key %q (expected cell_1 to cell_%d)", key, telemetry.CellSlots)
	}
	return n, nil
}

func sortedKeys(m map[string]*sensorConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
