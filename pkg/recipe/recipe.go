// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recipe reads and writes process recipe files.
//
// A recipe is plain text: '#' metadata lines followed by one comma separated
// row per step. The "#Columns:" line names the row fields; the first is
// always Time (step duration in seconds), an optional Temp column holds the
// furnace setpoint in °C, and every other column is a gas flow in sccm.
//
//	#Author: J. Smith
//	#Creation Date: 2025-03-14
//	#Columns:Time,Temp,Argon,Hydrogen
//	600,750,200,0
//	1200,750,200,50
package recipe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column names with fixed meaning
const (
	TimeColumn        = "Time"
	TemperatureColumn = "Temp"
)

// Recipe is an ordered list of process steps
type Recipe struct {
	Author   string
	Created  string
	Modified string
	Columns  []string
	Steps    []Step
}

// Step holds the setpoints applied for one step
type Step struct {
	Duration       time.Duration
	Temperature    float64
	HasTemperature bool
	// Flows maps gas column name to flow setpoint
	Flows map[string]float64
}

// Gases returns the gas columns in file order
func (r *Recipe) Gases() []string {
	var gases []string
	for _, c := range r.Columns {
		if !isTime(c) && !isTemperature(c) {
			gases = append(gases, c)
		}
	}
	return gases
}

// HasTemperature reports whether the recipe drives the furnace
func (r *Recipe) HasTemperature() bool {
	for _, c := range r.Columns {
		if isTemperature(c) {
			return true
		}
	}
	return false
}

// TotalDuration returns the summed step durations, ramps excluded
func (r *Recipe) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range r.Steps {
		total += s.Duration
	}
	return total
}

// RenameGases replaces every gas column name with resolve(name). It lets a
// caller map aliases such as "Ar" onto configured gas names.
func (r *Recipe) RenameGases(resolve func(name string) (string, error)) error {
	renamed := make(map[string]string)
	seen := make(map[string]bool)
	for i, c := range r.Columns {
		if isTime(c) || isTemperature(c) {
			continue
		}
		name, err := resolve(c)
		if err != nil {
			return fmt.Errorf("column %q: %w", c, err)
		}
		if seen[name] {
			return fmt.Errorf("gas %s appears in more than one column", name)
		}
		seen[name] = true
		renamed[c] = name
		r.Columns[i] = name
	}

	for i := range r.Steps {
		flows := make(map[string]float64, len(r.Steps[i].Flows))
		for gas, v := range r.Steps[i].Flows {
			flows[renamed[gas]] = v
		}
		r.Steps[i].Flows = flows
	}
	return nil
}

// String summarizes the recipe
func (r *Recipe) String() string {
	return fmt.Sprintf("%d steps, %s, columns %s", len(r.Steps), r.TotalDuration(), strings.Join(r.Columns, ","))
}

func isTime(c string) bool {
	return strings.EqualFold(c, TimeColumn)
}

func isTemperature(c string) bool {
	return strings.EqualFold(c, TemperatureColumn)
}

// seconds converts a Time cell to a duration
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
