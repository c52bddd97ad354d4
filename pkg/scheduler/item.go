// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"fmt"
	"time"
)

// Op is one of the device operations the scheduler can queue
type Op int

const (
	OpSetFlow Op = iota
	OpQueryFlow
	OpQueryOpMode
	OpSetTemp
	OpQueryTemp
	OpReportStatus
	OpQueryPressure
)

var opNames = [...]string{
	OpSetFlow:       "SetFlow",
	OpQueryFlow:     "QueryFlow",
	OpQueryOpMode:   "QueryOpMode",
	OpSetTemp:       "SetTemp",
	OpQueryTemp:     "QueryTemp",
	OpReportStatus:  "ReportStatus",
	OpQueryPressure: "QueryPressure",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IsSet reports whether the op writes a setpoint
func (o Op) IsSet() bool {
	return o == OpSetFlow || o == OpSetTemp
}

// Result field names
const (
	TagTemperature = "Temp"
	TagPressure    = "Press"
)

// Device names for targets that are not flow controllers
const (
	TargetFurnace  = "furnace"
	TargetPressure = "pressure"
)

// Item is one pending operation.
//
// Target names the device (a gas name for flow controllers) and Tag the
// result field. The queue keeps its own copy, so Due cannot change once the
// item is enqueued.
type Item struct {
	Op     Op
	Target string
	Tag    string
	Value  float64
	Due    time.Time

	batch uint64
}

func (it Item) String() string {
	if it.Op.IsSet() {
		return fmt.Sprintf("%v(%s=%v)@%s", it.Op, it.Target, it.Value, it.Due.Format("15:04:05.000"))
	}
	return fmt.Sprintf("%v(%s)@%s", it.Op, it.Target, it.Due.Format("15:04:05.000"))
}
