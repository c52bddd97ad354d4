// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"fmt"
	"time"
)

// Phase is the process state
type Phase int

const (
	// PhaseIdle is passive monitoring with no recipe loaded
	PhaseIdle Phase = iota
	// PhaseRamping waits for the furnace to reach the step setpoint
	PhaseRamping
	// PhaseLogging holds the step for its duration, logging samples
	PhaseLogging
	// PhaseComplete follows the last step; nothing more is issued
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRamping:
		return "ramping"
	case PhaseLogging:
		return "logging"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// EventKind classifies events
type EventKind int

const (
	EventSet EventKind = iota
	EventSetFailed
	EventQueryFailed
	EventPhase
	EventStep
	EventComplete
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventSetFailed:
		return "set-failed"
	case EventQueryFailed:
		return "query-failed"
	case EventPhase:
		return "phase"
	case EventStep:
		return "step"
	case EventComplete:
		return "complete"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports something the scheduler did
type Event struct {
	Kind   EventKind
	Time   time.Time
	Phase  Phase
	Step   int
	Op     Op
	Target string
	Value  float64
	Err    error
}

func (e Event) String() string {
	switch e.Kind {
	case EventSet:
		return fmt.Sprintf("%s set to %v", e.Target, e.Value)
	case EventSetFailed:
		return fmt.Sprintf("setting %s to %v failed: %v", e.Target, e.Value, e.Err)
	case EventQueryFailed:
		return fmt.Sprintf("%v on %s failed: %v", e.Op, e.Target, e.Err)
	case EventPhase:
		return fmt.Sprintf("step %d %s", e.Step, e.Phase)
	case EventStep:
		return fmt.Sprintf("step %d started", e.Step)
	case EventComplete:
		return "recipe complete"
	case EventStopped:
		return "stopped"
	default:
		return e.Kind.String()
	}
}
