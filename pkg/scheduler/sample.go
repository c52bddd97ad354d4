// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"time"
)

// Sample is one completed poll of every device
type Sample struct {
	RunID   string             `cbor:"1,keyasint"`
	Time    time.Time          `cbor:"2,keyasint"`
	Elapsed time.Duration      `cbor:"3,keyasint"`
	Phase   Phase              `cbor:"4,keyasint"`
	Step    int                `cbor:"5,keyasint"`
	Values  map[string]float64 `cbor:"6,keyasint"`
	// Missing lists fields whose device did not answer
	Missing []string `cbor:"7,keyasint,omitempty"`
}

// Value returns the value of field and whether it was measured
func (s Sample) Value(field string) (float64, bool) {
	v, ok := s.Values[field]
	return v, ok
}

// Sink receives completed samples
type Sink interface {
	Record(s Sample) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(s Sample) error

func (f SinkFunc) Record(s Sample) error {
	return f(s)
}

// collector accumulates the results of one poll-everything batch
type collector struct {
	fields  []string
	pending int
	values  map[string]float64
	missing []string
	phase   Phase
	step    int
}

func newCollector(fields []string, phase Phase, step int) *collector {
	return &collector{
		fields:  fields,
		pending: len(fields),
		values:  make(map[string]float64, len(fields)),
		phase:   phase,
		step:    step,
	}
}

// add records one result and reports whether every field is in
func (c *collector) add(tag string, v float64, err error) bool {
	if err != nil {
		c.missing = append(c.missing, tag)
	} else {
		c.values[tag] = v
	}
	c.pending--
	return c.pending == 0
}
