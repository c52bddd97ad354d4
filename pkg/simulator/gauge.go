// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/crucible/pkg/pressure"
)

// DefaultPressure is the simulated reading in torr
const DefaultPressure = 760.0

// Gauge simulates the pressure transducer
type Gauge struct {
	mu       sync.Mutex
	address  string
	pressure float64
}

// NewGauge creates a gauge at atmospheric pressure
func NewGauge(address string) *Gauge {
	return &Gauge{address: address, pressure: DefaultPressure}
}

// SetPressure changes the reading
func (g *Gauge) SetPressure(torr float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pressure = torr
}

// Handle answers "#<address><letter>\r\n"
func (g *Gauge) Handle(req []byte) []byte {
	s := strings.TrimRight(string(req), "\r\n")
	if !strings.HasPrefix(s, string(pressure.CommandStart)) {
		return nil
	}
	s = s[1:]

	g.mu.Lock()
	defer g.mu.Unlock()

	if !strings.HasPrefix(s, g.address) || len(s) != len(g.address)+1 {
		return nil
	}
	reading := strconv.FormatFloat(g.pressure, 'E', 3, 64)
	return []byte(string(pressure.Marker) + g.address + " " + reading + " torr" + string(pressure.Terminator))
}
