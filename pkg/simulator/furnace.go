// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/Thermoquad/crucible/pkg/furnace"
)

// Defaults for a new simulated furnace
const (
	AmbientTemperature = 25.0
	DefaultRampRate    = 20.0 // °C per second
)

// Furnace simulates the furnace controller. The temperature moves toward
// the setpoint at RampRate.
type Furnace struct {
	mu       sync.Mutex
	address  byte
	regs     furnace.Registers
	rate     float64
	temp     float64
	setpoint float64
	status   furnace.Status
	now      func() time.Time
	updated  time.Time
}

// NewFurnace creates a furnace at ambient temperature
func NewFurnace(address byte, regs furnace.Registers) *Furnace {
	f := &Furnace{
		address:  address,
		regs:     regs,
		rate:     DefaultRampRate,
		temp:     AmbientTemperature,
		setpoint: AmbientTemperature,
		now:      time.Now,
	}
	f.updated = f.now()
	return f
}

// SetRampRate changes how fast the temperature follows the setpoint
func (f *Furnace) SetRampRate(perSecond float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance()
	f.rate = perSecond
}

// SetClock replaces the time source
func (f *Furnace) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
	f.updated = now()
}

// Temperature returns the current temperature
func (f *Furnace) Temperature() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advance()
	return f.temp
}

// Setpoint returns the last written setpoint
func (f *Furnace) Setpoint() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setpoint
}

// advance moves the temperature for the time since the last update.
// Caller holds mu.
func (f *Furnace) advance() {
	now := f.now()
	dt := now.Sub(f.updated).Seconds()
	f.updated = now
	if dt <= 0 {
		return
	}
	step := f.rate * dt
	diff := f.setpoint - f.temp
	if math.Abs(diff) <= step {
		f.temp = f.setpoint
	} else {
		f.temp += math.Copysign(step, diff)
	}
}

// Handle answers one request frame
func (f *Furnace) Handle(req []byte) []byte {
	if len(req) < 4 {
		return nil
	}
	if _, err := furnace.ValidateResponse(req, req[1]); err != nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if req[0] != f.address {
		return nil
	}
	f.advance()

	fn := req[1]
	switch fn {
	case furnace.FuncReadHoldingRegisters:
		if len(req) != 8 {
			return f.exception(fn, 0x03)
		}
		if binary.BigEndian.Uint16(req[2:4]) != f.regs.Value {
			return f.exception(fn, 0x02)
		}
		v := uint16(math.Round(math.Max(f.temp, 0)))
		out := []byte{f.address, fn, 2}
		out = binary.BigEndian.AppendUint16(out, v)
		return furnace.AppendChecksum(out)
	case furnace.FuncWriteMultipleRegisters:
		if len(req) != 11 {
			return f.exception(fn, 0x03)
		}
		if binary.BigEndian.Uint16(req[2:4]) != f.regs.Setpoint {
			return f.exception(fn, 0x02)
		}
		f.setpoint = float64(binary.BigEndian.Uint16(req[7:9]))
		return furnace.AppendChecksum(append([]byte(nil), req[:6]...))
	case furnace.FuncReadExceptionStatus:
		return furnace.AppendChecksum([]byte{f.address, fn, byte(f.status)})
	default:
		return f.exception(fn, 0x01)
	}
}

// exception builds an error reply. Caller holds mu.
func (f *Furnace) exception(fn, code byte) []byte {
	return furnace.AppendChecksum([]byte{f.address, fn | 0x80, code})
}
