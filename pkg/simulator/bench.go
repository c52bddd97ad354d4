// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator answers the three instrument protocols in memory so the
// drivers, the scheduler and the command line tool can run without
// hardware.
//
// A Bench holds every simulated device and dispatches each request by its
// framing: '@' frames go to the flow controllers, '#' frames to the gauge
// and anything else to the furnace. Faults injects line noise with a seeded
// generator so retry paths can be exercised reproducibly.
package simulator

import (
	"math/rand/v2"
	"sync"

	"github.com/Thermoquad/crucible/pkg/furnace"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Faults sets the probability of each kind of line fault, per reply
type Faults struct {
	// Garbage prefixes ASCII replies with noise
	Garbage float64
	// Corrupt flips one bit of the reply's last byte
	Corrupt float64
	// Drop discards the reply
	Drop float64
	// Exception answers furnace requests with a device failure
	Exception float64
	// Seed seeds the generator
	Seed uint64
}

// Enabled reports whether any fault has a non-zero probability
func (f Faults) Enabled() bool {
	return f.Garbage > 0 || f.Corrupt > 0 || f.Drop > 0 || f.Exception > 0
}

// Bench is a set of simulated devices sharing one line
type Bench struct {
	mu      sync.Mutex
	mfcs    []*MFC
	furnace *Furnace
	gauge   *Gauge
	faults  Faults
	rng     *rand.Rand
}

// NewBench creates an empty bench
func NewBench() *Bench {
	return &Bench{rng: rand.New(rand.NewPCG(0, 0))}
}

// AddMFC adds a flow controller at address
func (b *Bench) AddMFC(address string) *MFC {
	m := NewMFC(address)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mfcs = append(b.mfcs, m)
	return m
}

// SetFurnace installs a furnace at address
func (b *Bench) SetFurnace(address byte, regs furnace.Registers) *Furnace {
	f := NewFurnace(address, regs)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.furnace = f
	return f
}

// SetGauge installs a pressure gauge at address
func (b *Bench) SetGauge(address string) *Gauge {
	g := NewGauge(address)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gauge = g
	return g
}

// Furnace returns the simulated furnace, or nil
func (b *Bench) Furnace() *Furnace {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.furnace
}

// Gauge returns the simulated gauge, or nil
func (b *Bench) Gauge() *Gauge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gauge
}

// MFC returns the flow controller currently at address, or nil
func (b *Bench) MFC(address string) *MFC {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.mfcs {
		if m.Address() == address {
			return m
		}
	}
	return nil
}

// SetFaults enables fault injection and reseeds the generator
func (b *Bench) SetFaults(f Faults) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = f
	b.rng = rand.New(rand.NewPCG(f.Seed, f.Seed^0x9E3779B97F4A7C15))
}

// Respond answers one request; it is a transport.Responder
func (b *Bench) Respond(req []byte) []byte {
	if len(req) == 0 {
		return nil
	}
	b.mu.Lock()
	mfcs := append([]*MFC(nil), b.mfcs...)
	fur, gauge := b.furnace, b.gauge
	b.mu.Unlock()

	var reply []byte
	ascii := true
	switch req[0] {
	case '@':
		for _, m := range mfcs {
			if reply = m.Handle(req); reply != nil {
				break
			}
		}
	case '#':
		if gauge != nil {
			reply = gauge.Handle(req)
		}
	default:
		ascii = false
		if fur != nil {
			if b.roll(func(f Faults) float64 { return f.Exception }) && len(req) > 1 {
				reply = furnace.AppendChecksum([]byte{req[0], req[1] | 0x80, 0x04})
			} else {
				reply = fur.Handle(req)
			}
		}
	}
	if reply == nil {
		return nil
	}
	return b.distort(reply, ascii)
}

// Port returns a mock port answered by the bench
func (b *Bench) Port() *transport.MockPort {
	return transport.NewMockPort(b.Respond)
}

func (b *Bench) roll(p func(Faults) float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	prob := p(b.faults)
	return prob > 0 && b.rng.Float64() < prob
}

func (b *Bench) distort(reply []byte, ascii bool) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.faults
	if !f.Enabled() {
		return reply
	}
	if f.Drop > 0 && b.rng.Float64() < f.Drop {
		return nil
	}
	if f.Corrupt > 0 && b.rng.Float64() < f.Corrupt {
		reply = append([]byte(nil), reply...)
		reply[len(reply)-1] ^= 0x01
	}
	if ascii && f.Garbage > 0 && b.rng.Float64() < f.Garbage {
		noise := make([]byte, 1+b.rng.IntN(4))
		for i := range noise {
			// high bytes are dropped by the decoders
			noise[i] = byte(0x80 + b.rng.IntN(0x80))
		}
		reply = append(noise, reply...)
	}
	return reply
}
