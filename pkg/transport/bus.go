// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "sync"

// Bus serializes exchanges on one physical port.
//
// Every logical device sharing a link (all flow controllers on the RS-485
// bus, for example) holds the same *Bus, so a poll and a setpoint write never
// interleave their bytes on the wire.
type Bus struct {
	name string
	mu   sync.Mutex
	port Port
}

// NewBus creates a bus owning port
func NewBus(name string, port Port) *Bus {
	return &Bus{name: name, port: port}
}

// Name returns the configured port name
func (b *Bus) Name() string {
	return b.name
}

// Transact runs one complete exchange with exclusive access to the port
func (b *Bus) Transact(fn func(p Port) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.port)
}

// Close closes the underlying port
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}
