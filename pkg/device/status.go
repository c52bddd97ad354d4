// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Status is the last known state of one device
type Status struct {
	Name      string
	Online    bool
	Checked   time.Time
	LastSeen  time.Time
	LastError string
}

// StatusBoard tracks which devices answered their most recent exchange.
// It is safe for concurrent use by the scheduler and any display.
type StatusBoard struct {
	m   *xsync.MapOf[string, Status]
	now func() time.Time
}

// NewStatusBoard creates an empty board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		m:   xsync.NewMapOf[string, Status](),
		now: time.Now,
	}
}

// Mark records the outcome of an exchange with name
func (b *StatusBoard) Mark(name string, err error) {
	now := b.now()
	b.m.Compute(name, func(old Status, _ bool) (Status, bool) {
		old.Name = name
		old.Checked = now
		if err == nil {
			old.Online = true
			old.LastSeen = now
			old.LastError = ""
		} else {
			old.Online = false
			old.LastError = err.Error()
		}
		return old, false
	})
}

// Get returns the status of name
func (b *StatusBoard) Get(name string) (Status, bool) {
	return b.m.Load(name)
}

// Online reports whether name answered its last exchange
func (b *StatusBoard) Online(name string) bool {
	s, ok := b.m.Load(name)
	return ok && s.Online
}

// Snapshot returns every status sorted by name
func (b *StatusBoard) Snapshot() []Status {
	out := make([]Status, 0, b.m.Size())
	b.m.Range(func(_ string, s Status) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset forgets every device
func (b *StatusBoard) Reset() {
	b.m.Clear()
}
