// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"sync"
)

// Responder produces the bytes a device would send back for one request.
// A nil or empty reply simulates a silent device.
type Responder func(request []byte) []byte

// MockPort is an in-memory Port. Scripted replies queued with Queue are
// released one per Write and take precedence over the Responder.
type MockPort struct {
	mu        sync.Mutex
	responder Responder
	script    [][]byte
	rx        []byte
	writes    [][]byte
	closed    bool
}

// NewMockPort creates a mock port; responder may be nil
func NewMockPort(responder Responder) *MockPort {
	return &MockPort{responder: responder}
}

// SetResponder replaces the responder
func (m *MockPort) SetResponder(r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
}

// Queue scripts replies for the next writes, one reply per write
func (m *MockPort) Queue(replies ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.script = append(m.script, append([]byte(nil), r...))
	}
}

// Inject makes data readable immediately, as if it arrived unsolicited
func (m *MockPort) Inject(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	req := append([]byte(nil), p...)
	m.writes = append(m.writes, req)

	switch {
	case len(m.script) > 0:
		m.rx = append(m.rx, m.script[0]...)
		m.script = m.script[1:]
	case m.responder != nil:
		m.rx = append(m.rx, m.responder(req)...)
	}
	return len(p), nil
}

func (m *MockPort) ReadUntil(delim byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	idx := bytes.IndexByte(m.rx, delim)
	if idx < 0 {
		return m.drain(len(m.rx)), ErrTimeout
	}
	return m.drain(idx + 1), nil
}

func (m *MockPort) ReadN(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if len(m.rx) < n {
		return m.drain(len(m.rx)), ErrTimeout
	}
	return m.drain(n), nil
}

func (m *MockPort) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = nil
	return nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of every request written so far
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// WriteCount returns the number of writes so far
func (m *MockPort) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// Pending returns the number of unread bytes
func (m *MockPort) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

func (m *MockPort) drain(n int) []byte {
	out := append([]byte(nil), m.rx[:n]...)
	m.rx = m.rx[n:]
	return out
}
