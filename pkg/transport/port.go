// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte stream ports the device drivers talk
// through: physical serial links, serial-over-WebSocket bridges, and an
// in-memory mock for tests and simulation.
package transport

import (
	"errors"
	"io"
	"os"
	"time"
)

var (
	// ErrTimeout is returned with any partial data when a framed read does
	// not complete before the port timeout
	ErrTimeout = errors.New("read timeout")

	// ErrClosed is returned when the underlying connection has gone away
	ErrClosed = errors.New("connection closed")
)

// DefaultTimeout matches the 3 second timeout the lab equipment was
// commissioned with
const DefaultTimeout = 3 * time.Second

// Conn is the raw duplex byte stream under a Port
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Port is a duplex byte stream with framed reads.
//
// ReadUntil and ReadN return whatever was received together with ErrTimeout
// when the frame does not complete in time.
type Port interface {
	Write(p []byte) (int, error)
	// ReadUntil reads up to and including delim
	ReadUntil(delim byte) ([]byte, error)
	// ReadN reads exactly n bytes
	ReadN(n int) ([]byte, error)
	// Flush discards any input received but not yet read
	Flush() error
	Close() error
}

// inputResetter is implemented by go.bug.st/serial ports
type inputResetter interface {
	ResetInputBuffer() error
}

// StreamPort implements Port over any Conn.
//
// A Conn read returning (0, nil) is treated as an elapsed read slice, which is
// how go.bug.st/serial reports a read timeout.
type StreamPort struct {
	conn    Conn
	timeout time.Duration
	pending []byte
	buf     [128]byte
}

// NewStreamPort wraps conn. A zero timeout selects DefaultTimeout.
func NewStreamPort(conn Conn, timeout time.Duration) *StreamPort {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StreamPort{conn: conn, timeout: timeout}
}

// Timeout returns the framed read timeout
func (s *StreamPort) Timeout() time.Duration {
	return s.timeout
}

func (s *StreamPort) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *StreamPort) ReadUntil(delim byte) ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	scanned := 0
	for {
		for i := scanned; i < len(s.pending); i++ {
			if s.pending[i] == delim {
				return s.take(i + 1), nil
			}
		}
		scanned = len(s.pending)

		if err := s.fill(deadline); err != nil {
			return s.take(len(s.pending)), err
		}
	}
}

func (s *StreamPort) ReadN(n int) ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	for len(s.pending) < n {
		if err := s.fill(deadline); err != nil {
			return s.take(len(s.pending)), err
		}
	}
	return s.take(n), nil
}

func (s *StreamPort) Flush() error {
	s.pending = s.pending[:0]
	if r, ok := s.conn.(inputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}

func (s *StreamPort) Close() error {
	return s.conn.Close()
}

// take removes and returns the first n pending bytes
func (s *StreamPort) take(n int) []byte {
	out := make([]byte, n)
	copy(out, s.pending[:n])
	s.pending = append(s.pending[:0], s.pending[n:]...)
	return out
}

// fill appends at least one byte to pending or fails once deadline passes
func (s *StreamPort) fill(deadline time.Time) error {
	for {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		n, err := s.conn.Read(s.buf[:])
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
			return nil
		}
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				return ErrTimeout
			case errors.Is(err, io.EOF):
				return ErrClosed
			}
			return err
		}
	}
}
