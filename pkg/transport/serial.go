// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the lab RS-485 adapters are configured for
const DefaultBaudRate = 9600

// readSlice bounds a single serial read so framed reads can re-check their
// deadline
const readSlice = 100 * time.Millisecond

// serialHandle is the subset of serial.Port used here
type serialHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// openPort is replaced in tests
var openPort = func(name string, mode *serial.Mode) (serialHandle, error) {
	return serial.Open(name, mode)
}

// OpenSerial opens a physical serial link as 8N1 at the given baud rate
func OpenSerial(name string, baudRate int, timeout time.Duration) (*StreamPort, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := openPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	slice := readSlice
	if timeout > 0 && timeout < slice {
		slice = timeout
	}
	if err := port.SetReadTimeout(slice); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}

	return NewStreamPort(port, timeout), nil
}
