// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device holds the infrastructure shared by the instrument drivers:
// the error taxonomy, the bounded retry loop, exchange statistics and the
// online/offline status board.
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame marks a frame missing its terminator, marker or
	// expected length
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrChecksumMismatch marks an ASCII response whose checksum does not match
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrCRCMismatch marks a binary response whose CRC does not match
	ErrCRCMismatch = errors.New("CRC mismatch")

	// ErrNoResponse marks an exchange where the device sent nothing usable
	// before the port timeout
	ErrNoResponse = errors.New("no response")

	// ErrDeviceError marks a well-formed reply in which the device reported
	// an error
	ErrDeviceError = errors.New("device error")

	// ErrUnreachable marks a device that failed every retry attempt
	ErrUnreachable = errors.New("device unreachable")
)

// FrameError describes a response rejected by validation
type FrameError struct {
	Kind    error
	Message string
	Details map[string]interface{}
}

func (e *FrameError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *FrameError) Unwrap() error {
	return e.Kind
}

// Malformed builds an ErrMalformedFrame error
func Malformed(format string, args ...interface{}) error {
	return &FrameError{Kind: ErrMalformedFrame, Message: fmt.Sprintf(format, args...)}
}

// ChecksumMismatch builds an ErrChecksumMismatch error
func ChecksumMismatch(expected, received string) error {
	return &FrameError{
		Kind:    ErrChecksumMismatch,
		Message: fmt.Sprintf("expected %s, received %s", expected, received),
		Details: map[string]interface{}{"expected": expected, "received": received},
	}
}

// CRCMismatch builds an ErrCRCMismatch error
func CRCMismatch(expected, received uint16) error {
	return &FrameError{
		Kind:    ErrCRCMismatch,
		Message: fmt.Sprintf("expected 0x%04X, received 0x%04X", expected, received),
		Details: map[string]interface{}{"expected": expected, "received": received},
	}
}

// NoResponse builds an ErrNoResponse error carrying whatever partial data
// arrived
func NoResponse(partial []byte) error {
	if len(partial) == 0 {
		return &FrameError{Kind: ErrNoResponse}
	}
	return &FrameError{
		Kind:    ErrNoResponse,
		Message: fmt.Sprintf("timed out after %d bytes (% X)", len(partial), partial),
		Details: map[string]interface{}{"partial": partial},
	}
}

// DeviceError is a valid reply in which the device reported a failure
type DeviceError struct {
	Device string
	Op     string
	Code   int
	Reason string
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s: %s rejected with code %d", e.Device, e.Op, e.Code)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *DeviceError) Unwrap() error {
	return ErrDeviceError
}

// UnreachableError is returned once every attempt of an exchange failed.
// It unwraps to both ErrUnreachable and the last attempt's error.
type UnreachableError struct {
	Device   string
	Attempts int
	Last     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s unreachable after %d attempts: %v", e.Device, e.Attempts, e.Last)
}

func (e *UnreachableError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrUnreachable}
	}
	return []error{ErrUnreachable, e.Last}
}
