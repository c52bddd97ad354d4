// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pressure drives the pressure transducer. Commands are
// "#<address><letter>\r\n" and replies run from a '*' marker to a '>'
// terminator; the protocol carries no checksum.
package pressure

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/crucible/pkg/device"
)

const (
	// CommandStart opens every command
	CommandStart = '#'
	// Marker opens every reply
	Marker = '*'
	// Terminator ends every reply
	Terminator = '>'

	// DefaultAddress is the lab transducer's address
	DefaultAddress = "123"
	// DefaultPressureLetter requests a pressure reading
	DefaultPressureLetter = 'P'
	// DefaultStatusLetter is sent by ReportStatus
	DefaultStatusLetter = 'P'
)

var (
	ErrNoDecimalPoint        = errors.New("no decimal point in reading")
	ErrMultipleDecimalPoints = errors.New("multiple decimal points in reading")
	ErrNotNumeric            = errors.New("reading is not numeric")
)

// BuildCommand renders the command frame for letter
func BuildCommand(address string, letter byte) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}
	if strings.ContainsAny(address, "#*>\r\n") {
		return nil, fmt.Errorf("address %q contains a frame delimiter", address)
	}
	if letter < 'A' || letter > 'Z' {
		return nil, fmt.Errorf("command letter %q is not an upper-case letter", letter)
	}
	return []byte(string(CommandStart) + address + string(letter) + "\r\n"), nil
}

// ValidateResponse accepts a reply whose last marker is immediately
// followed by the device's address
func ValidateResponse(response, address string) error {
	i := strings.LastIndexByte(response, Marker)
	if i < 0 {
		return device.Malformed("reply %q has no marker", response)
	}
	if !strings.HasPrefix(response[i+1:], address) {
		return device.Malformed("reply %q is not from address %s", response, address)
	}
	return nil
}

// Body returns the reply text after the last marker and the address, with
// the terminator removed. Line noise ahead of the marker is discarded.
func Body(response, address string) string {
	if i := strings.LastIndexByte(response, Marker); i >= 0 {
		response = response[i+1:]
	}
	response = strings.TrimPrefix(response, address)
	return strings.TrimSuffix(response, string(Terminator))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// ParsePressure recovers the decimal literal around the single decimal
// point in s. The window grows left over digits and an optional sign, and
// right over digits and an optional exponent.
func ParsePressure(s string) (float64, error) {
	switch strings.Count(s, ".") {
	case 0:
		return 0, fmt.Errorf("%w: %q", ErrNoDecimalPoint, s)
	case 1:
	default:
		return 0, fmt.Errorf("%w: %q", ErrMultipleDecimalPoints, s)
	}

	dot := strings.IndexByte(s, '.')
	start := dot
	for start > 0 && isDigit(s[start-1]) {
		start--
	}
	end := dot + 1
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if start == dot && end == dot+1 {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}

	if start > 0 && (s[start-1] == '-' || s[start-1] == '+') {
		start--
	}
	if end < len(s) && (s[end] == 'E' || s[end] == 'e') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '-' || s[exp] == '+') {
			exp++
		}
		digits := exp
		for digits < len(s) && isDigit(s[digits]) {
			digits++
		}
		if digits > exp {
			end = digits
		}
	}

	v, err := strconv.ParseFloat(s[start:end], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s[start:end])
	}
	return v, nil
}
