// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mfc drives mass-flow controllers speaking the ASCII checksum
// protocol:
//
//	@@@<address><op-code>[value];<checksum>
//
// Replies carry ACK (or NAK with an error code) followed by the payload, the
// terminator and two checksum characters.
package mfc

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Preamble opens every command frame
	Preamble = "@@@"
	// Marker is the address marker; the last one in a reply starts the frame
	Marker = '@'
	// Terminator ends the frame body ahead of the checksum
	Terminator = ';'
	// ChecksumLength is the number of checksum characters after the terminator
	ChecksumLength = 2

	ack = "ACK"
	nak = "NAK"
)

// Op is one of the operations a flow controller understands
type Op int

const (
	OpSetFlow Op = iota
	OpQueryFlow
	OpQueryMode
	OpChangeAddress
)

var opCodes = map[Op]string{
	OpSetFlow:       "SX!",
	OpQueryFlow:     "FX?",
	OpQueryMode:     "OM?",
	OpChangeAddress: "CA!",
}

var opNames = map[Op]string{
	OpSetFlow:       "set-flow",
	OpQueryFlow:     "query-flow",
	OpQueryMode:     "query-mode",
	OpChangeAddress: "change-address",
}

// Code returns the wire op-code, or "" for an unknown Op
func (o Op) Code() string {
	return opCodes[o]
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// TakesValue reports whether the op carries a value after its code
func (o Op) TakesValue() bool {
	return o == OpSetFlow || o == OpChangeAddress
}

// Command is an Op with its value, if any
type Command struct {
	Op    Op
	Value string
}

// SetFlow returns the command setting the flow setpoint in sccm
func SetFlow(sccm float64) Command {
	return Command{Op: OpSetFlow, Value: FormatFlow(sccm)}
}

// QueryFlow returns the command reading the measured flow
func QueryFlow() Command {
	return Command{Op: OpQueryFlow}
}

// QueryMode returns the command reading the operating mode
func QueryMode() Command {
	return Command{Op: OpQueryMode}
}

// ChangeAddress returns the command moving the controller to address
func ChangeAddress(address string) Command {
	return Command{Op: OpChangeAddress, Value: address}
}

// FormatFlow renders a setpoint in the shortest decimal form
func FormatFlow(sccm float64) string {
	return strconv.FormatFloat(sccm, 'f', -1, 64)
}

// ValidateAddress rejects addresses that would corrupt the frame
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("empty address")
	}
	if strings.ContainsAny(address, "@;\r\n") {
		return fmt.Errorf("address %q contains a frame delimiter", address)
	}
	return nil
}

// BuildCommand renders the complete command frame including checksum
func BuildCommand(address string, c Command) ([]byte, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	code := c.Op.Code()
	if code == "" {
		return nil, fmt.Errorf("unknown op %v", c.Op)
	}
	if c.Op.TakesValue() {
		if c.Value == "" {
			return nil, fmt.Errorf("%v requires a value", c.Op)
		}
		if strings.ContainsAny(c.Value, "@;\r\n") {
			return nil, fmt.Errorf("value %q contains a frame delimiter", c.Value)
		}
	} else if c.Value != "" {
		return nil, fmt.Errorf("%v takes no value", c.Op)
	}

	frame := Preamble + address + code + c.Value + string(Terminator)
	checksum, err := CommandChecksum(frame)
	if err != nil {
		return nil, err
	}
	return []byte(frame + checksum), nil
}
