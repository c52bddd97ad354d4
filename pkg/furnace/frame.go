// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package furnace drives the tube furnace controller over its binary
// register protocol. Frames are
//
//	[address][function][data...][crc lo][crc hi]
//
// and an exception reply sets the high bit of the function code.
package furnace

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/crucible/pkg/device"
)

// Function codes
const (
	FuncReadHoldingRegisters   byte = 0x03
	FuncReadExceptionStatus    byte = 0x07
	FuncWriteMultipleRegisters byte = 0x10

	exceptionFlag byte = 0x80
)

// Default register map of the lab controller
const (
	DefaultAddress          byte   = 5
	DefaultSetpointRegister uint16 = 0x0077
	DefaultValueRegister    uint16 = 0x0001
)

// MaxSetpoint is the largest setpoint a single register holds
const MaxSetpoint = 0xFFFF

// Op is one of the furnace operations
type Op int

const (
	OpSetTemperature Op = iota
	OpQueryTemperature
	OpReportStatus
)

func (o Op) String() string {
	switch o {
	case OpSetTemperature:
		return "set-temperature"
	case OpQueryTemperature:
		return "query-temperature"
	case OpReportStatus:
		return "report-status"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Registers locates the setpoint and process value registers
type Registers struct {
	Setpoint uint16
	Value    uint16
}

// DefaultRegisters returns the lab controller's register map
func DefaultRegisters() Registers {
	return Registers{Setpoint: DefaultSetpointRegister, Value: DefaultValueRegister}
}

// Request is an Op with its setpoint, if any
type Request struct {
	Op    Op
	Value uint16
}

// Frame is an encoded request together with what its reply must look like
type Frame struct {
	Bytes          []byte
	Function       byte
	ResponseLength int
}

// BuildFrame encodes req for the controller at address
func BuildFrame(address byte, regs Registers, req Request) (Frame, error) {
	var f Frame
	var body []byte

	switch req.Op {
	case OpSetTemperature:
		f.Function = FuncWriteMultipleRegisters
		body = []byte{address, f.Function}
		body = binary.BigEndian.AppendUint16(body, regs.Setpoint)
		body = binary.BigEndian.AppendUint16(body, 1) // word count
		body = append(body, 2)                        // byte count
		body = binary.BigEndian.AppendUint16(body, req.Value)
		// echo of address, function, register and word count
		f.ResponseLength = 8
	case OpQueryTemperature:
		f.Function = FuncReadHoldingRegisters
		body = []byte{address, f.Function}
		body = binary.BigEndian.AppendUint16(body, regs.Value)
		body = binary.BigEndian.AppendUint16(body, 1)
		// address, function, byte count, one word
		f.ResponseLength = 5 + 2
	case OpReportStatus:
		f.Function = FuncReadExceptionStatus
		body = []byte{address, f.Function}
		f.ResponseLength = 5
	default:
		return Frame{}, fmt.Errorf("unknown op %v", req.Op)
	}

	f.Bytes = AppendChecksum(body)
	return f, nil
}

var exceptionNames = map[byte]string{
	0x01: "illegal function",
	0x02: "illegal data address",
	0x03: "illegal data value",
	0x04: "device failure",
	0x05: "acknowledge",
	0x06: "device busy",
	0x08: "memory parity error",
}

// ExceptionName returns a readable name for an exception code
func ExceptionName(code byte) string {
	if name, ok := exceptionNames[code]; ok {
		return name
	}
	return fmt.Sprintf("exception 0x%02X", code)
}

// ValidateResponse checks the trailing CRC of resp and reports whether it is
// an exception reply to function fn
func ValidateResponse(resp []byte, fn byte) (isError bool, err error) {
	if len(resp) < 4 {
		return false, device.Malformed("response too short (%d bytes)", len(resp))
	}

	switch resp[1] {
	case fn:
	case fn | exceptionFlag:
		isError = true
	default:
		return false, device.Malformed("unexpected function 0x%02X in reply to 0x%02X", resp[1], fn)
	}

	n := len(resp) - 2
	expected := CRC16(resp[:n])
	received := uint16(resp[n]) | uint16(resp[n+1])<<8
	if expected != received {
		return isError, device.CRCMismatch(expected, received)
	}
	return isError, nil
}

// ParseValue returns the big-endian integer between the 3-byte header and
// the CRC of a register read reply
func ParseValue(resp []byte) (uint64, error) {
	if len(resp) < 6 {
		return 0, device.Malformed("register reply too short (%d bytes)", len(resp))
	}
	data := resp[3 : len(resp)-2]
	if len(data) > 8 {
		return 0, device.Malformed("register reply carries %d data bytes", len(data))
	}

	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v, nil
}
