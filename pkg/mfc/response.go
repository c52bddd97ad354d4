// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mfc

import (
	"strconv"
	"strings"

	"github.com/Thermoquad/crucible/pkg/device"
)

// Decode converts raw reply bytes to text, dropping anything that is not
// 7-bit ASCII
func Decode(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c < 0x80 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Resync discards line noise ahead of a reply. The link often prepends
// garbage, so the frame is rebuilt from the last address marker.
func Resync(raw []byte) string {
	s := Decode(raw)
	if i := strings.LastIndexByte(s, Marker); i >= 0 {
		return "@@" + s[i:]
	}
	return s
}

// ValidateResponse checks the trailing checksum and the acknowledgement.
// A NAK reply with a good checksum yields a *device.DeviceError.
func ValidateResponse(response string) error {
	end := strings.IndexByte(response, Terminator)
	if end < 0 {
		return device.Malformed("response %q has no terminator", response)
	}
	if len(response) < end+1+ChecksumLength {
		return device.Malformed("response %q is missing its checksum", response)
	}

	expected, err := ResponseChecksum(response)
	if err != nil {
		return err
	}
	received := response[len(response)-ChecksumLength:]
	if received != expected {
		return device.ChecksumMismatch(expected, received)
	}

	if strings.Contains(response[:end], ack) {
		return nil
	}
	if i := strings.Index(response[:end], nak); i >= 0 {
		text := response[i+len(nak) : end]
		code, _ := strconv.Atoi(text)
		return &device.DeviceError{Op: "command", Code: code, Reason: "NAK" + text}
	}
	return device.Malformed("response %q is not acknowledged", response)
}

// ParsePayload returns the text between ACK and the terminator
func ParsePayload(response string) (string, error) {
	start := strings.Index(response, ack)
	if start < 0 {
		return "", device.Malformed("response %q has no %s", response, ack)
	}
	start += len(ack)

	end := strings.IndexByte(response[start:], Terminator)
	if end < 0 {
		return "", device.Malformed("response %q has no terminator after %s", response, ack)
	}
	return response[start : start+end], nil
}
