// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mfc

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/crucible/pkg/device"
)

// Checksums are the low byte of the sum of the ASCII codes, rendered as
// exactly two upper-case hex digits. Sums below 0x10 are zero padded.
func sum8(s string) string {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum += s[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// CommandChecksum computes the checksum of a command frame. Anything after
// the first terminator is ignored, and the sum runs from the last address
// marker through the terminator.
func CommandChecksum(command string) (string, error) {
	end := strings.IndexByte(command, Terminator)
	if end < 0 {
		return "", device.Malformed("command %q has no terminator", command)
	}
	body := command[:end+1]

	start := strings.LastIndexByte(body, Marker)
	if start < 0 {
		return "", device.Malformed("command %q has no address marker", command)
	}
	return sum8(body[start:]), nil
}

// ResponseChecksum computes the checksum of a response frame: the sum of
// everything up to and including the first terminator, markers included.
func ResponseChecksum(response string) (string, error) {
	end := strings.IndexByte(response, Terminator)
	if end < 0 {
		return "", device.Malformed("response %q has no terminator", response)
	}
	return sum8(response[:end+1]), nil
}
