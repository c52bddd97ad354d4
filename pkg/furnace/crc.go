// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package furnace

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	crcInitial    = 0xFFFF
	crcPolynomial = 0xA001 // 0x8005 reflected
)

// CRC16 computes the frame CRC (the MODBUS CRC-16)
func CRC16(data []byte) uint16 {
	crc := uint16(crcInitial)

	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// Checksum returns the CRC as it is sent on the wire: low byte first
func Checksum(data []byte) [2]byte {
	crc := CRC16(data)
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// ChecksumHex computes the wire CRC of a hex-digit string and returns it as
// four upper-case hex digits, low byte first
func ChecksumHex(hexDigits string) (string, error) {
	data, err := hex.DecodeString(strings.ReplaceAll(hexDigits, " ", ""))
	if err != nil {
		return "", fmt.Errorf("invalid hex input: %w", err)
	}
	cs := Checksum(data)
	return fmt.Sprintf("%02X%02X", cs[0], cs[1]), nil
}

// AppendChecksum appends the wire CRC of frame to frame
func AppendChecksum(frame []byte) []byte {
	cs := Checksum(frame)
	return append(frame, cs[0], cs[1])
}
