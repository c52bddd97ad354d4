// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"strings"
	"time"
)

// Endpoint describes how to reach one physical link
type Endpoint struct {
	// Address is a serial device path or a ws:// or wss:// bridge URL
	Address    string
	BaudRate   int
	Timeout    time.Duration
	Username   string
	Password   string
	SkipVerify bool
}

// IsWebSocket reports whether address names a WebSocket bridge
func IsWebSocket(address string) bool {
	return strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://")
}

// Open opens the endpoint and returns the port with a human readable
// description of the link
func Open(ep Endpoint) (*StreamPort, string, error) {
	if ep.Address == "" {
		return nil, "", fmt.Errorf("no device or URL configured")
	}

	if IsWebSocket(ep.Address) {
		port, err := OpenWebSocket(ep.Address, ep.Username, ep.Password, ep.SkipVerify, ep.Timeout)
		if err != nil {
			return nil, "", err
		}
		return port, fmt.Sprintf("WebSocket: %s", ep.Address), nil
	}

	baud := ep.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := OpenSerial(ep.Address, baud, ep.Timeout)
	if err != nil {
		return nil, "", err
	}
	return port, fmt.Sprintf("Serial: %s @ %d baud", ep.Address, baud), nil
}
