// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/crucible/pkg/mfc"
)

// MFC simulates one mass flow controller. Its measured flow follows the
// setpoint exactly.
type MFC struct {
	mu      sync.Mutex
	address string
	flow    float64
	mode    string
}

// NewMFC creates a controller answering at address
func NewMFC(address string) *MFC {
	return &MFC{address: address, mode: "RUN"}
}

// Address returns the current address
func (m *MFC) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// Flow returns the current flow
func (m *MFC) Flow() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flow
}

// Handle answers one command frame. Frames for another address, or with a
// bad checksum, get no reply.
func (m *MFC) Handle(req []byte) []byte {
	frame := string(req)
	if !strings.HasPrefix(frame, mfc.Preamble) {
		return nil
	}
	want, err := mfc.CommandChecksum(frame)
	if err != nil {
		return nil
	}
	end := strings.IndexByte(frame, mfc.Terminator)
	if frame[end+1:] != want {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr, code, value, ok := splitCommand(frame[len(mfc.Preamble):end])
	if !ok || addr != m.address {
		return nil
	}

	switch code {
	case mfc.OpSetFlow.Code():
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return m.reply("NAK02")
		}
		m.flow = v
		return m.reply("ACK" + value)
	case mfc.OpQueryFlow.Code():
		return m.reply("ACK" + strconv.FormatFloat(m.flow, 'f', 2, 64))
	case mfc.OpQueryMode.Code():
		return m.reply("ACK" + m.mode)
	case mfc.OpChangeAddress.Code():
		if mfc.ValidateAddress(value) != nil {
			return m.reply("NAK02")
		}
		reply := m.reply("ACK" + value)
		m.address = value
		return reply
	default:
		return m.reply("NAK01")
	}
}

var opCodes = []string{
	mfc.OpSetFlow.Code(),
	mfc.OpQueryFlow.Code(),
	mfc.OpQueryMode.Code(),
	mfc.OpChangeAddress.Code(),
}

// splitCommand separates address, op code and value at the first op code
func splitCommand(body string) (addr, code, value string, ok bool) {
	at := -1
	for _, c := range opCodes {
		if i := strings.Index(body, c); i >= 0 && (at < 0 || i < at) {
			at, code = i, c
		}
	}
	if at < 0 {
		return "", "", "", false
	}
	return body[:at], code, body[at+len(code):], true
}

// reply frames text from the current address. Caller holds mu.
func (m *MFC) reply(text string) []byte {
	s := mfc.Preamble + m.address + text + string(mfc.Terminator)
	cs, _ := mfc.ResponseChecksum(s)
	return []byte(s + cs)
}
