// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks exchange outcomes and error rates for one or more links
type Statistics struct {
	mu sync.Mutex
	s  Snapshot
}

// Snapshot is a point-in-time copy of Statistics
type Snapshot struct {
	StartTime   time.Time
	LastSuccess time.Time

	// Counters, one per attempt
	Attempts         uint64
	Successes        uint64
	ChecksumErrors   uint64
	CRCErrors        uint64
	MalformedFrames  uint64
	Timeouts         uint64
	DeviceErrors     uint64
	TransportErrors  uint64
	UnreachableCalls uint64

	LastError string

	// Rates (calculated)
	AttemptRate float64 // attempts/sec
	ErrorRate   float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{s: Snapshot{StartTime: time.Now()}}
}

// Record counts one exchange attempt and its outcome
func (s *Statistics) Record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.Attempts++
	if err == nil {
		s.s.Successes++
		s.s.LastSuccess = time.Now()
		return
	}

	s.s.LastError = err.Error()
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		s.s.ChecksumErrors++
	case errors.Is(err, ErrCRCMismatch):
		s.s.CRCErrors++
	case errors.Is(err, ErrMalformedFrame):
		s.s.MalformedFrames++
	case errors.Is(err, ErrNoResponse):
		s.s.Timeouts++
	case errors.Is(err, ErrDeviceError):
		s.s.DeviceErrors++
	default:
		s.s.TransportErrors++
	}
}

// RecordUnreachable counts an operation that exhausted its retries
func (s *Statistics) RecordUnreachable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.UnreachableCalls++
}

// Snapshot returns a copy with rates calculated
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	snap := s.s
	s.mu.Unlock()

	elapsed := time.Since(snap.StartTime).Seconds()
	if elapsed > 0 {
		snap.AttemptRate = float64(snap.Attempts) / elapsed
		snap.ErrorRate = float64(snap.Errors()) / elapsed
	}
	return snap
}

// Errors returns the number of failed attempts
func (s Snapshot) Errors() uint64 {
	return s.Attempts - s.Successes
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	percent := func(n uint64) float64 {
		if snap.Attempts == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(snap.Attempts)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Attempts:        %8d\n", snap.Attempts)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", snap.Successes, percent(snap.Successes))

	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", snap.ChecksumErrors, percent(snap.ChecksumErrors))
	}
	if snap.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", snap.CRCErrors, percent(snap.CRCErrors))
	}
	if snap.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", snap.MalformedFrames, percent(snap.MalformedFrames))
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", snap.Timeouts, percent(snap.Timeouts))
	}
	if snap.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d (%.1f%%)\n", snap.DeviceErrors, percent(snap.DeviceErrors))
	}
	if snap.TransportErrors > 0 {
		result += fmt.Sprintf("Link Errors:     %8d (%.1f%%)\n", snap.TransportErrors, percent(snap.TransportErrors))
	}
	if snap.UnreachableCalls > 0 {
		result += fmt.Sprintf("Unreachable:     %8d\n", snap.UnreachableCalls)
	}

	result += fmt.Sprintf("Attempt Rate:    %8.1f /sec\n", snap.AttemptRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s = Snapshot{StartTime: time.Now()}
}
