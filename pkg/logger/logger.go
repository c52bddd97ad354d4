// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger provides the structured logger used by the device drivers,
// the scheduler and the command line tool.
//
// Log Levels:
//
//   - DebugLevel: every frame sent and received, disabled by default.
//   - InfoLevel:  recipe progress and device status changes.
//   - WarnLevel:  failed exchanges that will be retried.
//   - ErrorLevel: exhausted retries and device exceptions.
package logger

import (
	"fmt"
	"strings"
)

// Level indicates the logging severity level.
type Level int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the lower case level name
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger defines the logging interface used throughout crucible.
// Messages carry structured context as alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// With creates a child logger carrying the given key/value pairs.
	With(keysAndValues ...any) Logger
	Level() Level
	SetLevel(level Level)
}
