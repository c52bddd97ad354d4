// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"os"
	"sync/atomic"
)

var defLogger atomic.Value

func init() {
	defLogger.Store(holder{NewSlog(os.Stderr, InfoLevel, FormatJSON)})
}

// holder keeps atomic.Value happy with differing concrete types
type holder struct{ Logger }

// GetLogger returns the process wide default logger
func GetLogger() Logger {
	return defLogger.Load().(holder).Logger
}

// SetDefault replaces the process wide default logger
func SetDefault(l Logger) {
	if l == nil {
		l = Nop()
	}
	defLogger.Store(holder{l})
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
func (n nopLogger) With(...any) Logger { return n }
func (nopLogger) Level() Level { return ErrorLevel }
func (nopLogger) SetLevel(Level) {}
