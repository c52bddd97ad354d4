// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, InfoLevel, FormatJSON)

	l.Debug("hidden")
	l.With("device", "mfc-101").Warn("retrying", "attempt", 2)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "retrying", rec["msg"])
	assert.Equal(t, "mfc-101", rec["device"])
	assert.EqualValues(t, 2, rec["attempt"])
	assert.Contains(t, rec, "ts")
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, ErrorLevel, FormatJSON)
	assert.Equal(t, ErrorLevel, l.Level())

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestDefaultLogger(t *testing.T) {
	orig := GetLogger()
	defer SetDefault(orig)

	SetDefault(nil)
	assert.Equal(t, ErrorLevel, GetLogger().Level())
	GetLogger().Error("discarded")
}
