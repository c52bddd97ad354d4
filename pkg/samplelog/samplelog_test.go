// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/crucible/pkg/scheduler"
)

func testSamples() []scheduler.Sample {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return []scheduler.Sample{
		{
			RunID:   "run-a",
			Time:    start.Add(time.Second),
			Elapsed: time.Second,
			Phase:   scheduler.PhaseLogging,
			Step:    1,
			Values:  map[string]float64{"Temp": 750, "Argon": 200, "Press": 1.2e-3},
		},
		{
			RunID:   "run-a",
			Time:    start.Add(2 * time.Second),
			Elapsed: 2*time.Second + 500*time.Millisecond,
			Phase:   scheduler.PhaseLogging,
			Step:    1,
			Values:  map[string]float64{"Temp": 749.5, "Argon": 199.8},
			Missing: []string{"Press"},
		},
	}
}

// ============================================================================
// CSV
// ============================================================================

func TestCSVWriterRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, []string{"Temp", "Argon", "Press"})
	for _, s := range testSamples() {
		require.NoError(t, w.Record(s))
	}
	require.NoError(t, w.Close())

	expected := "Time,Temp,Argon,Press\n" +
		"1.000,750,200,0.0012\n" +
		"2.500,749.5,199.8,\n"
	assert.Equal(t, expected, buf.String())
}

func TestCSVFileTruncatesOnFirstSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	require.NoError(t, os.WriteFile(path, []byte("old contents\n"), 0644))

	w := NewCSVFile(path, []string{"Argon"})

	// nothing recorded yet
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old contents\n", string(data))

	require.NoError(t, w.Record(testSamples()[0]))
	require.NoError(t, w.Close())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Time,Argon\n1.000,200\n", string(data))

	assert.ErrorIs(t, w.Record(testSamples()[1]), os.ErrClosed)
	assert.NoError(t, w.Close())
}

// ============================================================================
// CBOR
// ============================================================================

func TestCBORRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewCBORRecorder(&buf)
	for _, s := range testSamples() {
		require.NoError(t, rec.Record(s))
	}
	require.NoError(t, rec.Close())

	got, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	want := testSamples()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Time.Equal(got[i].Time))
		assert.Equal(t, want[i].Elapsed, got[i].Elapsed)
		assert.Equal(t, want[i].Phase, got[i].Phase)
		assert.Equal(t, want[i].Values, got[i].Values)
		assert.Equal(t, want[i].Missing, got[i].Missing)
	}
}

func TestCBORFileFilterRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cbor")
	rec, err := CreateCBOR(path)
	require.NoError(t, err)

	other := testSamples()[0]
	other.RunID = "run-b"
	require.NoError(t, rec.Record(other))
	for _, s := range testSamples() {
		require.NoError(t, rec.Record(s))
	}
	require.NoError(t, rec.Close())
	assert.ErrorIs(t, rec.Record(other), os.ErrClosed)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	r.FilterRun("run-a")

	n := 0
	for {
		s, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "run-a", s.RunID)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0xff, 0x00, 0x13})).Next()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

// ============================================================================
// Multi
// ============================================================================

func TestMultiRecordsToEverySink(t *testing.T) {
	var got []string
	failing := scheduler.SinkFunc(func(scheduler.Sample) error {
		got = append(got, "failing")
		return errors.New("disk full")
	})
	ok := scheduler.SinkFunc(func(scheduler.Sample) error {
		got = append(got, "ok")
		return nil
	})

	err := Multi{failing, nil, ok}.Record(testSamples()[0])
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, []string{"failing", "ok"}, got)
}
