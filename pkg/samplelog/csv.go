// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package samplelog persists scheduler samples.
//
// CSVWriter produces the run log read by spreadsheets: a header row of
// "Time" followed by the field names, then one row per sample with the
// elapsed time in seconds. CBORRecorder keeps a lossless archive that
// Reader replays.
package samplelog

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/Thermoquad/crucible/pkg/scheduler"
)

// TimeColumn heads the elapsed time column
const TimeColumn = "Time"

// CSVWriter writes samples as comma separated rows. It is safe for
// concurrent use.
type CSVWriter struct {
	mu      sync.Mutex
	path    string
	fields  []string
	file    *os.File
	w       *csv.Writer
	started bool
	closed  bool
}

// NewCSVFile creates a writer for path. The file is truncated when the
// first sample arrives, not before, so a run that never samples leaves an
// existing log in place.
func NewCSVFile(path string, fields []string) *CSVWriter {
	return &CSVWriter{path: path, fields: append([]string(nil), fields...)}
}

// NewCSVWriter creates a writer on w
func NewCSVWriter(w io.Writer, fields []string) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), fields: append([]string(nil), fields...)}
}

// Header returns the header row
func (c *CSVWriter) Header() []string {
	return append([]string{TimeColumn}, c.fields...)
}

// Record writes one row, preceded by the header on the first call
func (c *CSVWriter) Record(s scheduler.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return os.ErrClosed
	}
	if !c.started {
		if c.w == nil {
			f, err := os.OpenFile(c.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			c.file = f
			c.w = csv.NewWriter(f)
		}
		if err := c.w.Write(c.Header()); err != nil {
			return err
		}
		c.started = true
	}

	row := make([]string, 0, len(c.fields)+1)
	row = append(row, strconv.FormatFloat(s.Elapsed.Seconds(), 'f', 3, 64))
	for _, f := range c.fields {
		if v, ok := s.Values[f]; ok {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file, if one was opened
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.w != nil {
		c.w.Flush()
		err = c.w.Error()
	}
	if c.file != nil {
		err = errors.Join(err, c.file.Close())
	}
	return err
}

var _ scheduler.Sink = (*CSVWriter)(nil)
