// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recipe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Metadata line prefixes
const (
	authorPrefix   = "#Author:"
	createdPrefix  = "#Creation Date:"
	modifiedPrefix = "#Last Modified:"
	columnsPrefix  = "#Columns:"
)

// LoadError reports a recipe that could not be read or is invalid
type LoadError struct {
	// File is the path to the file that failed to load
	File string

	// Line is the line number where the error occurred (0 if unknown)
	Line int

	// Message describes the error
	Message string

	// Cause is the underlying error, if any
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	prefix := e.File
	if prefix == "" {
		prefix = "recipe"
	}
	if e.Line > 0 {
		return prefix + ":" + strconv.Itoa(e.Line) + ": " + msg
	}
	return prefix + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse reads a recipe
func Parse(r io.Reader) (*Recipe, error) {
	rec := &Recipe{}
	scanner := bufio.NewScanner(r)
	lineNum := 0

	fail := func(format string, args ...interface{}) error {
		return &LoadError{Line: lineNum, Message: fmt.Sprintf(format, args...)}
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, authorPrefix):
				rec.Author = strings.TrimSpace(line[len(authorPrefix):])
			case strings.HasPrefix(line, createdPrefix):
				rec.Created = strings.TrimSpace(line[len(createdPrefix):])
			case strings.HasPrefix(line, modifiedPrefix):
				rec.Modified = strings.TrimSpace(line[len(modifiedPrefix):])
			case strings.HasPrefix(line, columnsPrefix):
				if rec.Columns != nil {
					return nil, fail("duplicate %s line", columnsPrefix)
				}
				columns, err := parseColumns(line[len(columnsPrefix):])
				if err != nil {
					return nil, fail("%v", err)
				}
				rec.Columns = columns
			}
			continue
		}

		if rec.Columns == nil {
			return nil, fail("step before %s line", columnsPrefix)
		}
		step, err := parseStep(rec.Columns, line)
		if err != nil {
			return nil, fail("%v", err)
		}
		rec.Steps = append(rec.Steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Message: "failed to read recipe", Cause: err}
	}

	if rec.Columns == nil {
		return nil, &LoadError{Message: "missing " + columnsPrefix + " line"}
	}
	if len(rec.Steps) == 0 {
		return nil, &LoadError{Message: "recipe has no steps"}
	}
	return rec, nil
}

// Load reads a recipe file
func Load(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to open file", Cause: err}
	}
	defer f.Close()

	rec, err := Parse(f)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return rec, nil
}

func parseColumns(text string) ([]string, error) {
	columns := strings.Split(text, ",")
	seen := make(map[string]bool)
	temps := 0
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("empty column name at position %d", i+1)
		}
		key := strings.ToLower(c)
		if seen[key] {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[key] = true

		switch {
		case isTime(c):
			if i != 0 {
				return nil, fmt.Errorf("%s must be the first column", TimeColumn)
			}
			c = TimeColumn
		case isTemperature(c):
			temps++
			c = TemperatureColumn
		}
		columns[i] = c
	}

	if !isTime(columns[0]) {
		return nil, fmt.Errorf("first column must be %s, got %q", TimeColumn, columns[0])
	}
	if temps > 1 {
		return nil, fmt.Errorf("more than one %s column", TemperatureColumn)
	}
	return columns, nil
}

func parseStep(columns []string, line string) (Step, error) {
	cells := strings.Split(line, ",")
	if len(cells) != len(columns) {
		return Step{}, fmt.Errorf("row has %d values, expected %d", len(cells), len(columns))
	}

	step := Step{Flows: make(map[string]float64)}
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Step{}, fmt.Errorf("%s value %q is not a number", columns[i], strings.TrimSpace(cell))
		}
		if v < 0 {
			return Step{}, fmt.Errorf("%s value %v is negative", columns[i], v)
		}

		switch c := columns[i]; {
		case isTime(c):
			if v == 0 {
				return Step{}, fmt.Errorf("step duration must be positive")
			}
			step.Duration = seconds(v)
		case isTemperature(c):
			step.Temperature = v
			step.HasTemperature = true
		default:
			step.Flows[c] = v
		}
	}
	return step, nil
}
