// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
)

// GasTable resolves gas names and aliases (case-insensitive) to the flow
// controller metering that gas
type GasTable struct {
	mfcs  []MFC
	index map[string]int
}

// NewGasTable builds the table, rejecting any name or alias that maps to
// two controllers
func NewGasTable(mfcs []MFC) (*GasTable, error) {
	t := &GasTable{
		mfcs:  append([]MFC(nil), mfcs...),
		index: make(map[string]int),
	}

	for i, m := range t.mfcs {
		for _, name := range append([]string{m.Gas}, m.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				return nil, fmt.Errorf("empty gas name or alias for %s", m.Gas)
			}
			if j, dup := t.index[key]; dup && j != i {
				return nil, fmt.Errorf("%q names both %s and %s", name, t.mfcs[j].Gas, m.Gas)
			}
			t.index[key] = i
		}
	}
	return t, nil
}

// Lookup finds the controller for a gas name or alias
func (t *GasTable) Lookup(name string) (MFC, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return MFC{}, false
	}
	return t.mfcs[i], true
}

// Canonical returns the configured gas name for name
func (t *GasTable) Canonical(name string) (string, error) {
	m, ok := t.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown gas %q", name)
	}
	return m.Gas, nil
}

// Names returns the canonical gas names in configuration order
func (t *GasTable) Names() []string {
	names := make([]string, len(t.mfcs))
	for i, m := range t.mfcs {
		names[i] = m.Gas
	}
	return names
}

// Len returns the number of gases
func (t *GasTable) Len() int {
	return len(t.mfcs)
}
