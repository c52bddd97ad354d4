// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const benchYAML = `
ports:
  rs485:
    device: /dev/ttyUSB0
    baud: 19200
  bridge:
    device: ws://bench.local/serial
    username: lab
    timeout: 5s
mfcs:
  - gas: Argon
    address: "102"
    aliases: [Ar]
    port: rs485
  - gas: Hydrogen
    address: "104"
    aliases: [H2]
    port: rs485
furnace:
  address: 5
  port: bridge
pressure:
  address: "123"
  port: rs485
scheduler:
  tolerance: 1.5
  log_period: 2s
retry:
  max_retries: 3
  backoff: 50ms
log:
  level: debug
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(benchYAML))
	require.NoError(t, err)

	assert.Equal(t, 19200, cfg.Ports["rs485"].Baud)
	assert.Equal(t, 9600, cfg.Ports["bridge"].Baud)
	assert.Equal(t, 3*time.Second, cfg.Ports["rs485"].Timeout)
	assert.Equal(t, 5*time.Second, cfg.Ports["bridge"].Timeout)

	require.Len(t, cfg.MFCs, 2)
	assert.Equal(t, uint16(0x0077), cfg.Furnace.SetpointRegister)
	assert.Equal(t, uint16(0x0001), cfg.Furnace.ValueRegister)
	assert.Equal(t, "P", cfg.Pressure.PressureLetter)
	assert.Equal(t, "P", cfg.Pressure.StatusLetter)

	assert.Equal(t, 1.5, *cfg.Scheduler.Tolerance)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.LogPeriod)
	assert.Equal(t, DefaultRampPollPeriod, cfg.Scheduler.RampPollPeriod)
	assert.Equal(t, DefaultTick, cfg.Scheduler.Tick)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, policy.Backoff)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	ep, err := cfg.Endpoint("bridge")
	require.NoError(t, err)
	assert.Equal(t, "ws://bench.local/serial", ep.Address)
	assert.Equal(t, "lab", ep.Username)

	_, err = cfg.Endpoint("missing")
	assert.Error(t, err)
}

func TestParse_ZeroRetriesIsKept(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
ports: {p: {device: /dev/null}}
pressure: {address: "1", port: p}
retry: {max_retries: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.RetryPolicy().Attempts())
}

func TestParse_ZeroToleranceIsKept(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
ports: {p: {device: /dev/null}}
pressure: {address: "1", port: p}
scheduler: {tolerance: 0}
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Scheduler.Tolerance)
	assert.Equal(t, 0.0, *cfg.Scheduler.Tolerance)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{"unknown key", "ports: {}\nbogus: 1\n", "invalid configuration"},
		{"empty", "", "no devices configured"},
		{"unknown port", "ports: {}\nfurnace: {address: 5, port: x}\n", "unknown port"},
		{"furnace address", "ports: {p: {device: d}}\nfurnace: {address: 300, port: p}\n", "out of range"},
		{"port without device", "ports: {p: {baud: 9600}}\npressure: {address: '1', port: p}\n", "has no device"},
		{
			"duplicate address",
			"ports: {p: {device: d}}\nmfcs: [{gas: A, address: '1', port: p}, {gas: B, address: '1', port: p}]\n",
			"share address",
		},
		{
			"alias collision",
			"ports: {p: {device: d}}\nmfcs: [{gas: Argon, address: '1', aliases: [X], port: p}, {gas: Xenon, address: '2', aliases: [x], port: p}]\n",
			"names both",
		},
		{"bad letter", "ports: {p: {device: d}}\npressure: {address: '1', port: p, pressure_letter: pp}\n", "command letter"},
		{"negative tolerance", "ports: {p: {device: d}}\npressure: {address: '1', port: p}\nscheduler: {tolerance: -1}\n", "tolerance"},
		{"negative retries", "ports: {p: {device: d}}\npressure: {address: '1', port: p}\nretry: {max_retries: -1}\n", "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(benchYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Gases().Len())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, filepath.Join(dir, "missing.yaml"), le.File)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ports: [1, 2"), 0o644))
	_, err = Load(bad)
	require.ErrorAs(t, err, &le)
	assert.True(t, strings.HasPrefix(err.Error(), bad+": "))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.MFCs, 4)
	assert.Equal(t, 5, cfg.Furnace.Address)
	assert.Equal(t, "123", cfg.Pressure.Address)
	assert.Equal(t, DefaultTolerance, *cfg.Scheduler.Tolerance)
	assert.Equal(t, 6, cfg.RetryPolicy().Attempts())

	for _, m := range cfg.MFCs {
		assert.Equal(t, "mfc", m.Port, "all flow controllers share one bus")
	}
}

func TestGasTable(t *testing.T) {
	table := Default().Gases()

	tests := []struct {
		name    string
		gas     string
		address string
	}{
		{"Ethylene", "Ethylene", "101"},
		{"C2H4", "Ethylene", "101"},
		{"ar", "Argon", "102"},
		{" He ", "Helium", "103"},
		{"HYDROGEN", "Hydrogen", "104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := table.Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.gas, m.Gas)
			assert.Equal(t, tt.address, m.Address)
		})
	}

	_, ok := table.Lookup("Neon")
	assert.False(t, ok)

	_, err := table.Canonical("Neon")
	assert.Error(t, err)

	name, err := table.Canonical("h2")
	require.NoError(t, err)
	assert.Equal(t, "Hydrogen", name)

	assert.Equal(t, []string{"Ethylene", "Argon", "Helium", "Hydrogen"}, table.Names())
}

func TestNewGasTable_SelfAliasAllowed(t *testing.T) {
	_, err := NewGasTable([]MFC{{Gas: "Argon", Aliases: []string{"ARGON", "Ar"}}})
	assert.NoError(t, err)

	_, err = NewGasTable([]MFC{{Gas: "Argon", Aliases: []string{""}}})
	assert.Error(t, err)
}
