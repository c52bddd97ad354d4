// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bench description: which physical links exist,
// which instruments sit on them, and the process and retry tuning.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Defaults
const (
	DefaultTolerance      = 2.0
	DefaultLogPeriod      = time.Second
	DefaultRampPollPeriod = 3 * time.Second
	DefaultTick           = 100 * time.Millisecond
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config is the complete bench description
type Config struct {
	Ports     map[string]Port `yaml:"ports"`
	MFCs      []MFC           `yaml:"mfcs"`
	Furnace   *Furnace        `yaml:"furnace"`
	Pressure  *Pressure       `yaml:"pressure"`
	Scheduler Scheduler       `yaml:"scheduler"`
	Retry     Retry           `yaml:"retry"`
	Log       Log             `yaml:"log"`

	gases *GasTable
}

// Port is one physical link
type Port struct {
	// Device is a serial device path or a ws:// or wss:// bridge URL
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	Timeout    time.Duration `yaml:"timeout"`
	Username   string        `yaml:"username"`
	SkipVerify bool          `yaml:"skip_verify"`
}

// MFC is one mass-flow controller and the gas it meters
type MFC struct {
	Gas     string   `yaml:"gas"`
	Address string   `yaml:"address"`
	Aliases []string `yaml:"aliases"`
	Port    string   `yaml:"port"`
}

// Furnace is the tube furnace controller
type Furnace struct {
	Address          int    `yaml:"address"`
	Port             string `yaml:"port"`
	SetpointRegister uint16 `yaml:"setpoint_register"`
	ValueRegister    uint16 `yaml:"value_register"`
}

// Pressure is the pressure transducer
type Pressure struct {
	Address        string `yaml:"address"`
	Port           string `yaml:"port"`
	PressureLetter string `yaml:"pressure_letter"`
	StatusLetter   string `yaml:"status_letter"`
}

// Scheduler tunes the process loop
type Scheduler struct {
	// Tolerance is how close (°C) the furnace must be to its setpoint to
	// end a ramp. Zero requires an exact match.
	Tolerance      *float64      `yaml:"tolerance"`
	LogPeriod      time.Duration `yaml:"log_period"`
	RampPollPeriod time.Duration `yaml:"ramp_poll_period"`
	Tick           time.Duration `yaml:"tick"`
}

// Retry tunes the driver resend loop
type Retry struct {
	MaxRetries *int          `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

// Log configures the logger
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadError reports a configuration that could not be read or is invalid
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
	switch {
	case e.File != "" && e.Line > 0:
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + msg
	case e.File != "":
		return e.File + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default reproduces the lab bench: four flow controllers on one RS-485
// bus, the furnace at address 5 and the transducer at 123
func Default() *Config {
	cfg := &Config{
		Ports: map[string]Port{
			"mfc":     {Device: "/dev/ttyUSB0"},
			"furnace": {Device: "/dev/ttyUSB1"},
			"gauge":   {Device: "/dev/ttyUSB2"},
		},
		MFCs: []MFC{
			{Gas: "Ethylene", Address: "101", Aliases: []string{"C2H4"}, Port: "mfc"},
			{Gas: "Argon", Address: "102", Aliases: []string{"Ar"}, Port: "mfc"},
			{Gas: "Helium", Address: "103", Aliases: []string{"He"}, Port: "mfc"},
			{Gas: "Hydrogen", Address: "104", Aliases: []string{"H2"}, Port: "mfc"},
		},
		Furnace:  &Furnace{Address: 5, Port: "furnace"},
		Pressure: &Pressure{Address: "123", Port: "gauge"},
	}
	if err := cfg.finish(); err != nil {
		panic(err)
	}
	return cfg
}

// Parse decodes and validates a YAML configuration. Unknown keys are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		le := &LoadError{Message: "failed to parse YAML", Cause: err}
		var te *yaml.TypeError
		if errors.As(err, &te) {
			le.Message = "invalid configuration"
		}
		return nil, le
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// finish fills defaults, validates and builds the gas table
func (c *Config) finish() error {
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	gases, err := NewGasTable(c.MFCs)
	if err != nil {
		return &LoadError{Message: "invalid gas table", Cause: err}
	}
	c.gases = gases
	return nil
}

func (c *Config) applyDefaults() {
	for name, p := range c.Ports {
		if p.Baud == 0 {
			p.Baud = transport.DefaultBaudRate
		}
		if p.Timeout == 0 {
			p.Timeout = transport.DefaultTimeout
		}
		c.Ports[name] = p
	}

	if f := c.Furnace; f != nil {
		if f.SetpointRegister == 0 {
			f.SetpointRegister = 0x0077
		}
		if f.ValueRegister == 0 {
			f.ValueRegister = 0x0001
		}
	}
	if p := c.Pressure; p != nil {
		if p.PressureLetter == "" {
			p.PressureLetter = "P"
		}
		if p.StatusLetter == "" {
			p.StatusLetter = p.PressureLetter
		}
	}

	s := &c.Scheduler
	if s.Tolerance == nil {
		tol := DefaultTolerance
		s.Tolerance = &tol
	}
	if s.LogPeriod == 0 {
		s.LogPeriod = DefaultLogPeriod
	}
	if s.RampPollPeriod == 0 {
		s.RampPollPeriod = DefaultRampPollPeriod
	}
	if s.Tick == 0 {
		s.Tick = DefaultTick
	}

	if c.Retry.MaxRetries == nil {
		n := device.DefaultMaxRetries
		c.Retry.MaxRetries = &n
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks cross references and ranges
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return &LoadError{Message: fmt.Sprintf(format, args...)}
	}

	if len(c.MFCs) == 0 && c.Furnace == nil && c.Pressure == nil {
		return invalid("no devices configured")
	}

	for name, p := range c.Ports {
		if p.Device == "" {
			return invalid("port %q has no device", name)
		}
		if p.Baud < 0 {
			return invalid("port %q has negative baud rate", name)
		}
	}

	seen := map[string]string{}
	for _, m := range c.MFCs {
		if m.Gas == "" {
			return invalid("flow controller at address %q has no gas", m.Address)
		}
		if m.Address == "" {
			return invalid("flow controller for %s has no address", m.Gas)
		}
		if _, ok := c.Ports[m.Port]; !ok {
			return invalid("flow controller for %s references unknown port %q", m.Gas, m.Port)
		}
		key := m.Port + "/" + m.Address
		if other, dup := seen[key]; dup {
			return invalid("%s and %s share address %s on port %s", other, m.Gas, m.Address, m.Port)
		}
		seen[key] = m.Gas
	}

	if f := c.Furnace; f != nil {
		if f.Address < 1 || f.Address > 247 {
			return invalid("furnace address %d out of range 1-247", f.Address)
		}
		if _, ok := c.Ports[f.Port]; !ok {
			return invalid("furnace references unknown port %q", f.Port)
		}
	}

	if p := c.Pressure; p != nil {
		if p.Address == "" {
			return invalid("pressure transducer has no address")
		}
		if _, ok := c.Ports[p.Port]; !ok {
			return invalid("pressure transducer references unknown port %q", p.Port)
		}
		for _, l := range []string{p.PressureLetter, p.StatusLetter} {
			if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
				return invalid("pressure command letter %q must be one upper-case letter", l)
			}
		}
	}

	s := c.Scheduler
	if s.Tolerance != nil && *s.Tolerance < 0 {
		return invalid("scheduler tolerance must not be negative")
	}
	if s.LogPeriod < 0 || s.RampPollPeriod < 0 || s.Tick < 0 {
		return invalid("scheduler periods must be positive")
	}

	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return invalid("retry max_retries must not be negative")
	}
	if c.Retry.Backoff < 0 {
		return invalid("retry backoff must not be negative")
	}
	return nil
}

// Gases returns the validated gas alias table
func (c *Config) Gases() *GasTable {
	return c.gases
}

// RetryPolicy returns the configured driver retry policy
func (c *Config) RetryPolicy() device.RetryPolicy {
	p := device.DefaultRetryPolicy()
	if c.Retry.MaxRetries != nil {
		p.MaxRetries = *c.Retry.MaxRetries
	}
	p.Backoff = c.Retry.Backoff
	return p
}

// Endpoint returns the transport endpoint for the named port
func (c *Config) Endpoint(name string) (transport.Endpoint, error) {
	p, ok := c.Ports[name]
	if !ok {
		return transport.Endpoint{}, fmt.Errorf("unknown port %q", name)
	}
	return transport.Endpoint{
		Address:    p.Device,
		BaudRate:   p.Baud,
		Timeout:    p.Timeout,
		Username:   p.Username,
		SkipVerify: p.SkipVerify,
	}, nil
}
