// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/crucible/pkg/config"
	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/furnace"
	"github.com/Thermoquad/crucible/pkg/mfc"
	"github.com/Thermoquad/crucible/pkg/pressure"
	"github.com/Thermoquad/crucible/pkg/scheduler"
	"github.com/Thermoquad/crucible/pkg/simulator"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// station is every configured instrument with its open links
type station struct {
	buses    map[string]*transport.Bus
	links    []string
	mfcs     map[string]*mfc.Driver
	furnace  *furnace.Driver
	pressure *pressure.Driver
	bench    *simulator.Bench
}

// deviceNeeds selects which instruments openStation connects
type deviceNeeds struct {
	mfcs     bool
	furnace  bool
	pressure bool
}

var allDevices = deviceNeeds{mfcs: true, furnace: true, pressure: true}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("CRUCIBLE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openStation opens the links used by the selected instruments and builds
// their drivers
func openStation(need deviceNeeds) (*station, error) {
	st := &station{
		buses: make(map[string]*transport.Bus),
		mfcs:  make(map[string]*mfc.Driver),
	}
	if simulate {
		st.bench = newBench(cfg)
	}

	password := ""
	bus := func(name string) (*transport.Bus, error) {
		if b, ok := st.buses[name]; ok {
			return b, nil
		}
		if st.bench != nil {
			b := transport.NewBus(name, st.bench.Port())
			st.buses[name] = b
			st.links = append(st.links, fmt.Sprintf("%s: simulated", name))
			return b, nil
		}

		ep, err := cfg.Endpoint(name)
		if err != nil {
			return nil, err
		}
		if transport.IsWebSocket(ep.Address) && ep.Username != "" {
			if password == "" {
				if password, err = GetPassword(); err != nil {
					return nil, err
				}
			}
			ep.Password = password
		}
		port, info, err := transport.Open(ep)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", name, err)
		}
		b := transport.NewBus(name, port)
		st.buses[name] = b
		st.links = append(st.links, fmt.Sprintf("%s: %s", name, info))
		log.Debug("link opened", "link", name, "info", info)
		return b, nil
	}

	opts := func(stats *device.Statistics) []device.Option {
		return []device.Option{
			device.WithRetryPolicy(cfg.RetryPolicy()),
			device.WithLogger(log),
			device.WithStatistics(stats),
		}
	}

	fail := func(err error) (*station, error) {
		st.Close()
		return nil, err
	}

	if need.mfcs {
		for _, m := range cfg.MFCs {
			b, err := bus(m.Port)
			if err != nil {
				return fail(err)
			}
			d, err := mfc.New(b, m.Address, opts(device.NewStatistics())...)
			if err != nil {
				return fail(fmt.Errorf("%s controller: %w", m.Gas, err))
			}
			st.mfcs[m.Gas] = d
		}
	}

	if need.furnace && cfg.Furnace != nil {
		b, err := bus(cfg.Furnace.Port)
		if err != nil {
			return fail(err)
		}
		st.furnace = furnace.New(b, byte(cfg.Furnace.Address), furnaceRegisters(cfg.Furnace), opts(device.NewStatistics())...)
	}

	if need.pressure && cfg.Pressure != nil {
		b, err := bus(cfg.Pressure.Port)
		if err != nil {
			return fail(err)
		}
		d, err := pressure.New(b, cfg.Pressure.Address, pressureLetters(cfg.Pressure), opts(device.NewStatistics())...)
		if err != nil {
			return fail(fmt.Errorf("pressure gauge: %w", err))
		}
		st.pressure = d
	}

	sort.Strings(st.links)
	return st, nil
}

func furnaceRegisters(f *config.Furnace) furnace.Registers {
	return furnace.Registers{Setpoint: f.SetpointRegister, Value: f.ValueRegister}
}

func pressureLetters(p *config.Pressure) pressure.Letters {
	return pressure.Letters{Pressure: p.PressureLetter[0], Status: p.StatusLetter[0]}
}

// newBench builds a simulator matching the configuration
func newBench(c *config.Config) *simulator.Bench {
	b := simulator.NewBench()
	for _, m := range c.MFCs {
		b.AddMFC(m.Address)
	}
	if c.Furnace != nil {
		b.SetFurnace(byte(c.Furnace.Address), furnaceRegisters(c.Furnace))
	}
	if c.Pressure != nil {
		b.SetGauge(c.Pressure.Address)
	}
	return b
}

// mfc returns the controller for a gas name or alias
func (st *station) mfc(gas string) (*mfc.Driver, error) {
	name, err := cfg.Gases().Canonical(gas)
	if err != nil {
		return nil, err
	}
	d, ok := st.mfcs[name]
	if !ok {
		return nil, fmt.Errorf("no controller for %s", name)
	}
	return d, nil
}

// devices returns the drivers in the form the scheduler takes
func (st *station) devices() scheduler.Devices {
	devs := scheduler.Devices{Flows: make(map[string]scheduler.FlowController)}
	if st.furnace != nil {
		devs.Furnace = st.furnace
	}
	if st.pressure != nil {
		devs.Pressure = st.pressure
	}
	for _, gas := range cfg.Gases().Names() {
		if d, ok := st.mfcs[gas]; ok {
			devs.Flows[gas] = d
			devs.Gases = append(devs.Gases, gas)
		}
	}
	return devs
}

// statistics returns every driver's counters by device name
func (st *station) statistics() map[string]*device.Statistics {
	out := make(map[string]*device.Statistics)
	for _, d := range st.mfcs {
		out[d.Name()] = d.Statistics()
	}
	if st.furnace != nil {
		out[st.furnace.Name()] = st.furnace.Statistics()
	}
	if st.pressure != nil {
		out[st.pressure.Name()] = st.pressure.Statistics()
	}
	return out
}

// Close closes every link
func (st *station) Close() error {
	var errs []error
	for _, b := range st.buses {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}
