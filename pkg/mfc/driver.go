// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mfc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Driver is the handle for one flow controller on a shared bus
type Driver struct {
	link *device.Link

	mu      sync.RWMutex
	address string
}

// New creates a driver for the controller at address
func New(bus *transport.Bus, address string, opts ...device.Option) (*Driver, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	return &Driver{
		link:    device.NewLink(linkName(address), bus, opts...),
		address: address,
	}, nil
}

func linkName(address string) string {
	return "mfc@" + address
}

// Address returns the address commands are currently sent to
func (d *Driver) Address() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.address
}

// Name returns the name used in logs and errors
func (d *Driver) Name() string {
	return d.link.Name()
}

// Statistics returns the driver's exchange counters
func (d *Driver) Statistics() *device.Statistics {
	return d.link.Statistics()
}

// Do sends c and returns the reply payload. Invalid replies are resent
// under the retry policy.
func (d *Driver) Do(ctx context.Context, c Command) (string, error) {
	return d.do(ctx, c, nil)
}

// do sends c and hands the payload to check inside the attempt, so a reply
// whose payload does not parse is retried like any other bad frame
func (d *Driver) do(ctx context.Context, c Command, check func(payload string) error) (string, error) {
	frame, err := BuildCommand(d.Address(), c)
	if err != nil {
		return "", err
	}

	log := d.link.Logger()
	var payload string
	err = d.link.Exchange(ctx, func(p transport.Port) error {
		log.Debug("sending", "device", d.link.Name(), "frame", string(frame))
		resp, err := d.attempt(p, frame)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(resp); err != nil {
				return err
			}
		}
		payload = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%v: %w", c.Op, err)
	}
	return payload, nil
}

func (d *Driver) attempt(p transport.Port, frame []byte) (string, error) {
	if err := p.Flush(); err != nil {
		return "", err
	}
	if _, err := p.Write(frame); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	raw, err := p.ReadUntil(Terminator)
	if err != nil {
		return "", readError(raw, err)
	}
	tail, err := p.ReadN(ChecksumLength)
	raw = append(raw, tail...)
	if err != nil {
		return "", readError(raw, err)
	}

	response := Resync(raw)
	d.link.Logger().Debug("received", "device", d.link.Name(), "raw", string(raw), "response", response)

	if err := ValidateResponse(response); err != nil {
		var devErr *device.DeviceError
		if errors.As(err, &devErr) {
			devErr.Device = d.link.Name()
		}
		return "", err
	}
	return ParsePayload(response)
}

func readError(partial []byte, err error) error {
	if errors.Is(err, transport.ErrTimeout) {
		return device.NoResponse(partial)
	}
	return err
}

// SetFlow sets the flow setpoint in sccm
func (d *Driver) SetFlow(ctx context.Context, sccm float64) error {
	if sccm < 0 {
		return fmt.Errorf("negative flow setpoint %v", sccm)
	}
	_, err := d.Do(ctx, SetFlow(sccm))
	return err
}

// QueryFlow reads the measured flow in sccm
func (d *Driver) QueryFlow(ctx context.Context) (float64, error) {
	var flow float64
	_, err := d.do(ctx, QueryFlow(), func(payload string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
		if err != nil {
			return device.Malformed("flow %q is not a number", payload)
		}
		flow = v
		return nil
	})
	return flow, err
}

// QueryOperatingMode reads the controller's operating mode
func (d *Driver) QueryOperatingMode(ctx context.Context) (string, error) {
	return d.Do(ctx, QueryMode())
}

// ChangeAddress moves the controller to a new address. On success the
// driver addresses the controller at its new address.
func (d *Driver) ChangeAddress(ctx context.Context, address string) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	if _, err := d.Do(ctx, ChangeAddress(address)); err != nil {
		return err
	}

	d.mu.Lock()
	d.address = address
	d.mu.Unlock()
	d.link.Rename(linkName(address))
	return nil
}
