// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package furnace

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Status is the controller's exception status byte
type Status byte

// Driver is the handle for the furnace controller
type Driver struct {
	link    *device.Link
	address byte
	regs    Registers
}

// New creates a driver for the controller at address
func New(bus *transport.Bus, address byte, regs Registers, opts ...device.Option) *Driver {
	return &Driver{
		link:    device.NewLink(fmt.Sprintf("furnace@%d", address), bus, opts...),
		address: address,
		regs:    regs,
	}
}

// Address returns the controller address
func (d *Driver) Address() byte {
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

// Do sends req and returns the validated reply
func (d *Driver) Do(ctx context.Context, req Request) ([]byte, error) {
	frame, err := BuildFrame(d.address, d.regs, req)
	if err != nil {
		return nil, err
	}

	var reply []byte
	err = d.link.Exchange(ctx, func(p transport.Port) error {
		resp, err := d.attempt(p, frame)
		if err != nil {
			return err
		}
		reply = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", req.Op, err)
	}
	return reply, nil
}

func (d *Driver) attempt(p transport.Port, frame Frame) ([]byte, error) {
	log := d.link.Logger()

	if err := p.Flush(); err != nil {
		return nil, err
	}
	log.Debug("sending", "device", d.link.Name(), "frame", fmt.Sprintf("% X", frame.Bytes))
	if _, err := p.Write(frame.Bytes); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	resp, err := p.ReadN(2)
	if err != nil {
		return nil, readError(resp, err)
	}

	var remaining int
	switch resp[1] {
	case frame.Function:
		remaining = frame.ResponseLength - 2
	case frame.Function | exceptionFlag:
		remaining = 3
	default:
		return nil, device.Malformed("unexpected function 0x%02X in reply to 0x%02X", resp[1], frame.Function)
	}

	rest, err := p.ReadN(remaining)
	resp = append(resp, rest...)
	if err != nil {
		return nil, readError(resp, err)
	}
	log.Debug("received", "device", d.link.Name(), "frame", fmt.Sprintf("% X", resp))

	isError, err := ValidateResponse(resp, frame.Function)
	if err != nil {
		return nil, err
	}
	if resp[0] != d.address {
		return nil, device.Malformed("reply from address %d", resp[0])
	}
	if isError {
		return nil, &device.DeviceError{
			Device: d.link.Name(),
			Op:     fmt.Sprintf("function 0x%02X", frame.Function),
			Code:   int(resp[2]),
			Reason: ExceptionName(resp[2]),
		}
	}
	return resp, nil
}

func readError(partial []byte, err error) error {
	if errors.Is(err, transport.ErrTimeout) {
		return device.NoResponse(partial)
	}
	return err
}

// SetTemperature writes the temperature setpoint in °C, rounded to the
// nearest degree
func (d *Driver) SetTemperature(ctx context.Context, celsius float64) error {
	v := math.Round(celsius)
	if v < 0 || v > MaxSetpoint || math.IsNaN(v) {
		return fmt.Errorf("setpoint %v out of range", celsius)
	}
	_, err := d.Do(ctx, Request{Op: OpSetTemperature, Value: uint16(v)})
	return err
}

// QueryTemperature reads the process temperature in °C
func (d *Driver) QueryTemperature(ctx context.Context) (float64, error) {
	resp, err := d.Do(ctx, Request{Op: OpQueryTemperature})
	if err != nil {
		return 0, err
	}
	v, err := ParseValue(resp)
	if err != nil {
		return 0, err
	}
	return float64(v), nil
}

// ReportStatus reads the controller's exception status. Any valid reply
// means the controller is communicating.
func (d *Driver) ReportStatus(ctx context.Context) (Status, error) {
	resp, err := d.Do(ctx, Request{Op: OpReportStatus})
	if err != nil {
		return 0, err
	}
	return Status(resp[2]), nil
}
