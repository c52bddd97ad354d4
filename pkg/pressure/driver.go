// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pressure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/crucible/pkg/device"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Letters selects the command letters a transducer model uses
type Letters struct {
	Pressure byte
	Status   byte
}

// DefaultLetters returns the lab transducer's command letters
func DefaultLetters() Letters {
	return Letters{Pressure: DefaultPressureLetter, Status: DefaultStatusLetter}
}

// Driver is the handle for one pressure transducer
type Driver struct {
	link    *device.Link
	address string
	letters Letters
}

// New creates a driver for the transducer at address
func New(bus *transport.Bus, address string, letters Letters, opts ...device.Option) (*Driver, error) {
	if _, err := BuildCommand(address, letters.Pressure); err != nil {
		return nil, err
	}
	if _, err := BuildCommand(address, letters.Status); err != nil {
		return nil, err
	}
	return &Driver{
		link:    device.NewLink("gauge@"+address, bus, opts...),
		address: address,
		letters: letters,
	}, nil
}

// Address returns the transducer address
func (d *Driver) Address() string {
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

// do sends letter and hands the reply body to parse inside the attempt, so
// a reading that does not parse is retried
func (d *Driver) do(ctx context.Context, letter byte, parse func(body string) error) error {
	cmd, err := BuildCommand(d.address, letter)
	if err != nil {
		return err
	}
	log := d.link.Logger()

	return d.link.Exchange(ctx, func(p transport.Port) error {
		if err := p.Flush(); err != nil {
			return err
		}
		log.Debug("sending", "device", d.link.Name(), "command", string(cmd))
		if _, err := p.Write(cmd); err != nil {
			return fmt.Errorf("write: %w", err)
		}

		raw, err := p.ReadUntil(Terminator)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return device.NoResponse(raw)
			}
			return err
		}

		response := decode(raw)
		log.Debug("received", "device", d.link.Name(), "response", response)
		if err := ValidateResponse(response, d.address); err != nil {
			return err
		}
		if parse == nil {
			return nil
		}
		return parse(Body(response, d.address))
	})
}

// decode drops anything that is not 7-bit ASCII
func decode(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return string(out)
}

// QueryPressure reads the current pressure
func (d *Driver) QueryPressure(ctx context.Context) (float64, error) {
	var pressure float64
	err := d.do(ctx, d.letters.Pressure, func(body string) error {
		v, err := ParsePressure(body)
		if err != nil {
			return fmt.Errorf("%w: %w", device.ErrMalformedFrame, err)
		}
		pressure = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("query-pressure: %w", err)
	}
	return pressure, nil
}

// ReportStatus reports whether the transducer answers a status request with
// a valid reply
func (d *Driver) ReportStatus(ctx context.Context) (bool, error) {
	if err := d.do(ctx, d.letters.Status, nil); err != nil {
		return false, fmt.Errorf("report-status: %w", err)
	}
	return true, nil
}
