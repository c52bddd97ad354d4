// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"context"
	"fmt"

	"github.com/Thermoquad/crucible/pkg/furnace"
)

// FlowController is satisfied by *mfc.Driver
type FlowController interface {
	SetFlow(ctx context.Context, sccm float64) error
	QueryFlow(ctx context.Context) (float64, error)
	QueryOperatingMode(ctx context.Context) (string, error)
}

// Furnace is satisfied by *furnace.Driver
type Furnace interface {
	SetTemperature(ctx context.Context, celsius float64) error
	QueryTemperature(ctx context.Context) (float64, error)
	ReportStatus(ctx context.Context) (furnace.Status, error)
}

// PressureGauge is satisfied by *pressure.Driver
type PressureGauge interface {
	QueryPressure(ctx context.Context) (float64, error)
	ReportStatus(ctx context.Context) (bool, error)
}

// Devices is the set of instruments the scheduler drives. Every member is
// optional.
type Devices struct {
	Furnace  Furnace
	Pressure PressureGauge
	// Flows maps gas name to its controller
	Flows map[string]FlowController
	// Gases lists the keys of Flows in polling order
	Gases []string
}

func (d Devices) validate() error {
	if len(d.Gases) != len(d.Flows) {
		return fmt.Errorf("gas order lists %d gases but %d controllers are configured", len(d.Gases), len(d.Flows))
	}
	for _, g := range d.Gases {
		if d.Flows[g] == nil {
			return fmt.Errorf("no controller for gas %q", g)
		}
	}
	return nil
}

// Empty reports whether no device is configured
func (d Devices) Empty() bool {
	return d.Furnace == nil && d.Pressure == nil && len(d.Flows) == 0
}
