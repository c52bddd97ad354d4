// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"errors"

	"github.com/Thermoquad/crucible/pkg/scheduler"
)

// Multi records every sample to each sink in turn. Every sink sees every
// sample even when an earlier one fails.
type Multi []scheduler.Sink

// Record implements scheduler.Sink
func (m Multi) Record(s scheduler.Sample) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
