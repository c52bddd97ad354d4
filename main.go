// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Crucible - CVD furnace controller
//
// A CLI tool for running deposition recipes against a tube furnace, mass
// flow controllers and a pressure transducer.

package main

import (
	"os"

	"github.com/Thermoquad/crucible/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
