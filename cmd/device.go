// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// operation is a one-shot instrument command, available both on the command
// line and in the console
type operation struct {
	group string
	name  string
	args  []string
	short string
	needs deviceNeeds
	run   func(ctx context.Context, st *station, args []string) (string, error)
}

func (op operation) usage() string {
	return strings.TrimSpace(op.group + " " + op.name + " " + strings.Join(op.args, " "))
}

var (
	needMFCs     = deviceNeeds{mfcs: true}
	needFurnace  = deviceNeeds{furnace: true}
	needPressure = deviceNeeds{pressure: true}
)

var operations = []operation{
	{
		group: "mfc", name: "set", args: []string{"<gas>", "<sccm>"},
		short: "Set a gas flow setpoint",
		needs: needMFCs,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			d, err := st.mfc(args[0])
			if err != nil {
				return "", err
			}
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return "", fmt.Errorf("invalid flow %q", args[1])
			}
			if err := d.SetFlow(ctx, v); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s set to %v sccm", d.Name(), v), nil
		},
	},
	{
		group: "mfc", name: "flow", args: []string{"<gas>"},
		short: "Read a measured gas flow",
		needs: needMFCs,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			d, err := st.mfc(args[0])
			if err != nil {
				return "", err
			}
			v, err := d.QueryFlow(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %v sccm", d.Name(), v), nil
		},
	},
	{
		group: "mfc", name: "mode", args: []string{"<gas>"},
		short: "Read a controller's operating mode",
		needs: needMFCs,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			d, err := st.mfc(args[0])
			if err != nil {
				return "", err
			}
			mode, err := d.QueryOperatingMode(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %s", d.Name(), mode), nil
		},
	},
	{
		group: "mfc", name: "address", args: []string{"<gas>", "<new-address>"},
		short: "Move a controller to a new address",
		needs: needMFCs,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			d, err := st.mfc(args[0])
			if err != nil {
				return "", err
			}
			old := d.Name()
			if err := d.ChangeAddress(ctx, args[1]); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s is now %s; update the configuration to match", old, d.Name()), nil
		},
	},
	{
		group: "furnace", name: "set", args: []string{"<celsius>"},
		short: "Set the furnace temperature setpoint",
		needs: needFurnace,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			if st.furnace == nil {
				return "", errNoFurnace
			}
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return "", fmt.Errorf("invalid temperature %q", args[0])
			}
			if err := st.furnace.SetTemperature(ctx, v); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s setpoint %v °C", st.furnace.Name(), v), nil
		},
	},
	{
		group: "furnace", name: "temp",
		short: "Read the furnace temperature",
		needs: needFurnace,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			if st.furnace == nil {
				return "", errNoFurnace
			}
			v, err := st.furnace.QueryTemperature(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %v °C", st.furnace.Name(), v), nil
		},
	},
	{
		group: "furnace", name: "status",
		short: "Read the furnace exception status",
		needs: needFurnace,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			if st.furnace == nil {
				return "", errNoFurnace
			}
			status, err := st.furnace.ReportStatus(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: status 0x%02X", st.furnace.Name(), byte(status)), nil
		},
	},
	{
		group: "pressure", name: "read",
		short: "Read the chamber pressure",
		needs: needPressure,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			if st.pressure == nil {
				return "", errNoGauge
			}
			v, err := st.pressure.QueryPressure(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %g torr", st.pressure.Name(), v), nil
		},
	},
	{
		group: "pressure", name: "status",
		short: "Check that the transducer answers",
		needs: needPressure,
		run: func(ctx context.Context, st *station, args []string) (string, error) {
			if st.pressure == nil {
				return "", errNoGauge
			}
			if _, err := st.pressure.ReportStatus(ctx); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: online", st.pressure.Name()), nil
		},
	},
}

var (
	errNoFurnace = fmt.Errorf("no furnace configured")
	errNoGauge   = fmt.Errorf("no pressure transducer configured")
)

var groupShort = map[string]string{
	"mfc":      "Mass flow controller commands",
	"furnace":  "Furnace controller commands",
	"pressure": "Pressure transducer commands",
}

func init() {
	groups := map[string]*cobra.Command{}
	for _, op := range operations {
		parent, ok := groups[op.group]
		if !ok {
			parent = &cobra.Command{Use: op.group, Short: groupShort[op.group]}
			groups[op.group] = parent
			rootCmd.AddCommand(parent)
		}

		op := op
		parent.AddCommand(&cobra.Command{
			Use:   strings.TrimSpace(op.name + " " + strings.Join(op.args, " ")),
			Short: op.short,
			Args:  cobra.ExactArgs(len(op.args)),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := openStation(op.needs)
				if err != nil {
					return err
				}
				defer st.Close()

				msg, err := op.run(cmd.Context(), st, args)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		})
	}
}

// findOperation looks up "group name" in the operation table
func findOperation(group, name string) (operation, bool) {
	for _, op := range operations {
		if op.group == group && op.name == name {
			return op, true
		}
	}
	return operation{}, false
}
