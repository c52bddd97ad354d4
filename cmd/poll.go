// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pollCount int

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Monitor every instrument without a recipe",
	Long: `Poll the furnace temperature, every gas flow and the pressure once per log
period without changing any setpoint.

Accepts the same --csv, --cbor and --tui options as run.`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().IntVarP(&pollCount, "count", "n", 0, "Stop after this many samples (0 = until Ctrl+C)")
	pollCmd.Flags().StringVar(&csvPath, "csv", "", "Write samples to a CSV file (truncated on the first sample)")
	pollCmd.Flags().StringVar(&cborPath, "cbor", "", "Archive samples to a CBOR file")
	pollCmd.Flags().BoolVar(&useTUI, "tui", false, "Show the live dashboard")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	if pollCount < 0 {
		return fmt.Errorf("--count must not be negative")
	}
	quietForDashboard()
	st, err := openStation(allDevices)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := newScheduler(st)
	if err != nil {
		return err
	}

	if !useTUI {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Crucible - Passive Monitoring\n")
		for _, l := range st.links {
			fmt.Fprintf(out, "Link %s\n", l)
		}
		fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")
	}
	return execute(cmd.Context(), s, st, false, pollCount)
}
