// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/samplelog"
	"github.com/Thermoquad/crucible/pkg/scheduler"
)

var (
	dumpRun string
	dumpCSV bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Work with archived sample logs",
}

var logDumpCmd = &cobra.Command{
	Use:   "dump <file.cbor>",
	Short: "Print the samples in a CBOR archive",
	Long: `Print every sample recorded with run --cbor. Archives can hold several
runs; --run selects one by its identifier. --csv prints the same rows the
--csv option of run would have written.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogDump,
}

func init() {
	logDumpCmd.Flags().StringVar(&dumpRun, "run", "", "Only samples from this run")
	logDumpCmd.Flags().BoolVar(&dumpCSV, "csv", false, "Print CSV rows")
	logCmd.AddCommand(logDumpCmd)
	rootCmd.AddCommand(logCmd)
}

func runLogDump(cmd *cobra.Command, args []string) error {
	r, err := samplelog.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()
	if dumpRun != "" {
		r.FilterRun(dumpRun)
	}

	samples, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("%s: no samples", args[0])
	}
	fields := sampleFields(samples)
	out := cmd.OutOrStdout()

	if dumpCSV {
		w := samplelog.NewCSVWriter(out, fields)
		for _, s := range samples {
			if err := w.Record(s); err != nil {
				return err
			}
		}
		return w.Close()
	}

	dumpSamples(out, samples, fields)
	return nil
}

// sampleFields collects every field seen in samples, in a stable order
func sampleFields(samples []scheduler.Sample) []string {
	seen := map[string]bool{}
	var gases []string
	for _, s := range samples {
		for _, f := range append(keys(s.Values), s.Missing...) {
			if seen[f] {
				continue
			}
			seen[f] = true
			if f != scheduler.TagTemperature && f != scheduler.TagPressure {
				gases = append(gases, f)
			}
		}
	}
	sort.Strings(gases)

	var fields []string
	if seen[scheduler.TagTemperature] {
		fields = append(fields, scheduler.TagTemperature)
	}
	fields = append(fields, gases...)
	if seen[scheduler.TagPressure] {
		fields = append(fields, scheduler.TagPressure)
	}
	return fields
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func dumpSamples(w io.Writer, samples []scheduler.Sample, fields []string) {
	run := ""
	for _, s := range samples {
		if s.RunID != run {
			run = s.RunID
			fmt.Fprintf(w, "Run %s started %s\n", run, s.Time.Add(-s.Elapsed).Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "%-5s %s\n", "Step", formatHeader(fields))
		}
		fmt.Fprintf(w, "%-5d %s\n", s.Step, formatSample(s, fields))
	}
}
