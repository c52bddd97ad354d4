// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/recipe"
	"github.com/Thermoquad/crucible/pkg/samplelog"
	"github.com/Thermoquad/crucible/pkg/scheduler"
)

var (
	csvPath  string
	cborPath string
	useTUI   bool
	skipScan bool
)

var runCmd = &cobra.Command{
	Use:   "run <recipe>",
	Short: "Run a recipe",
	Long: `Run a deposition recipe to completion.

Every instrument is asked for its status first. Each step then writes its
setpoints, waits for the furnace to come within tolerance of the step
temperature and logs one sample per log period for the step duration.

Samples are printed to stdout, and written to --csv and --cbor when given.
Ctrl+C stops the run after the current instrument exchange; setpoints are
left as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecipe,
}

func init() {
	runCmd.Flags().StringVar(&csvPath, "csv", "", "Write samples to a CSV file (truncated on the first sample)")
	runCmd.Flags().StringVar(&cborPath, "cbor", "", "Archive samples to a CBOR file")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "Show the live dashboard")
	runCmd.Flags().BoolVar(&skipScan, "no-check", false, "Skip the device status check")
	rootCmd.AddCommand(runCmd)
}

func runRecipe(cmd *cobra.Command, args []string) error {
	r, err := loadRecipe(args[0])
	if err != nil {
		return err
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
	if err := s.Start(r); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !useTUI {
		fmt.Fprintf(out, "Crucible - Recipe %s\n", args[0])
		fmt.Fprintf(out, "Recipe: %s\n", r)
		for _, l := range st.links {
			fmt.Fprintf(out, "Link %s\n", l)
		}
		fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")
	}

	return execute(cmd.Context(), s, st, !skipScan, 0)
}

// loadRecipe reads a recipe and maps its gas columns onto configured gases
func loadRecipe(path string) (*recipe.Recipe, error) {
	r, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}
	if err := r.RenameGases(cfg.Gases().Canonical); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	return r, nil
}

func newScheduler(st *station) (*scheduler.Scheduler, error) {
	sc := cfg.Scheduler
	return scheduler.New(st.devices(), scheduler.Config{
		Tolerance:      *sc.Tolerance,
		LogPeriod:      sc.LogPeriod,
		RampPollPeriod: sc.RampPollPeriod,
	}, scheduler.WithLogger(log))
}

// execute checks the devices, attaches the sinks and runs s until it
// finishes, limit samples are recorded (when positive) or the user
// interrupts
func execute(parent context.Context, s *scheduler.Scheduler, st *station, check bool, limit int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sinks, closers, err := openSinks(s.Fields())
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Error("failed to close sample log", "err", err)
			}
		}
	}()

	if limit > 0 {
		n := 0
		sinks = append(sinks, scheduler.SinkFunc(func(scheduler.Sample) error {
			if n++; n >= limit {
				s.Stop()
			}
			return nil
		}))
	}

	if useTUI {
		return runDashboard(ctx, s, st, sinks, check)
	}

	out := os.Stdout
	if check {
		printStatus(out, s.CheckDevices(ctx))
		fmt.Fprintln(out)
	}

	fields := s.Fields()
	fmt.Fprintln(out, formatHeader(fields))
	sinks = append(sinks, scheduler.SinkFunc(func(smp scheduler.Sample) error {
		_, err := fmt.Fprintln(out, formatSample(smp, fields))
		return err
	}))
	s.OnEvent(func(ev scheduler.Event) {
		switch ev.Kind {
		case scheduler.EventStep, scheduler.EventComplete, scheduler.EventSetFailed:
			fmt.Fprintf(out, "-- %s\n", ev)
		}
	})

	err = runWith(ctx, s, sinks)
	printStatistics(out, st)
	return err
}

// runWith runs s until it finishes. An interrupt stops the scheduler and is
// not an error.
func runWith(ctx context.Context, s *scheduler.Scheduler, sinks samplelog.Multi) error {
	s.SetSink(sinks)
	err := s.Run(ctx, cfg.Scheduler.Tick)
	switch {
	case errors.Is(err, context.Canceled):
		s.Stop()
		return nil
	case errors.Is(err, scheduler.ErrStopped):
		return nil
	}
	return err
}

// openSinks creates the file sinks requested on the command line
func openSinks(fields []string) (samplelog.Multi, []io.Closer, error) {
	var sinks samplelog.Multi
	var closers []io.Closer
	if csvPath != "" {
		w := samplelog.NewCSVFile(csvPath, fields)
		sinks = append(sinks, w)
		closers = append(closers, w)
	}
	if cborPath != "" {
		rec, err := samplelog.CreateCBOR(cborPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, rec)
		closers = append(closers, rec)
	}
	return sinks, closers, nil
}

func formatHeader(fields []string) string {
	cols := []string{fmt.Sprintf("%-9s", "Elapsed"), fmt.Sprintf("%-8s", "Phase")}
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%12s", f))
	}
	return strings.Join(cols, " ")
}

func formatSample(s scheduler.Sample, fields []string) string {
	cols := []string{
		fmt.Sprintf("%-9s", s.Elapsed.Round(time.Second)),
		fmt.Sprintf("%-8s", s.Phase),
	}
	for _, f := range fields {
		if v, ok := s.Values[f]; ok {
			cols = append(cols, fmt.Sprintf("%12.4g", v))
		} else {
			cols = append(cols, fmt.Sprintf("%12s", "--"))
		}
	}
	return strings.Join(cols, " ")
}

func printStatistics(w io.Writer, st *station) {
	stats := st.statistics()
	names := make([]string, 0, len(stats))
	for n := range stats {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if stats[n].Snapshot().Attempts == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n%s", n, stats[n])
	}
}
