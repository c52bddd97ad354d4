// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/logger"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive instrument console",
	Long: `Open every configured link and accept instrument commands interactively,
for example "mfc set Argon 200" or "furnace temp". The links stay open
between commands. Type help for the command list.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "crucible> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    consoleCompleter(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// keep log output from tearing the prompt
	log = logger.NewSlog(rl.Stderr(), log.Level(), logger.Format(cfg.Log.Format))
	logger.SetDefault(log)

	st, err := openStation(allDevices)
	if err != nil {
		return err
	}
	defer st.Close()

	out := rl.Stdout()
	for _, l := range st.links {
		fmt.Fprintf(out, "Link %s\n", l)
	}
	printConsoleHelp(out)

	ctx := cmd.Context()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if done := consoleLine(ctx, out, st, fields); done {
			return nil
		}
	}
}

// consoleLine runs one console command and reports whether to exit
func consoleLine(ctx context.Context, out io.Writer, st *station, fields []string) bool {
	switch strings.ToLower(fields[0]) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		printConsoleHelp(out)
		return false
	case "stats":
		printStatistics(out, st)
		fmt.Fprintln(out)
		return false
	case "status":
		s, err := newScheduler(st)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return false
		}
		printStatus(out, s.CheckDevices(ctx))
		return false
	}

	if len(fields) < 2 {
		fmt.Fprintf(out, "unknown command %q, type help\n", fields[0])
		return false
	}
	op, ok := findOperation(strings.ToLower(fields[0]), strings.ToLower(fields[1]))
	if !ok {
		fmt.Fprintf(out, "unknown command %q, type help\n", strings.Join(fields[:2], " "))
		return false
	}
	args := fields[2:]
	if len(args) != len(op.args) {
		fmt.Fprintf(out, "usage: %s\n", op.usage())
		return false
	}

	msg, err := op.run(ctx, st, args)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return false
	}
	fmt.Fprintln(out, msg)
	return false
}

func printConsoleHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	for _, op := range operations {
		fmt.Fprintf(out, "  %-32s %s\n", op.usage(), op.short)
	}
	fmt.Fprintf(out, "  %-32s %s\n", "status", "Check which instruments answer")
	fmt.Fprintf(out, "  %-32s %s\n", "stats", "Exchange statistics per instrument")
	fmt.Fprintf(out, "  %-32s %s\n", "exit", "Leave the console")
}

func consoleCompleter() *readline.PrefixCompleter {
	gases := func(string) []string {
		return cfg.Gases().Names()
	}

	groups := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, op := range operations {
		if _, ok := groups[op.group]; !ok {
			order = append(order, op.group)
		}
		var item readline.PrefixCompleterInterface
		if len(op.args) > 0 && op.args[0] == "<gas>" {
			item = readline.PcItem(op.name, readline.PcItemDynamic(gases))
		} else {
			item = readline.PcItem(op.name)
		}
		groups[op.group] = append(groups[op.group], item)
	}

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("status"),
		readline.PcItem("stats"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	}
	for _, g := range order {
		items = append(items, readline.PcItem(g, groups[g]...))
	}
	return readline.NewPrefixCompleter(items...)
}
