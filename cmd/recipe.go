// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/recipe"
)

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Inspect recipe files",
}

var recipeShowCmd = &cobra.Command{
	Use:   "show <recipe>",
	Short: "Print a recipe's steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := recipe.Load(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if r.Author != "" {
			fmt.Fprintf(out, "Author:   %s\n", r.Author)
		}
		if r.Created != "" {
			fmt.Fprintf(out, "Created:  %s\n", r.Created)
		}
		if r.Modified != "" {
			fmt.Fprintf(out, "Modified: %s\n", r.Modified)
		}
		fmt.Fprintf(out, "Total:    %s in %d steps (ramps excluded)\n\n", r.TotalDuration(), len(r.Steps))

		gases := r.Gases()
		header := []string{"Step", "Duration"}
		if r.HasTemperature() {
			header = append(header, "Temp °C")
		}
		header = append(header, gases...)

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers(header...)
		for i, st := range r.Steps {
			row := []string{fmt.Sprint(i + 1), st.Duration.Round(time.Second).String()}
			if r.HasTemperature() {
				row = append(row, fmt.Sprint(st.Temperature))
			}
			for _, g := range gases {
				row = append(row, fmt.Sprint(st.Flows[g]))
			}
			t.Row(row...)
		}
		_, err = fmt.Fprintln(out, t.Render())
		return err
	},
}

var recipeCheckCmd = &cobra.Command{
	Use:   "check <recipe>...",
	Short: "Validate recipes against the configured instruments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			if err := checkRecipe(path); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d recipes invalid", failed, len(args))
		}
		return nil
	},
}

// checkRecipe loads path and confirms every column has an instrument
func checkRecipe(path string) error {
	r, err := loadRecipe(path)
	if err != nil {
		return err
	}
	if r.HasTemperature() && cfg.Furnace == nil {
		return fmt.Errorf("sets a temperature but no furnace is configured")
	}
	return nil
}

func init() {
	recipeCmd.AddCommand(recipeShowCmd, recipeCheckCmd)
	rootCmd.AddCommand(recipeCmd)
}
