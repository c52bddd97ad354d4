// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/device"
)

var (
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check which instruments answer",
	Long: `Ask every configured instrument for its status and report it online or
offline. The furnace is asked for its exception status, each flow controller
for its operating mode and the transducer for a status reading.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStation(allDevices)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := newScheduler(st)
	if err != nil {
		return err
	}

	statuses := s.CheckDevices(cmd.Context())
	printStatus(cmd.OutOrStdout(), statuses)

	offline := 0
	for _, ds := range statuses {
		if !ds.Online {
			offline++
		}
	}
	if offline > 0 {
		return fmt.Errorf("%d of %d instruments offline", offline, len(statuses))
	}
	return nil
}

func printStatus(w io.Writer, statuses []device.Status) {
	for _, ds := range statuses {
		state := onlineStyle.Render("online ")
		detail := ""
		if !ds.Online {
			state = offlineStyle.Render("offline")
			detail = dimStyle.Render(ds.LastError)
		}
		fmt.Fprintf(w, "  %-10s %s %s\n", ds.Name, state, detail)
	}
}
