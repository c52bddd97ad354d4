// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/furnace"
	"github.com/Thermoquad/crucible/pkg/mfc"
	"github.com/Thermoquad/crucible/pkg/pressure"
)

var (
	frameFurnaceAddress  int
	framePressureAddress string
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Print request frames without sending them",
	Long: `Build the exact bytes a driver would send, with checksums, for checking
against a serial sniffer or an instrument manual. Nothing is opened.`,
}

var frameMFCCmd = &cobra.Command{
	Use:   "mfc <address> <set|flow|mode|address> [value]",
	Short: "Flow controller command frame",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var c mfc.Command
		switch args[1] {
		case "set":
			if len(args) < 3 {
				return fmt.Errorf("set needs a flow value")
			}
			v, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid flow %q", args[2])
			}
			c = mfc.SetFlow(v)
		case "flow":
			c = mfc.QueryFlow()
		case "mode":
			c = mfc.QueryMode()
		case "address":
			if len(args) < 3 {
				return fmt.Errorf("address needs the new address")
			}
			c = mfc.ChangeAddress(args[2])
		default:
			return fmt.Errorf("unknown operation %q", args[1])
		}

		frame, err := mfc.BuildCommand(args[0], c)
		if err != nil {
			return err
		}
		cs := frame[len(frame)-mfc.ChecksumLength:]
		fmt.Fprintf(cmd.OutOrStdout(), "%s\nchecksum %s\n", frame, cs)
		return nil
	},
}

var frameFurnaceCmd = &cobra.Command{
	Use:   "furnace <set|temp|status> [celsius]",
	Short: "Furnace request frame",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req furnace.Request
		switch args[0] {
		case "set":
			if len(args) < 2 {
				return fmt.Errorf("set needs a temperature")
			}
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil || v < 0 || math.Round(v) > furnace.MaxSetpoint {
				return fmt.Errorf("invalid temperature %q", args[1])
			}
			req = furnace.Request{Op: furnace.OpSetTemperature, Value: uint16(math.Round(v))}
		case "temp":
			req = furnace.Request{Op: furnace.OpQueryTemperature}
		case "status":
			req = furnace.Request{Op: furnace.OpReportStatus}
		default:
			return fmt.Errorf("unknown operation %q", args[0])
		}
		if frameFurnaceAddress < 1 || frameFurnaceAddress > 247 {
			return fmt.Errorf("address %d out of range 1-247", frameFurnaceAddress)
		}

		regs := furnace.DefaultRegisters()
		if cfg.Furnace != nil {
			regs = furnaceRegisters(cfg.Furnace)
		}
		f, err := furnace.BuildFrame(byte(frameFurnaceAddress), regs, req)
		if err != nil {
			return err
		}
		n := len(f.Bytes)
		fmt.Fprintf(cmd.OutOrStdout(), "% X\ncrc %02X %02X, reply %d bytes\n", f.Bytes, f.Bytes[n-2], f.Bytes[n-1], f.ResponseLength)
		return nil
	},
}

var frameCRCCmd = &cobra.Command{
	Use:   "crc <hex bytes>...",
	Short: "Furnace CRC of arbitrary bytes, low byte first",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := furnace.ChecksumHex(strings.Join(args, ""))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cs)
		return nil
	},
}

var framePressureCmd = &cobra.Command{
	Use:   "pressure [letter]",
	Short: "Transducer command frame",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		letter := byte(pressure.DefaultPressureLetter)
		if len(args) == 1 {
			if len(args[0]) != 1 {
				return fmt.Errorf("letter must be a single character")
			}
			letter = args[0][0]
		}
		frame, err := pressure.BuildCommand(framePressureAddress, letter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q\n", frame)
		return nil
	},
}

func init() {
	frameFurnaceCmd.Flags().IntVar(&frameFurnaceAddress, "address", int(furnace.DefaultAddress), "Furnace controller address")
	framePressureCmd.Flags().StringVar(&framePressureAddress, "address", pressure.DefaultAddress, "Transducer address")

	frameCmd.AddCommand(frameMFCCmd, frameFurnaceCmd, frameCRCCmd, framePressureCmd)
	rootCmd.AddCommand(frameCmd)
}
