// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crucible/pkg/config"
	"github.com/Thermoquad/crucible/pkg/logger"
)

var (
	configPath string
	simulate   bool
	logLevel   string
	logFormat  string

	// Link overrides
	portOverrides []string
	baudRate      int

	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "CVD furnace and gas flow controller",
	Long: `Crucible - runs chemical vapour deposition recipes on a tube furnace.

Drives the mass flow controllers, the furnace temperature controller and the
pressure transducer over their serial links, steps through a recipe and logs
one sample per log period.

Links are described in a YAML configuration file (--config); without one the
lab defaults are used. Any link can be redirected on the command line:

  Serial:    --port mfc=/dev/ttyUSB3 [--baud 19200]
  WebSocket: --port gauge=ws://bridge.local/serial2

For WebSocket authentication, the password is read from the CRUCIBLE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

--simulate replaces every link with in-memory simulated instruments.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use simulated instruments instead of real links")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")
	rootCmd.PersistentFlags().StringArrayVarP(&portOverrides, "port", "p", nil, "Override a link device as name=device (repeatable)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate for every serial link")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the configuration and installs the logger
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if err := applyOverrides(cfg); err != nil {
		return err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log = logger.NewSlog(os.Stderr, level, logger.Format(cfg.Log.Format))
	logger.SetDefault(log)
	return nil
}

func applyOverrides(c *config.Config) error {
	for _, o := range portOverrides {
		name, device, ok := strings.Cut(o, "=")
		if !ok || name == "" || device == "" {
			return fmt.Errorf("--port expects name=device, got %q", o)
		}
		p, exists := c.Ports[name]
		if !exists {
			return fmt.Errorf("--port: unknown link %q", name)
		}
		p.Device = device
		c.Ports[name] = p
	}
	if baudRate > 0 {
		for name, p := range c.Ports {
			p.Baud = baudRate
			c.Ports[name] = p
		}
	}
	return nil
}
