// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/internal/config"
	"github.com/Thermoquad/whorl/internal/logging"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Module flags
	deviceAddress  string
	devicePassword string
	askPassword    bool
	deviceTimeout  time.Duration

	// Logging flags
	logLevel string
	trace    bool
)

// Loaded by PersistentPreRunE before any subcommand runs
var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "whorl",
	Short: "R502 Fingerprint Module Tool",
	Long: `Whorl - A CLI tool for driving R502/R503/AS608 fingerprint modules.

Provides commands for reading module status, capturing and searching
fingerprints, managing the template library, and passively decoding the
serial line between a host and a module.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 57600]
  WebSocket: --url ws://host/path [--username user]

Settings are also read from whorl.yaml (current directory or
$HOME/.config/whorl) and WHORL_* environment variables. Flags take
precedence over both.

The module password can be given as --password, through the WHORL_PASSWORD
environment variable, or prompted with --ask-password. For WebSocket
authentication, the bridge password is read from WHORL_BRIDGE_PASSWORD or
prompted interactively.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default whorl.yaml)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 57600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Module flags
	rootCmd.PersistentFlags().StringVar(&deviceAddress, "address", "FFFFFFFF", "Module address (hex)")
	rootCmd.PersistentFlags().StringVar(&devicePassword, "password", "", "Module password (hex)")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "Prompt for the module password")
	rootCmd.PersistentFlags().DurationVar(&deviceTimeout, "timeout", 2*time.Second, "Per-packet reply timeout")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Log every packet sent and received")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings merges the config file with flags the user set explicitly and
// builds the logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		loaded.Serial.Port = portName
	}
	if flags.Changed("baud") {
		loaded.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.Bridge.URL = wsURL
	}
	if flags.Changed("username") {
		loaded.Bridge.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.Bridge.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		addr, err := parseHex32(deviceAddress)
		if err != nil {
			return fmt.Errorf("invalid --address: %w", err)
		}
		loaded.Device.Address = addr
	}
	if flags.Changed("timeout") {
		loaded.Device.Timeout = deviceTimeout
	}
	if flags.Changed("log-level") {
		loaded.Logging.Level = logLevel
	}
	if trace {
		loaded.Logging.Level = "debug"
	}

	if err := loaded.Validate(); err != nil {
		return err
	}

	l, err := logging.New(loaded.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg = loaded
	logger = l
	return nil
}

// parseHex32 accepts "FFFFFFFF" or "0xFFFFFFFF".
func parseHex32(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
