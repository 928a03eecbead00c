// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discoveryTimeout time.Duration
	discoveryBauds   []int
)

var discoveryCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the baud rate a module on a serial port answers at",
	Long: `Probe a serial port at each candidate baud rate by sending ReadSysPara to
the configured address (FFFFFFFF by default) and report the first rate the
module answers at, together with its address and library capacity.

Modules ship at 57600 baud; the rate can be changed with SetSysPara and
persists across power cycles.

Examples:
  whorl discover --port /dev/ttyUSB0
  whorl discover --port /dev/ttyUSB0 --bauds 57600,115200

Exit codes:
  0 - Module found
  1 - No answer at any rate
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "probe-timeout", 500*time.Millisecond, "Reply timeout per baud rate")
	discoveryCmd.Flags().IntSliceVar(&discoveryBauds, "bauds", []int{57600, 9600, 19200, 38400, 115200}, "Baud rates to try, in order")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("discover needs --port")
	}

	fmt.Printf("Whorl - Discovery\n")
	fmt.Printf("Port: %s, address %08X\n\n", cfg.Serial.Port, cfg.Device.Address)

	for _, baud := range discoveryBauds {
		fmt.Printf("  %6d baud: ", baud)

		conn, err := OpenSerialConnection(cfg.Serial.Port, baud)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}

		sp, err := pingOnce(cmd.Context(), conn, cfg.Device.Address, discoveryTimeout)
		conn.Close()
		if err != nil {
			logger.Debug("no answer", zap.Int("baud", baud), zap.Error(err))
			fmt.Println("no answer")
			continue
		}

		fmt.Println("\033[1;32mFOUND\033[0m")
		fmt.Printf("\nModule %08X at %d baud (reports %d), library capacity %d, packet size %d\n",
			sp.DeviceAddress, baud, sp.BaudRate(), sp.LibraryCapacity, sp.PacketSizeBytes())
		return nil
	}

	fmt.Fprintf(os.Stderr, "\nNo module answered on %s\n", cfg.Serial.Port)
	os.Exit(1)
	return nil
}
