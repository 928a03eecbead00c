// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test a line tap by waiting for a valid R502 packet",
	Long: `Wait for a valid R502 packet on the connection until timeout.

Nothing is sent. Invalid bytes are skipped until a complete packet with a
correct checksum arrives.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking a sniffer tap or a WebSocket bridge before raw_log.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "wait", 10, "Seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Whorl - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid R502 packet...\n\n")

	if err := conn.SetReadTimeout(100 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	scanner := r502.NewScanner()
	buf := make([]byte, 256)
	deadline := time.Now().Add(time.Duration(packetTestTimeout) * time.Second)

	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		scanner.Feed(buf[:n])

		for {
			packet, err := scanner.Next()
			if errors.Is(err, r502.ErrIncomplete) {
				break
			}
			if err != nil {
				continue
			}

			if scanner.Skipped() > 0 {
				fmt.Printf("(skipped %d invalid bytes before sync)\n", scanner.Skipped())
			}
			fmt.Printf("SUCCESS: Received valid packet\n")
			fmt.Printf("  Type: %s (0x%02X)\n", r502.FormatPackageID(packet.PID()), uint8(packet.PID()))
			fmt.Printf("  Address: %08X\n", packet.Address())
			fmt.Printf("  Length: %d bytes\n", packet.Length())
			fmt.Printf("  Checksum: 0x%04X\n", packet.Checksum())
			conn.Close()
			os.Exit(0)
		}
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
	conn.Close()
	os.Exit(1)
	return nil
}
