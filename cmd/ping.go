// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips to the module with HandShake",
	Long: `Send HandShake commands and wait for each acknowledgement.

Useful for verifying:
  - The serial port or WebSocket bridge carries traffic both ways
  - The module address and baud rate are right
  - Round-trip latency through a bridge

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Whorl - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s per ping\n", cfg.Device.Timeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	stats := r502.NewStatistics()
	session := r502.NewSession(conn,
		r502.WithAddress(cfg.Device.Address),
		r502.WithTimeout(cfg.Device.Timeout),
		r502.WithLogger(logger.Named("r502")),
		r502.WithObserver(stats),
	)

	ctx := cmd.Context()
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		err := session.HandShake(ctx)
		rtt := time.Since(start)

		switch {
		case err == nil:
			fmt.Printf("ACK from %08X, rtt=%v\n", session.Address(), rtt.Round(time.Millisecond))
			successCount++
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			fmt.Printf("FAILED: %s\n", describeError(err))
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d acknowledged, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)
	if st := stats.Snapshot(); st.Exchanges > 0 {
		fmt.Printf("avg rtt %.1f ms\n", float64(st.TotalLatency.Microseconds())/1000/float64(st.Exchanges))
	}

	if failCount > 0 {
		conn.Close()
		os.Exit(1)
	}
	return nil
}

// pingOnce is used by discover to probe a candidate link.
func pingOnce(ctx context.Context, conn Connection, address uint32, timeout time.Duration) (r502.SystemParameters, error) {
	session := r502.NewSession(conn,
		r502.WithAddress(address),
		r502.WithTimeout(timeout),
		r502.WithLogger(logger.Named("probe")),
	)
	return session.ReadSystemParameters(ctx)
}
