// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	rawErrorsOnly    bool
	rawStatsInterval int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display R502 protocol packets as they arrive.

Intended for a tap on the line between a host and a module: nothing is sent.
Each packet is shown with timestamp, package identifier, instruction or
confirmation code and payload. Corrupt regions are reported and skipped.

Commands are paired with the next acknowledgement to count exchanges;
statistics are printed every --stats-interval seconds.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawErrorsOnly, "errors-only", false, "Only show corrupt packets and device errors")
	rawLogCmd.Flags().IntVar(&rawStatsInterval, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

// exchangeTracker pairs sniffed commands with the acknowledgement that
// follows them.
type exchangeTracker struct {
	stats   *r502.Statistics
	pending bool
	ins     r502.Instruction
	sentAt  time.Time
}

func (t *exchangeTracker) packet(p *r502.Packet) error {
	switch p.PID() {
	case r502.PIDCommand:
		t.stats.PacketSent(p)
		if payload := p.Payload(); len(payload) > 0 {
			t.pending = true
			t.ins = r502.Instruction(payload[0])
			t.sentAt = p.Timestamp()
		}
		return nil

	case r502.PIDAck:
		t.stats.PacketReceived(p)
		if !t.pending {
			return nil
		}
		t.pending = false
		_, err := r502.DecodeReply(t.ins, p)
		t.stats.ExchangeDone(t.ins, p.Timestamp().Sub(t.sentAt), err)
		return err
	}

	// Data packets flow in both directions
	t.stats.PacketReceived(p)
	return nil
}

func (t *exchangeTracker) corrupt(err error) {
	if t.pending {
		t.pending = false
		t.stats.ExchangeDone(t.ins, time.Since(t.sentAt), err)
	}
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Whorl - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	scanner := r502.NewScanner()
	tracker := &exchangeTracker{stats: r502.NewStatistics()}
	buf := make([]byte, 256)

	// Short reads so statistics print on time on a quiet line
	if err := conn.SetReadTimeout(200 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	lastStats := time.Now()

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			logger.Warn("read error", zap.Error(err))
			continue
		}
		scanner.Feed(buf[:n])

		for {
			skippedBefore := scanner.Skipped()
			packet, err := scanner.Next()
			if errors.Is(err, r502.ErrIncomplete) {
				break
			}
			if err != nil {
				tracker.corrupt(err)
				fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v (skipped %d bytes)\n",
					time.Now().Format("15:04:05.000"), err, scanner.Skipped()-skippedBefore)
				continue
			}

			replyErr := tracker.packet(packet)
			if replyErr != nil {
				fmt.Print(r502.FormatPacket(packet))
				fmt.Printf("  \033[1;33m%v\033[0m\n", replyErr)
			} else if !rawErrorsOnly {
				fmt.Print(r502.FormatPacket(packet))
			}
		}

		if rawStatsInterval > 0 && time.Since(lastStats) >= time.Duration(rawStatsInterval)*time.Second {
			fmt.Println()
			fmt.Print(tracker.stats.String())
			fmt.Println()
			lastStats = time.Now()
		}
	}
}
