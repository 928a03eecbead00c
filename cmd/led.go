// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	ledMode  string
	ledColor string
	ledSpeed uint8
	ledTimes uint8
)

var ledModes = map[string]uint8{
	"breathing":   r502.LedBreathing,
	"flashing":    r502.LedFlashing,
	"on":          r502.LedOn,
	"off":         r502.LedOff,
	"gradual-on":  r502.LedGradualOn,
	"gradual-off": r502.LedGradualOff,
}

var ledColors = map[string]uint8{
	"red":    r502.LedRed,
	"blue":   r502.LedBlue,
	"purple": r502.LedPurple,
}

var ledCmd = &cobra.Command{
	Use:   "led",
	Short: "Control the ring LED (R503)",
	Long: `Configure the ring LED with AuraLedConfig.

Modes:  breathing, flashing, on, off, gradual-on, gradual-off
Colors: red, blue, purple

--speed applies to breathing, flashing and gradual modes (0 fastest).
--times limits breathing and flashing cycles (0 repeats forever).`,
	RunE: runLED,
}

func init() {
	rootCmd.AddCommand(ledCmd)
	ledCmd.Flags().StringVar(&ledMode, "mode", "breathing", "LED mode")
	ledCmd.Flags().StringVar(&ledColor, "color", "blue", "LED color")
	ledCmd.Flags().Uint8Var(&ledSpeed, "speed", 0x80, "Effect speed")
	ledCmd.Flags().Uint8Var(&ledTimes, "times", 0, "Number of cycles")
}

func runLED(cmd *cobra.Command, args []string) error {
	mode, ok := ledModes[strings.ToLower(ledMode)]
	if !ok {
		return fmt.Errorf("unknown LED mode %q (%s)", ledMode, keys(ledModes))
	}
	color, ok := ledColors[strings.ToLower(ledColor)]
	if !ok {
		return fmt.Errorf("unknown LED color %q (%s)", ledColor, keys(ledColors))
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		if err := s.SetLED(ctx, mode, ledSpeed, color, ledTimes); err != nil {
			printStatus(false, "%s", describeError(err))
			return err
		}
		printStatus(true, "LED %s %s", ledMode, ledColor)
		return nil
	})
}

func keys(m map[string]uint8) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
