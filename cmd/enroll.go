// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/internal/enroll"
	"github.com/Thermoquad/whorl/pkg/r502"
)

var enrollAllowDuplicate bool

var enrollCmd = &cobra.Command{
	Use:   "enroll <page>",
	Short: "Enroll a finger into a library slot",
	Long: `Capture the same finger twice, merge both captures into a template
(RegModel) and store it at the given library slot.

Unless --allow-duplicate is set, the first capture is searched against the
library and enrollment stops if the finger is already stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().BoolVar(&enrollAllowDuplicate, "allow-duplicate", false, "Store the finger even if it is already enrolled")
	enrollCmd.Flags().DurationVar(&captureWait, "wait", 0, "Maximum time for the whole enrollment (default capture.timeout)")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	page, err := parsePage(args[0])
	if err != nil {
		return err
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		sp, err := s.ReadSystemParameters(ctx)
		if err != nil {
			return err
		}
		if page >= sp.LibraryCapacity {
			return fmt.Errorf("page %d is outside the library (capacity %d)", page, sp.LibraryCapacity)
		}

		ctx, cancel := context.WithTimeout(ctx, fingerWait())
		defer cancel()

		err = enroll.Enroll(ctx, s, page, enroll.Options{
			Limiter:              enroll.NewLimiter(cfg.Capture.PollRate),
			Progress:             func(step enroll.Step) { fmt.Printf("  %s\n", step) },
			RejectDuplicates:     !enrollAllowDuplicate,
			DuplicateSearchCount: sp.LibraryCapacity,
		})
		if errors.Is(err, enroll.ErrDuplicate) {
			printStatus(false, "%v", err)
			return err
		}
		if err != nil {
			printStatus(false, "%s", describeError(err))
			return err
		}

		printStatus(true, "enrolled at page %d", page)
		return nil
	})
}
