// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/internal/enroll"
	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	searchStart uint16
	searchCount uint16
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Identify a finger against the template library",
	Long: `Capture a finger and search the library for a matching template.

Searches --count slots starting at --start. When --count is 0 the whole
library capacity reported by the module is searched.

Exit codes:
  0 - Match found
  1 - No matching template`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Uint16Var(&searchStart, "start", 0, "First library slot to search")
	searchCmd.Flags().Uint16Var(&searchCount, "count", 0, "Number of slots to search (default library capacity)")
	searchCmd.Flags().DurationVar(&captureWait, "wait", 0, "Maximum time to wait for a finger (default capture.timeout)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, s *r502.Session) error {
		count := searchCount
		if count == 0 {
			sp, err := s.ReadSystemParameters(ctx)
			if err != nil {
				return err
			}
			count = sp.LibraryCapacity
		}

		ctx, cancel := context.WithTimeout(ctx, fingerWait())
		defer cancel()

		fmt.Println("Place finger on the sensor...")
		res, err := enroll.Identify(ctx, s, searchStart, count, enroll.Options{
			Limiter: enroll.NewLimiter(cfg.Capture.PollRate),
		})
		if r502.IsDeviceCode(err, r502.CodeNotFound) {
			printStatus(false, "no matching template in slots %d-%d", searchStart, int(searchStart)+int(count)-1)
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		printStatus(true, "match at page %d (score %d)", res.PageID, res.Score)
		return nil
	})
}
