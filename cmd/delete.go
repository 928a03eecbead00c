// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	deleteCount uint16
	deleteAll   bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [page]",
	Short: "Delete templates from the library",
	Long: `Delete --count templates starting at page (DeletChar), or empty the
whole library with --all (Empty).`,
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().Uint16Var(&deleteCount, "count", 1, "Number of consecutive templates to delete")
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every template in the library")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if deleteAll {
		return withSession(func(ctx context.Context, s *r502.Session) error {
			if err := s.EmptyLibrary(ctx); err != nil {
				printStatus(false, "%s", describeError(err))
				return err
			}
			printStatus(true, "library emptied")
			return nil
		})
	}

	page, err := parsePage(args[0])
	if err != nil {
		return err
	}
	if deleteCount == 0 {
		return fmt.Errorf("--count must be at least 1")
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		if err := s.Delete(ctx, page, deleteCount); err != nil {
			printStatus(false, "%s", describeError(err))
			return err
		}
		if deleteCount == 1 {
			printStatus(true, "deleted page %d", page)
		} else {
			printStatus(true, "deleted pages %d-%d", page, int(page)+int(deleteCount)-1)
		}
		return nil
	})
}
