// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List occupied library slots",
	Long: `Read the template count (TemplateNum) and the index table pages
(ReadIndexTable) covering the library capacity, and print the occupied
slots as ranges.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, s *r502.Session) error {
		sp, err := s.ReadSystemParameters(ctx)
		if err != nil {
			return err
		}
		count, err := s.TemplateCount(ctx)
		if err != nil {
			return err
		}

		pages := (int(sp.LibraryCapacity) + r502.SlotsPerIndexPage - 1) / r502.SlotsPerIndexPage
		if pages > r502.IndexTablePages {
			pages = r502.IndexTablePages
		}

		var slots []uint16
		for page := 0; page < pages; page++ {
			table, err := s.ReadIndexTable(ctx, uint8(page))
			if err != nil {
				return fmt.Errorf("index page %d: %w", page, err)
			}
			slots = append(slots, table.Occupied()...)
		}

		fmt.Printf("Templates: %d / %d\n", count, sp.LibraryCapacity)
		if len(slots) == 0 {
			fmt.Println("Library is empty")
			return nil
		}
		fmt.Printf("Occupied:  %s\n", formatRanges(slots))
		if len(slots) != int(count) {
			fmt.Printf("\033[1;33mWARNING:\033[0m index table lists %d slots, template count is %d\n", len(slots), count)
		}
		return nil
	})
}

// formatRanges collapses ascending slots into "0-3, 7, 9-10".
func formatRanges(slots []uint16) string {
	var parts []string
	for i := 0; i < len(slots); {
		j := i
		for j+1 < len(slots) && slots[j+1] == slots[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, fmt.Sprintf("%d", slots[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", slots[i], slots[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
