// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var notepadCmd = &cobra.Command{
	Use:   "notepad",
	Short: "Read or write the module's user notepad",
	Long: `The module keeps 16 pages of 32 bytes of user data in flash.

  notepad read <page>
  notepad write <page> <text>

Text shorter than 32 bytes is padded with zeros.`,
}

var notepadReadCmd = &cobra.Command{
	Use:   "read <page>",
	Short: "Print a notepad page",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotepadRead,
}

var notepadWriteCmd = &cobra.Command{
	Use:   "write <page> <text>",
	Short: "Write a notepad page",
	Args:  cobra.ExactArgs(2),
	RunE:  runNotepadWrite,
}

func init() {
	rootCmd.AddCommand(notepadCmd)
	notepadCmd.AddCommand(notepadReadCmd)
	notepadCmd.AddCommand(notepadWriteCmd)
}

func parseNotepadPage(arg string) (uint8, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil || v >= r502.NotepadPages {
		return 0, fmt.Errorf("invalid notepad page %q (0-%d)", arg, r502.NotepadPages-1)
	}
	return uint8(v), nil
}

func runNotepadRead(cmd *cobra.Command, args []string) error {
	page, err := parseNotepadPage(args[0])
	if err != nil {
		return err
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		content, err := s.ReadNotepad(ctx, page)
		if err != nil {
			return err
		}
		fmt.Printf("Page %d:\n%s", page, hex.Dump(content))
		if text := bytes.TrimRight(content, "\x00"); len(text) > 0 {
			fmt.Printf("Text: %q\n", text)
		}
		return nil
	})
}

func runNotepadWrite(cmd *cobra.Command, args []string) error {
	page, err := parseNotepadPage(args[0])
	if err != nil {
		return err
	}
	if len(args[1]) > r502.NotepadPageSize {
		return fmt.Errorf("text is %d bytes, a page holds %d", len(args[1]), r502.NotepadPageSize)
	}
	content := make([]byte, r502.NotepadPageSize)
	copy(content, args[1])

	return withSession(func(ctx context.Context, s *r502.Session) error {
		if err := s.WriteNotepad(ctx, page, content); err != nil {
			printStatus(false, "%s", describeError(err))
			return err
		}
		printStatus(true, "notepad page %d written", page)
		return nil
	})
}
