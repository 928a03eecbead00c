// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/internal/template"
	"github.com/Thermoquad/whorl/pkg/r502"
)

var downloadCmd = &cobra.Command{
	Use:   "download <page> <file>",
	Short: "Copy a stored template from the module to a file",
	Long: `Load the template at page into a character buffer (LoadChar), transfer
it to the host (UpChar) and save it as a template file.`,
	Args: cobra.ExactArgs(2),
	RunE: runDownload,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file> <page>",
	Short: "Store a template file in the module library",
	Long: `Transfer a template file into a character buffer (DownChar) and store
it at page (Store). The file can come from another module.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	page, err := parsePage(args[0])
	if err != nil {
		return err
	}
	path := args[1]

	return withSession(func(ctx context.Context, s *r502.Session) error {
		// Learn the packet size before any transfer
		if _, err := s.ReadSystemParameters(ctx); err != nil {
			return err
		}
		if err := s.LoadTemplate(ctx, r502.CharBuffer1, page); err != nil {
			printStatus(false, "load page %d: %s", page, describeError(err))
			return err
		}
		data, err := s.UploadTemplate(ctx, r502.CharBuffer1)
		if err != nil {
			return fmt.Errorf("upload template: %w", err)
		}

		f := template.New(s.Address(), page, r502.CharBuffer1, data)
		if err := template.Save(path, f); err != nil {
			return err
		}
		logger.Debug("template saved", zap.String("id", f.ID), zap.Int("bytes", len(data)))

		printStatus(true, "page %d saved to %s (%d bytes)", page, path, len(data))
		return nil
	})
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	page, err := parsePage(args[1])
	if err != nil {
		return err
	}

	f, err := template.Load(path)
	if err != nil {
		return err
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		if _, err := s.ReadSystemParameters(ctx); err != nil {
			return err
		}
		if err := s.DownloadTemplate(ctx, r502.CharBuffer1, f.Data); err != nil {
			printStatus(false, "download template: %s", describeError(err))
			return err
		}
		if err := s.Store(ctx, r502.CharBuffer1, page); err != nil {
			printStatus(false, "store page %d: %s", page, describeError(err))
			return err
		}

		printStatus(true, "%s stored at page %d (from module %08X page %d)", path, page, f.Address, f.Page)
		return nil
	})
}
