// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/internal/enroll"
	"github.com/Thermoquad/whorl/pkg/r502"
)

var (
	captureBuffer    uint8
	captureWait      time.Duration
	captureImagePath string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Wait for a finger and convert it into a character buffer",
	Long: `Poll the sensor (GenImg) until a finger is placed, then extract its
features into a character buffer (Img2Tz).

Polling is rate limited by capture.pollRate (attempts per second). The wait
gives up after --wait, or capture.timeout when not set.

With --image, the raw image is uploaded from the module (UpImage) and written
to a file before conversion.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().Uint8Var(&captureBuffer, "buffer", r502.CharBuffer1, "Character buffer (1 or 2)")
	captureCmd.Flags().DurationVar(&captureWait, "wait", 0, "Maximum time to wait for a finger (default capture.timeout)")
	captureCmd.Flags().StringVar(&captureImagePath, "image", "", "Save the raw image to this file")
}

// fingerWait returns the overall finger wait, from --wait or config.
func fingerWait() time.Duration {
	if captureWait > 0 {
		return captureWait
	}
	return cfg.Capture.Timeout
}

// waitForFinger prints a prompt and polls until a finger is captured.
func waitForFinger(ctx context.Context, s *r502.Session) error {
	ctx, cancel := context.WithTimeout(ctx, fingerWait())
	defer cancel()

	fmt.Println("Place finger on the sensor...")
	start := time.Now()
	if err := enroll.WaitForFinger(ctx, s, enroll.NewLimiter(cfg.Capture.PollRate)); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("no finger within %s", fingerWait())
		}
		return err
	}
	logger.Debug("finger captured", zap.Duration("waited", time.Since(start)))
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureBuffer != r502.CharBuffer1 && captureBuffer != r502.CharBuffer2 {
		return fmt.Errorf("--buffer must be 1 or 2")
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		if captureImagePath != "" {
			// Transfers are chunked by the module's packet size
			if _, err := s.ReadSystemParameters(ctx); err != nil {
				return err
			}
		}

		if err := waitForFinger(ctx, s); err != nil {
			return err
		}

		if captureImagePath != "" {
			image, err := s.UploadImage(ctx)
			if err != nil {
				return fmt.Errorf("upload image: %w", err)
			}
			if err := os.WriteFile(captureImagePath, image, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", captureImagePath, err)
			}
			fmt.Printf("Image: %d bytes written to %s\n", len(image), captureImagePath)
		}

		if err := s.ConvertImage(ctx, captureBuffer); err != nil {
			printStatus(false, "%s", describeError(err))
			return err
		}

		printStatus(true, "features stored in buffer %d", captureBuffer)
		return nil
	})
}
