// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/whorl/pkg/r502"
)

// deviceFunc runs against an open, authenticated session.
type deviceFunc func(ctx context.Context, s *r502.Session) error

// withSession opens the module, runs fn and closes the connection. Ctrl+C
// cancels the context, which the session checks between reads.
func withSession(fn deviceFunc, observers ...r502.Observer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, conn, connInfo, err := openSession(ctx, observers...)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("module ready", zap.String("connection", connInfo))

	err = fn(ctx, session)
	if errors.Is(err, context.Canceled) {
		// Leave the module idle rather than mid-capture
		cancelCtx, cancel := context.WithTimeout(context.Background(), cfg.Device.Timeout)
		defer cancel()
		if cerr := session.Cancel(cancelCtx); cerr != nil {
			logger.Debug("cancel failed", zap.Error(cerr))
		}
	}
	return err
}

// describeError renders device errors with their category.
func describeError(err error) string {
	var devErr *r502.DeviceError
	if errors.As(err, &devErr) {
		return fmt.Sprintf("%v [%s]", err, devErr.Category)
	}
	return err.Error()
}

// parsePage parses a library slot argument.
func parsePage(arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q: %w", arg, err)
	}
	return uint16(v), nil
}

// printStatus prints a highlighted status line like "[15:04:05.000] OK: ...".
func printStatus(ok bool, format string, args ...interface{}) {
	fmt.Println(statusLine(time.Now(), ok, fmt.Sprintf(format, args...)))
}

func statusLine(at time.Time, ok bool, message string) string {
	label := "\033[1;32mOK:\033[0m"
	if !ok {
		label = "\033[1;31mFAILED:\033[0m"
	}
	return fmt.Sprintf("[%s] %s %s", at.Format("15:04:05.000"), label, message)
}
