// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the module password",
	Long: `Perform the password handshake (VfyPwd) and report the result.

Exit codes:
  0 - Password accepted
  1 - Wrong password or the module rejected the handshake
  2 - Connection error`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	password, err := modulePassword()
	if err != nil {
		return fmt.Errorf("invalid module password: %w", err)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)

	session := r502.NewSession(conn,
		r502.WithAddress(cfg.Device.Address),
		r502.WithTimeout(cfg.Device.Timeout),
		r502.WithLogger(logger.Named("r502")),
	)

	ctx := cmd.Context()
	if err := session.VerifyPassword(ctx, password); err != nil {
		printStatus(false, "%s", describeError(err))
		if r502.IsDeviceCode(err, r502.CodeWrongPassword) {
			conn.Close()
			os.Exit(1)
		}
		return err
	}

	printStatus(true, "password accepted by module %08X", session.Address())
	return nil
}
