// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/whorl/pkg/r502"
)

var infoOutput string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read module status and system parameters",
	Long: `Read the module's system parameters and template count.

Reports the status register, library capacity and usage, security level,
address, data packet size and baud rate. Values outside the documented
ranges are flagged as anomalies.

Output formats: text (default), yaml, json.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "text", "Output format (text, yaml, json)")
}

// moduleInfo is the info report in structured output formats.
type moduleInfo struct {
	Parameters r502.SystemParameters `json:"parameters" yaml:"parameters"`
	Templates  uint16                `json:"templates" yaml:"templates"`
	PacketSize int                   `json:"packet_size" yaml:"packet_size"`
	BaudRate   int                   `json:"baud_rate" yaml:"baud_rate"`
	Busy       bool                  `json:"busy" yaml:"busy"`
	PasswordOK bool                  `json:"password_ok" yaml:"password_ok"`
	ValidImage bool                  `json:"valid_image" yaml:"valid_image"`
	Anomalies  []string              `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	switch infoOutput {
	case "text", "yaml", "json":
	default:
		return fmt.Errorf("unknown output format %q", infoOutput)
	}

	return withSession(func(ctx context.Context, s *r502.Session) error {
		sp, err := s.ReadSystemParameters(ctx)
		if err != nil {
			return fmt.Errorf("read system parameters: %w", err)
		}
		count, err := s.TemplateCount(ctx)
		if err != nil {
			return fmt.Errorf("read template count: %w", err)
		}

		info := moduleInfo{
			Parameters: sp,
			Templates:  count,
			PacketSize: sp.PacketSizeBytes(),
			BaudRate:   sp.BaudRate(),
			Busy:       sp.Busy(),
			PasswordOK: sp.PasswordOK(),
			ValidImage: sp.HasValidImage(),
		}
		for _, v := range r502.ValidateSystemParameters(sp) {
			info.Anomalies = append(info.Anomalies, v.Message)
		}

		return writeInfo(os.Stdout, infoOutput, info)
	})
}

func writeInfo(w io.Writer, format string, info moduleInfo) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(info)
	}

	sp := info.Parameters
	fmt.Fprintf(w, "Address:          %08X\n", sp.DeviceAddress)
	fmt.Fprintf(w, "System ID:        0x%04X\n", sp.SystemID)
	fmt.Fprintf(w, "Status:           0x%04X (busy=%t password=%t image=%t)\n",
		sp.StatusRegister, info.Busy, info.PasswordOK, info.ValidImage)
	fmt.Fprintf(w, "Library:          %d / %d templates\n", info.Templates, sp.LibraryCapacity)
	fmt.Fprintf(w, "Security Level:   %d\n", sp.SecurityLevel)
	fmt.Fprintf(w, "Packet Size:      %d bytes (code %d)\n", info.PacketSize, sp.PacketSizeCode)
	fmt.Fprintf(w, "Baud Rate:        %d (code %d)\n", info.BaudRate, sp.BaudRateCode)

	if len(info.Anomalies) > 0 {
		fmt.Fprintf(w, "\n\033[1;33mANOMALIES:\033[0m\n")
		for i, a := range info.Anomalies {
			fmt.Fprintf(w, "  Issue %d: %s\n", i+1, a)
		}
	}
	return nil
}
