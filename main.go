// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Whorl - R502 Fingerprint Module Tool
//
// A CLI tool for driving R502/R503/AS608 fingerprint modules and decoding
// their serial protocol in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/whorl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
