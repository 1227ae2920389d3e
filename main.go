// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// absctl - ABS battery cell simulator control tool
//
// A CLI tool for configuring and driving ABS cell simulators over Ethernet
// or an RS-485 multidrop bus.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/absctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cmd.ExitCode(err))
	}
}
