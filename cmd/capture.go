// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"

	"github.com/Thermoquad/absctl/pkg/capture"
	"github.com/spf13/cobra"
)

var captureOp string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Inspect capture files written with --capture",
}

var captureDumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print every frame in a capture file",
	Long: `Print the frames recorded in a capture file, one per line.

Examples:
  absctl capture dump bench.abscap
  absctl capture dump bench.abscap --op set_cell_voltage`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptureDump,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.AddCommand(captureDumpCmd)
	captureDumpCmd.Flags().StringVar(&captureOp, "op", "", "Only show frames for this operation")
}

func runCaptureDump(cmd *cobra.Command, args []string) error {
	r, err := capture.Open(args[0])
	if err != nil {
		return usageError(err)
	}
	defer r.Close()
	r.FilterOp(captureOp)

	count := 0
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		printf(cmd, "%s\n", capture.Format(event))
		count++
	}
	printf(cmd, "\n%d frame(s)\n", count)
	return nil
}
