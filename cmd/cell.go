// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/Thermoquad/absctl/pkg/session"
	"github.com/spf13/cobra"
)

var cellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Set and read cell voltage targets",
	Long: `Set and read the target voltage of the eight simulated cells.

Channels are numbered 0 to 7. Voltages are in volts.`,
}

var cellSetCmd = &cobra.Command{
	Use:   "set CHANNEL VOLTS",
	Short: "Set one cell's target voltage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return usageError(err)
		}
		v, err := parseVoltage(args[1])
		if err != nil {
			return usageError(err)
		}
		return withSession(func(s *sessionHandle) error {
			return s.SetCellVoltage(ch, v)
		})
	},
}

var cellSetAllCmd = &cobra.Command{
	Use:   "set-all V0 V1 V2 V3 V4 V5 V6 V7 | set-all V0,V1,...,V7",
	Short: "Set every cell's target voltage at once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		voltages, err := parseVoltages(args)
		if err != nil {
			return usageError(err)
		}
		return withSession(func(s *sessionHandle) error {
			return s.SetAllCellVoltages(voltages)
		})
	},
}

var cellGetCmd = &cobra.Command{
	Use:   "get CHANNEL",
	Short: "Show one cell's target voltage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return usageError(err)
		}
		return withSession(func(s *sessionHandle) error {
			v, err := s.GetCellVoltageTarget(ch)
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", scpi.FormatFloat(v))
			return nil
		})
	},
}

var cellGetAllCmd = &cobra.Command{
	Use:   "get-all",
	Short: "Show every cell's target voltage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			voltages, err := s.GetAllCellVoltageTargets()
			if err != nil {
				return err
			}
			for i, v := range voltages {
				printf(cmd, "%d: %s\n", i, scpi.FormatFloat(v))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cellCmd)
	cellCmd.AddCommand(cellSetCmd, cellSetAllCmd, cellGetCmd, cellGetAllCmd)
}

// parseChannel parses a channel argument. Range checks happen in the
// session so every entry point reports them the same way.
func parseChannel(s string) (int, error) {
	ch, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return ch, nil
}

func parseVoltage(s string) (float32, error) {
	v, err := scpi.ParseFloat(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid voltage %q", s)
	}
	return v, nil
}

// parseVoltages parses voltages given as separate arguments or as one
// comma separated list.
func parseVoltages(args []string) ([]float32, error) {
	if len(args) == 1 {
		args = strings.Split(args[0], ",")
	}
	out := make([]float32, 0, len(args))
	for _, a := range args {
		v, err := parseVoltage(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// drainErrors pops queued errors until the device reports an empty queue.
// Records read before a failure are returned with the error.
func drainErrors(s *session.Session) ([]scpi.ErrorRecord, error) {
	var records []scpi.ErrorRecord
	for {
		rec, err := s.GetNextError()
		if err != nil {
			return records, err
		}
		if rec.Code == 0 {
			return records, nil
		}
		records = append(records, rec)
		if len(records) >= maxDrainedErrors {
			return records, nil
		}
	}
}

// maxDrainedErrors stops drain on a device that never reports an empty queue.
const maxDrainedErrors = 256
