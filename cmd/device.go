// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show part number, serial number and firmware version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			info, err := s.GetDeviceInfo()
			if err != nil {
				return err
			}
			printf(cmd, "Part number: %s\n", info.PartNumber)
			printf(cmd, "Serial:      %s\n", info.Serial)
			printf(cmd, "Version:     %s\n", info.Version)
			return nil
		})
	},
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Show the unit's serial bus device ID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			id, err := s.GetDeviceID()
			if err != nil {
				return err
			}
			printf(cmd, "%d\n", id)
			return nil
		})
	},
}

var ipCmd = &cobra.Command{
	Use:   "ip",
	Short: "Read or change the device's Ethernet configuration",
}

var ipGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show IP address and netmask",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			conf, err := s.GetIPAddress()
			if err != nil {
				return err
			}
			printf(cmd, "IP:      %s\n", conf.IP)
			printf(cmd, "Netmask: %s\n", conf.Netmask)
			return nil
		})
	},
}

var ipSetCmd = &cobra.Command{
	Use:   "set IP NETMASK",
	Short: "Change IP address and netmask",
	Long: `Change the device's IP address and netmask.

The current connection keeps using the old address; reconnect to reach the
device at its new address.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			return s.SetIPAddress(scpi.EthernetConfig{IP: args[0], Netmask: args[1]})
		})
	},
}

var caldateCmd = &cobra.Command{
	Use:   "caldate",
	Short: "Show the date of the last calibration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			date, err := s.GetCalibrationDate()
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", date)
			return nil
		})
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect and clear the device's error queue",
}

var errorsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of queued errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			n, err := s.GetErrorCount()
			if err != nil {
				return err
			}
			printf(cmd, "%d\n", n)
			return nil
		})
	},
}

var errorsNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Pop and show the oldest queued error",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			rec, err := s.GetNextError()
			if err != nil {
				return err
			}
			printf(cmd, "%d,%q\n", rec.Code, rec.Message)
			return nil
		})
	},
}

var errorsDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Pop and show every queued error",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			records, err := drainErrors(s.Session)
			for _, rec := range records {
				printf(cmd, "%d,%q\n", rec.Code, rec.Message)
			}
			return err
		})
	},
}

var errorsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the error queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *sessionHandle) error {
			return s.ClearErrors()
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd, idCmd, ipCmd, caldateCmd, errorsCmd)
	ipCmd.AddCommand(ipGetCmd, ipSetCmd)
	errorsCmd.AddCommand(errorsCountCmd, errorsNextCmd, errorsDrainCmd, errorsClearCmd)
}
