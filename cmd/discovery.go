// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/absctl/pkg/discovery"
	"github.com/spf13/cobra"
)

var (
	discoveryWindow time.Duration
	discoveryDedupe bool
	discoveryMax    int
)

var discoveryCmd = &cobra.Command{
	Use:     "discover",
	Aliases: []string{"discovery"},
	Short:   "Find ABS devices on the local network",
	Long: `Send a multicast discovery probe and list every device that answers.

The probe goes out on the interface owning --iface. Replies are collected
until the window closes or 32 devices have answered, and are listed in
arrival order.

Examples:
  absctl discover --iface 192.168.1.2
  absctl discover --iface 192.168.1.2 --window 3s --dedupe

Exit codes:
  0 - Discovery ran (zero devices is not a failure)
  2 - Socket error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryWindow, "window", discovery.DefaultWindow, "How long to collect replies")
	discoveryCmd.Flags().BoolVar(&discoveryDedupe, "dedupe", false, "Drop repeated replies from the same serial number")
	discoveryCmd.Flags().IntVar(&discoveryMax, "max", discovery.MaxResults, "Stop after this many devices (at most 32)")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	opts := discoveryOptions(cmd)

	// --iface wins over discovery.iface from the config
	iface := cfg.Discovery.Iface
	if cmd.Flags().Changed("iface") || iface == "" {
		iface = cfg.Connection.Iface
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printf(cmd, "Probing %s:%d for %v...\n", discovery.GroupAddress, discovery.GroupPort, opts.Window)
	results, err := discovery.DiscoverContext(ctx, iface, opts)
	if err != nil {
		return err
	}

	for i, r := range results {
		printf(cmd, "%2d. %-15s %s\n", i+1, r.IP, r.Serial)
	}
	printf(cmd, "\nDevices found: %d\n", len(results))
	return nil
}

// discoveryOptions merges config defaults with the command's flags.
func discoveryOptions(cmd *cobra.Command) discovery.Options {
	opts := discovery.Options{
		Window:     cfg.Discovery.Window,
		MaxResults: cfg.Discovery.MaxResults,
		Dedupe:     cfg.Discovery.Dedupe,
		Logger:     &logger,
	}
	flags := cmd.Flags()
	if flags.Changed("window") {
		opts.Window = discoveryWindow
	}
	if flags.Changed("max") {
		opts.MaxResults = discoveryMax
	}
	if flags.Changed("dedupe") {
		opts.Dedupe = discoveryDedupe
	}
	return opts
}
