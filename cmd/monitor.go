// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Thermoquad/absctl/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	monitorInterval    time.Duration
	monitorMetricsAddr string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching and setting cell voltages",
	Long: `Watch an ABS device in an interactive terminal UI.

The TUI polls all eight cell voltage targets and the error queue length at a
fixed interval. Select a cell with the arrow keys and press enter to type a
new target voltage. Press c to clear the device's error queue.

With --metrics-addr, exchange counters and latencies are served in the
Prometheus text format at /metrics while the TUI runs.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Poll interval")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9110)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	interval := cfg.Monitor.Interval
	if cmd.Flags().Changed("interval") || interval <= 0 {
		interval = monitorInterval
	}
	metricsAddr := cfg.Monitor.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr = monitorMetricsAddr
	}

	var opts []session.Option
	var srv *http.Server
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		opts = append(opts, session.WithMetrics(session.NewMetrics(reg)))
		var err error
		srv, err = startMetricsServer(metricsAddr, reg)
		if err != nil {
			return usageError(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	s, err := OpenSession(opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	m := initialMonitorModel(s.Session, s.Link(), interval)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// startMetricsServer binds addr and serves reg on it until shut down.
func startMetricsServer(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
	return srv, nil
}
