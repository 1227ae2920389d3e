// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a device answers identification queries",
	Long: `Send *IDN? repeatedly and report round trip times and loss.

This is useful for verifying:
  - the link is configured correctly (address, port, unit ID)
  - a WebSocket bridge accepts the credentials
  - the device replies reliably under repeated queries

Exit codes:
  0 - All queries answered
  1 - One or more queries failed or timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of queries to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between queries")
}

// pingStats accumulates round trip results.
type pingStats struct {
	sent     int
	received int
	min      time.Duration
	max      time.Duration
	total    time.Duration
	byKind   map[scpi.Kind]int
}

func (p *pingStats) record(rtt time.Duration, err error) {
	p.sent++
	if err != nil {
		if p.byKind == nil {
			p.byKind = make(map[scpi.Kind]int)
		}
		p.byKind[scpi.KindOf(err)]++
		return
	}
	p.received++
	p.total += rtt
	if p.received == 1 || rtt < p.min {
		p.min = rtt
	}
	if rtt > p.max {
		p.max = rtt
	}
}

func (p *pingStats) loss() float64 {
	if p.sent == 0 {
		return 0
	}
	return float64(p.sent-p.received) / float64(p.sent) * 100
}

func (p *pingStats) summary() string {
	s := fmt.Sprintf("%d queries sent, %d replies received, %.0f%% loss", p.sent, p.received, p.loss())
	if p.received > 0 {
		avg := p.total / time.Duration(p.received)
		s += fmt.Sprintf("\nrtt min/avg/max = %v/%v/%v",
			p.min.Round(time.Microsecond), avg.Round(time.Microsecond), p.max.Round(time.Microsecond))
	}
	for _, k := range []scpi.Kind{scpi.KindTimeout, scpi.KindProtocol, scpi.KindDevice, scpi.KindTransport} {
		if n := p.byKind[k]; n > 0 {
			s += fmt.Sprintf("\n%s errors: %d", k, n)
		}
	}
	return s
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return usageError(fmt.Errorf("--count must be at least 1"))
	}

	s, err := OpenSession()
	if err != nil {
		return err
	}
	defer s.Close()

	printf(cmd, "Connection: %s\n", s.Link())
	printf(cmd, "Timeout: %v per query\n\n", s.Timeout())

	var stats pingStats
	for i := 1; i <= pingCount; i++ {
		start := time.Now()
		info, err := s.GetDeviceInfo()
		rtt := time.Since(start)
		stats.record(rtt, err)

		if err != nil {
			printf(cmd, "Query %d/%d: FAILED: %v\n", i, pingCount, err)
		} else {
			printf(cmd, "Query %d/%d: %s %s, rtt=%v\n", i, pingCount, info.PartNumber, info.Serial, rtt.Round(time.Microsecond))
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	printf(cmd, "\n--- %s ping statistics ---\n%s\n", s.Link(), stats.summary())

	if stats.received < stats.sent {
		return &exitError{code: ExitFailure, err: fmt.Errorf("%d of %d queries failed", stats.sent-stats.received, stats.sent)}
	}
	return nil
}
