// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"time"

	"github.com/Thermoquad/absctl/pkg/scpi"
	"github.com/prometheus/client_golang/prometheus"
)

// ResultOK labels exchanges that completed without error. Failures are
// labelled with their error kind.
const ResultOK = "ok"

// Metrics counts exchanges per command and result. One Metrics may be shared
// by many sessions. A nil *Metrics records nothing.
type Metrics struct {
	exchanges *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the exchange metrics and registers them with reg.
// Registration panics on duplicates, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "absctl",
				Name:      "exchanges_total",
				Help:      "Total device exchanges by command and result.",
			},
			[]string{"command", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "absctl",
				Name:      "exchange_duration_seconds",
				Help:      "Device exchange duration in seconds.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"command"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.exchanges, m.duration)
	}
	return m
}

// Exchanges returns the exchange counter, for tests and custom exporters.
func (m *Metrics) Exchanges() *prometheus.CounterVec {
	return m.exchanges
}

func (m *Metrics) observe(op scpi.Op, elapsed time.Duration, err error) {
	m.observeName(op.String(), elapsed, err)
}

func (m *Metrics) observeName(command string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(command, resultLabel(err)).Inc()
	if elapsed > 0 {
		m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
	}
}

func resultLabel(err error) string {
	if err == nil {
		return ResultOK
	}
	return scpi.KindOf(err).String()
}
