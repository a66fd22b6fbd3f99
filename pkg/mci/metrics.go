// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mci

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus collector for engine progress. Wire
// it up as the acceptance callback and register it with a Prometheus
// registry:
//
//	metrics := mci.NewMetrics("mci")
//	prometheus.MustRegister(metrics)
//	m.SetAcceptanceCallback(metrics.OnStep)
//
// Thread Safety: Safe for concurrent registry scrapes; OnStep itself is
// called from the single-threaded sampling loop.
type Metrics struct {
	steps          prometheus.Counter
	accepted       prometheus.Counter
	rejected       prometheus.Counter
	acceptanceRate prometheus.Gauge
}

// NewMetrics creates a collector with the given metric namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of sampling steps taken.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_steps_total",
			Help:      "Total number of accepted trial moves.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_steps_total",
			Help:      "Total number of rejected trial moves.",
		}),
		acceptanceRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acceptance_rate",
			Help:      "Acceptance rate of the current sampling run.",
		}),
	}
}

// OnStep records one sampling step; install it with
// SetAcceptanceCallback.
func (mt *Metrics) OnStep(m *MCI) {
	if m.acc+m.rej == 0 {
		return // initialization callback, no step decided yet
	}
	mt.steps.Inc()
	if m.Accepted() {
		mt.accepted.Inc()
	} else {
		mt.rejected.Inc()
	}
	mt.acceptanceRate.Set(m.AcceptanceRate())
}

// Describe implements prometheus.Collector.
func (mt *Metrics) Describe(ch chan<- *prometheus.Desc) {
	mt.steps.Describe(ch)
	mt.accepted.Describe(ch)
	mt.rejected.Describe(ch)
	mt.acceptanceRate.Describe(ch)
}

// Collect implements prometheus.Collector.
func (mt *Metrics) Collect(ch chan<- prometheus.Metric) {
	mt.steps.Collect(ch)
	mt.accepted.Collect(ch)
	mt.rejected.Collect(ch)
	mt.acceptanceRate.Collect(ch)
}
