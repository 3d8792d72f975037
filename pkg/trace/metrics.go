// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the trace engine's Prometheus metrics. Pass a *Metrics via
// Options to have a Trace update them; pass the same instance to several
// traces to aggregate.
type Metrics struct {
	Inserts            prometheus.Counter
	TuplesInserted     prometheus.Counter
	Compactions        prometheus.Counter
	CompactionDuration prometheus.Histogram
	ActiveBatches      prometheus.Gauge
	ResidentTuples     prometheus.Gauge
}

// NewMetrics builds the metric set and, if reg is non-nil, registers it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trace",
			Name:      "inserts_total",
			Help:      "Number of insert calls.",
		}),
		TuplesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trace",
			Name:      "tuples_inserted_total",
			Help:      "Number of tuples passed to insert, before coalescing.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trace",
			Name:      "compactions_total",
			Help:      "Number of batch merges performed by compaction.",
		}),
		CompactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trace",
			Name:      "compaction_duration_seconds",
			Help:      "Wall time of individual batch merges.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		ActiveBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trace",
			Name:      "active_batches",
			Help:      "Batches in the current read state.",
		}),
		ResidentTuples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trace",
			Name:      "resident_tuples",
			Help:      "Coalesced tuples resident across active batches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Inserts,
			m.TuplesInserted,
			m.Compactions,
			m.CompactionDuration,
			m.ActiveBatches,
			m.ResidentTuples,
		)
	}
	return m
}
