// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the data plane's internal counters and gauges
// through a private Prometheus registry, polled on a fixed interval by a
// Collector rather than computed on the packet hot path.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric this engine publishes. It wraps its own
// prometheus.Registry rather than using the global DefaultRegisterer, so a
// process embedding this engine alongside other Prometheus-instrumented
// components never collides on metric names.
type Registry struct {
	reg *prometheus.Registry

	FlowTableOccupancy prometheus.Gauge
	FlowTableCapacity  prometheus.Gauge
	FlowTableLoad      prometheus.Gauge
	FlowTableAged      prometheus.Counter
	FlowTableFull      prometheus.Counter

	CompilerRules    prometheus.Gauge
	CompilerSkipped  prometheus.Gauge
	CompilerComplex  prometheus.Gauge
	CompilerLastSecs prometheus.Gauge

	MatcherScans      prometheus.Counter
	MatcherMatches    prometheus.Counter
	MatcherScanErrors prometheus.Counter
	MatcherAvgScanNs  prometheus.Gauge

	DetectorActiveTargets prometheus.Gauge

	MitigationActivations   *prometheus.CounterVec
	MitigationActiveTargets prometheus.Gauge

	PipelineStageNs *prometheus.GaugeVec
}

// NewRegistry builds and registers every metric on a fresh private
// registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,

		FlowTableOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "flow_table", Name: "occupancy",
			Help: "Number of live entries currently held in the flow table.",
		}),
		FlowTableCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "flow_table", Name: "capacity",
			Help: "Configured flow table slot count.",
		}),
		FlowTableLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "flow_table", Name: "load_factor",
			Help: "Flow table occupancy as a fraction of capacity.",
		}),
		FlowTableAged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "flow_table", Name: "aged_total",
			Help: "Total flow entries evicted by the aging sweep.",
		}),
		FlowTableFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "flow_table", Name: "insert_rejected_total",
			Help: "Total flow inserts rejected because the table was full.",
		}),

		CompilerRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "compiler", Name: "compiled_patterns",
			Help: "Number of signature patterns in the currently active rule set.",
		}),
		CompilerSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "compiler", Name: "skipped_rules",
			Help: "Number of rules skipped by the most recent compile.",
		}),
		CompilerComplex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "compiler", Name: "complex_patterns",
			Help: "Number of patterns flagged as complex by the most recent compile.",
		}),
		CompilerLastSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "compiler", Name: "last_compile_seconds",
			Help: "Wall-clock duration of the most recent rule compile.",
		}),

		MatcherScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "matcher", Name: "scans_total",
			Help: "Total packets scanned against the compiled rule set.",
		}),
		MatcherMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "matcher", Name: "matches_total",
			Help: "Total signature matches found.",
		}),
		MatcherScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "matcher", Name: "scan_errors_total",
			Help: "Total scan errors (e.g. a pattern that failed to compile at match time).",
		}),
		MatcherAvgScanNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "matcher", Name: "avg_scan_nanoseconds",
			Help: "EMA-smoothed per-packet scan latency in nanoseconds.",
		}),

		DetectorActiveTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "detector", Name: "active_targets",
			Help: "Number of destinations currently under an active attack.",
		}),

		MitigationActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sasecore", Subsystem: "mitigation", Name: "activations_total",
			Help: "Total mitigations activated, by strategy.",
		}, []string{"strategy"}),
		MitigationActiveTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "mitigation", Name: "active_targets",
			Help: "Number of destinations with a mitigation currently installed.",
		}),

		PipelineStageNs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sasecore", Subsystem: "pipeline", Name: "stage_nanoseconds",
			Help: "EMA-smoothed per-stage packet processing latency in nanoseconds.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		r.FlowTableOccupancy, r.FlowTableCapacity, r.FlowTableLoad, r.FlowTableAged, r.FlowTableFull,
		r.CompilerRules, r.CompilerSkipped, r.CompilerComplex, r.CompilerLastSecs,
		r.MatcherScans, r.MatcherMatches, r.MatcherScanErrors, r.MatcherAvgScanNs,
		r.DetectorActiveTargets,
		r.MitigationActivations, r.MitigationActiveTargets,
		r.PipelineStageNs,
	)

	return r
}

// Gatherer exposes the underlying registry for an HTTP exposition handler
// (e.g. promhttp.HandlerFor), which lives outside this engine's scope.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
