// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"time"

	"sasecore/internal/engine"
	"sasecore/internal/logging"
)

// Collector polls the running pipeline's components on a fixed interval
// and republishes their counters as Prometheus metrics. It never touches
// the packet hot path directly — every value it reads is already an
// atomic/lock-guarded stat the pipeline maintains for its own purposes.
//
// The pipeline's own counters are cumulative totals, never reset; this
// collector tracks the last value it saw for each so it can report the
// delta as a Prometheus Counter increment rather than overwriting it.
type Collector struct {
	registry *Registry
	pipeline *engine.Pipeline
	logger   *logging.Logger
	interval time.Duration
	stopCh   chan struct{}

	lastFlowTableFull uint64
	lastScans         uint64
	lastMatches       uint64
	lastScanErrors    uint64
}

// NewCollector builds a Collector publishing pipeline's stats to registry
// every interval.
func NewCollector(registry *Registry, pipeline *engine.Pipeline, logger *logging.Logger, interval time.Duration) *Collector {
	return &Collector{
		registry: registry,
		pipeline: pipeline,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called. Intended to be run
// in its own goroutine.
func (c *Collector) Start() {
	c.logger.Info("starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			c.logger.Info("stopping metrics collector")
			return
		}
	}
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	flows := c.pipeline.FlowTable()
	c.registry.FlowTableOccupancy.Set(float64(flows.Len()))
	c.registry.FlowTableCapacity.Set(float64(flows.Capacity()))
	c.registry.FlowTableLoad.Set(flows.LoadFactor())

	stageStats := c.pipeline.Stats()
	c.lastFlowTableFull = addDelta(c.registry.FlowTableFull, c.lastFlowTableFull, stageStats.FlowTableFull)
	for stage := engine.Stage(0); int(stage) < len(stageStats.StageNs); stage++ {
		c.registry.PipelineStageNs.WithLabelValues(stage.String()).Set(float64(stageStats.StageNs[stage]))
	}

	compilerStats := c.pipeline.Matcher().Compiler().Stats()
	c.registry.CompilerRules.Set(float64(compilerStats.CompiledPatterns))
	c.registry.CompilerSkipped.Set(float64(compilerStats.SkippedRules))
	c.registry.CompilerComplex.Set(float64(compilerStats.ComplexPatterns))
	c.registry.CompilerLastSecs.Set(compilerStats.CompileTime.Seconds())

	scans, matches, scanErrors, avgScanNs := c.pipeline.Matcher().Stats().Snapshot()
	c.lastScans = addDelta(c.registry.MatcherScans, c.lastScans, scans)
	c.lastMatches = addDelta(c.registry.MatcherMatches, c.lastMatches, matches)
	c.lastScanErrors = addDelta(c.registry.MatcherScanErrors, c.lastScanErrors, scanErrors)
	c.registry.MatcherAvgScanNs.Set(float64(avgScanNs))

	c.registry.DetectorActiveTargets.Set(float64(c.pipeline.Detector().ActiveAttacks()))
	c.registry.MitigationActiveTargets.Set(float64(c.pipeline.ActiveMitigations()))
}

// addDelta adds the increase since last to counter and returns current as
// the new "last" value for the next tick.
func addDelta(counter interface{ Add(float64) }, last, current uint64) uint64 {
	if current > last {
		counter.Add(float64(current - last))
	}
	return current
}

// RecordMitigationActivation increments the activation counter for
// strategy. Called by the engine's own tick loop whenever
// Pipeline.EvaluateBehavior engages a new mitigation — a genuine event,
// not something this poll-driven collector can observe on its own.
func (c *Collector) RecordMitigationActivation(strategy string) {
	c.registry.MitigationActivations.WithLabelValues(strategy).Inc()
}

// RecordFlowsAged increments the flow-table aging counter by n. Called by
// whatever drives Pipeline.AgeFlows on its own tick.
func (c *Collector) RecordFlowsAged(n int) {
	if n > 0 {
		c.registry.FlowTableAged.Add(float64(n))
	}
}
