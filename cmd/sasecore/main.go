// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command sasecore runs the SASE data-plane core as a standalone process:
// it loads the engine configuration, compiles the signature rule set,
// assembles the inspection pipeline, and drives it from a live packet
// ingress source until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sasecore/internal/behavior"
	"sasecore/internal/config"
	"sasecore/internal/ebpf/flow"
	"sasecore/internal/engine"
	"sasecore/internal/logging"
	"sasecore/internal/matcher"
	"sasecore/internal/metrics"
	"sasecore/internal/mitigation"
	"sasecore/internal/rules"
)

func main() {
	configPath := flag.String("config", "", "path to the engine HCL config file (defaults built in if unset)")
	ingressKind := flag.String("ingress", "nfqueue", "packet ingress source: nfqueue or nflog")
	queueNum := flag.Uint("queue", 100, "NFQUEUE/NFLOG group number the ingress source binds to")
	iface := flag.String("iface", "", "network interface to verify exists before starting (optional)")
	netnsName := flag.String("netns", "", "network namespace to enter before opening the ingress source (optional)")
	flag.Parse()

	if err := run(*configPath, *ingressKind, uint16(*queueNum), *iface, *netnsName); err != nil {
		fmt.Fprintln(os.Stderr, "sasecore:", err)
		os.Exit(1)
	}
}

func run(configPath, ingressKind string, queueNum uint16, iface, netnsName string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.ToLoggingConfig())
	logging.SetDefault(logger)

	if netnsName != "" {
		restore, err := enterNamespace(netnsName)
		if err != nil {
			return fmt.Errorf("entering network namespace %s: %w", netnsName, err)
		}
		defer restore()
	}

	if iface != "" {
		if err := verifyInterface(iface); err != nil {
			return fmt.Errorf("verifying interface %s: %w", iface, err)
		}
		logger.Info("monitoring interface", "iface", iface)
	}

	compiler := rules.NewCompiler()
	ruleSet, loadErr := loadRuleSet(cfg.Rules.SourcePath)
	if loadErr != nil {
		logger.Warn("failed to load rule source, starting with an empty rule set", "error", loadErr, "source_path", cfg.Rules.SourcePath)
	}
	stats := compiler.Compile(ruleSet)
	logger.Info("compiled signature rule set",
		"total_rules", stats.TotalRules,
		"compiled_patterns", stats.CompiledPatterns,
		"skipped_rules", stats.SkippedRules,
		"complex_patterns", stats.ComplexPatterns)

	m := matcher.New(compiler, matcher.NewRegexAutomaton())
	executor := mitigation.NewUnixSocketExecutor(0, 0)
	pipeline := engine.New(cfg.ToEngineConfig(), m, executor)

	registry := metrics.NewRegistry()
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		interval, err := time.ParseDuration(cfg.Metrics.Interval)
		if err != nil {
			return fmt.Errorf("parsing metrics.interval: %w", err)
		}
		collector = metrics.NewCollector(registry, pipeline, logger, interval)
		go collector.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mirror, err := startFlowMirror(pipeline, logger); err != nil {
		logger.Warn("flow mirror unavailable, continuing without kernel-side export", "error", err)
	} else {
		go mirror.Start()
		go func() { <-ctx.Done(); mirror.Stop() }()
	}

	agingInterval, err := time.ParseDuration(cfg.FlowTable.AgingInterval)
	if err != nil {
		return fmt.Errorf("parsing flow_table.aging_interval: %w", err)
	}
	detectorWindow, err := time.ParseDuration(cfg.Detector.Window)
	if err != nil {
		return fmt.Errorf("parsing detector.window: %w", err)
	}

	go runAgingLoop(ctx, pipeline, collector, agingInterval)
	go runDetectorLoop(ctx, pipeline, collector, logger, detectorWindow)
	go runConntrackCorrelation(ctx, pipeline, logger)

	source, err := newIngressSource(ingressKind, queueNum, logger)
	if err != nil {
		return fmt.Errorf("opening ingress source: %w", err)
	}
	defer source.Close()

	logger.Info("sasecore data plane starting", "ingress", ingressKind, "queue", queueNum)
	return source.Run(ctx, func(data []byte) flowVerdict {
		_, verdict := pipeline.Process(data)
		return mapVerdict(verdict)
	})
}

func loadConfig(path string) (*config.EngineConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runAgingLoop drives the flow table's aging sweep on a fixed tick,
// independent of the packet hot path.
func runAgingLoop(ctx context.Context, p *engine.Pipeline, c *metrics.Collector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := p.AgeFlows()
			if c != nil {
				c.RecordFlowsAged(n)
			}
		}
	}
}

// runDetectorLoop closes out the behavioral detector's window for every
// currently-tracked destination on a fixed tick, activating or refreshing
// mitigations as attacks are detected.
func runDetectorLoop(ctx context.Context, p *engine.Pipeline, c *metrics.Collector, logger *logging.Logger, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dst := range p.Detector().Destinations() {
				attack := p.EvaluateBehavior(dst)
				if attack == nil || c == nil || attack.Status != behavior.StatusMitigating {
					continue
				}
				if am, ok := p.ActiveMitigationFor(dst); ok {
					c.RecordMitigationActivation(am.Strategy)
				}
			}
		}
	}
}

// startFlowMirror builds the optional eBPF flow-table mirror. Returning an
// error here is not fatal to the data plane: a deployment without
// CAP_BPF/CAP_SYS_ADMIN still runs signature matching and behavioral
// detection, it just has no kernel-side fast-drop path.
func startFlowMirror(p *engine.Pipeline, logger *logging.Logger) (*flow.Manager, error) {
	cfg := flow.DefaultConfig()
	bpfMap, err := flow.NewMap(cfg)
	if err != nil {
		return nil, err
	}
	return flow.NewManager(p.FlowTable(), bpfMap, logger, cfg), nil
}
