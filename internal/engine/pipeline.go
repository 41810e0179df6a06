// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine wires the data-plane components — parser, flow table,
// signature matcher, behavioral detector, mitigation engine — into a
// single per-packet pipeline.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"sasecore/internal/behavior"
	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
	"sasecore/internal/matcher"
	"sasecore/internal/mitigation"
	"sasecore/internal/packet"
)

// emaAlpha matches the smoothing constant used for latency stats
// elsewhere in the data plane (internal/matcher), kept consistent so
// dashboards built against one apply to the other.
const emaAlpha = 0.2

// Stage names a step of the pipeline, used only for stats and logging —
// the pipeline's actual control flow is a fixed Go function, not a
// data-driven stage list, since the hot path cannot afford the allocation
// a generic stage table would cost per packet.
type Stage int

const (
	StageParse Stage = iota
	StageFlowLookup
	StageMatch
	StageDetect
	StageCompose
	StageFlowInsert
	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageFlowLookup:
		return "flow_lookup"
	case StageMatch:
		return "match"
	case StageDetect:
		return "detect"
	case StageCompose:
		return "compose"
	case StageFlowInsert:
		return "flow_insert"
	default:
		return "unknown"
	}
}

// Stats accumulates per-stage packet counts and EMA-smoothed durations.
type Stats struct {
	packets       atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	flowTableFull atomic.Uint64
	stageNs       [stageCount]atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats safe to read concurrently
// with further updates.
type StatsSnapshot struct {
	Packets       uint64
	CacheHits     uint64
	CacheMisses   uint64
	FlowTableFull uint64
	StageNs       [stageCount]uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Packets:       s.packets.Load(),
		CacheHits:     s.cacheHits.Load(),
		CacheMisses:   s.cacheMisses.Load(),
		FlowTableFull: s.flowTableFull.Load(),
	}
	for i := range s.stageNs {
		snap.StageNs[i] = s.stageNs[i].Load()
	}
	return snap
}

func (s *Stats) record(stage Stage, elapsed time.Duration) {
	for {
		old := s.stageNs[stage].Load()
		var next uint64
		if old == 0 {
			next = uint64(elapsed)
		} else {
			next = uint64((1-emaAlpha)*float64(old) + emaAlpha*float64(elapsed))
		}
		if s.stageNs[stage].CompareAndSwap(old, next) {
			return
		}
	}
}

// Config tunes the pipeline's flow-table sizing, detection window, and
// mitigation control endpoints.
type Config struct {
	FlowTable  flowtable.Config
	Detector   behavior.Config
	Mitigation mitigation.Config
}

// DefaultConfig mirrors each component's own defaults.
func DefaultConfig() Config {
	return Config{
		FlowTable:  flowtable.DefaultConfig(),
		Detector:   behavior.DefaultConfig(),
		Mitigation: mitigation.DefaultConfig(),
	}
}

// Pipeline is the assembled data plane: parse → flow lookup → (cache hit:
// stats + exit) → signature match + behavioral observation → verdict
// composition → flow insert.
type Pipeline struct {
	flows      *flowtable.Table
	compiler   *matcher.Matcher
	detector   *behavior.Detector
	mitigation *mitigation.Engine
	limiter    *mitigation.LocalLimiter

	stats Stats

	mu                sync.Mutex
	activeMitigations map[string]*mitigation.ActiveMitigation // keyed by victim address
}

// New assembles a Pipeline from its constituent components. The caller
// owns compiling the initial rule set into compilerMatcher before passing
// it in (see internal/rules.Compiler.Compile).
func New(cfg Config, compilerMatcher *matcher.Matcher, mitigationExec mitigation.CommandExecutor) *Pipeline {
	return &Pipeline{
		flows:             flowtable.New(cfg.FlowTable),
		compiler:          compilerMatcher,
		detector:          behavior.New(cfg.Detector),
		mitigation:        mitigation.New(cfg.Mitigation, mitigationExec),
		limiter:           mitigation.NewLocalLimiter(),
		activeMitigations: map[string]*mitigation.ActiveMitigation{},
	}
}

// Stats returns a snapshot of the pipeline's accumulated stage stats.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// FlowTable exposes the pipeline's flow table for metrics/export wiring.
func (p *Pipeline) FlowTable() *flowtable.Table {
	return p.flows
}

// Matcher exposes the pipeline's signature matcher for metrics wiring.
func (p *Pipeline) Matcher() *matcher.Matcher {
	return p.compiler
}

// Detector exposes the pipeline's behavioral detector for metrics wiring.
func (p *Pipeline) Detector() *behavior.Detector {
	return p.detector
}

// ActiveMitigations returns the number of destinations currently under an
// active mitigation.
func (p *Pipeline) ActiveMitigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activeMitigations)
}

// ActiveMitigationFor returns dst's active mitigation record, if any. A
// caller driving EvaluateBehavior on a tick uses this to learn which
// strategy was chosen for a freshly activated mitigation (e.g. for
// metrics recording) without reaching into the pipeline's internal map.
func (p *Pipeline) ActiveMitigationFor(dst string) (*mitigation.ActiveMitigation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	am, ok := p.activeMitigations[dst]
	return am, ok
}

// Process runs one raw packet through the full pipeline and returns the
// inspection context (nil on an unparseable packet) and the verdict to
// enforce. A parse failure drops context, never traffic: the caller gets
// VerdictAllow rather than a blocked packet, per the core's fail-open
// contract for malformed-before-L3 frames.
func (p *Pipeline) Process(data []byte) (*packet.InspectionContext, flowtable.Verdict) {
	p.stats.packets.Add(1)

	t0 := time.Now()
	ctx, err := packet.Parse(data)
	p.stats.record(StageParse, time.Since(t0))
	if err != nil {
		return nil, flowtable.VerdictAllow
	}

	key := ctx.FlowKey()
	dst := addrString(ctx.DstIP, ctx.L3 == packet.L3IPv6)

	t0 = time.Now()
	verdict, hit := p.flows.LookupAndUpdate(key, uint64(len(data)))
	p.stats.record(StageFlowLookup, time.Since(t0))
	if hit && verdict != flowtable.VerdictInspect {
		p.stats.cacheHits.Add(1)
		p.observeBehavior(ctx, false)
		return ctx, verdict
	}
	if hit {
		// The cached verdict is Inspect: this flow is still undecided, so
		// every packet gets re-run through the signature scan rather than
		// riding the cache, until the matcher settles on something final.
		p.stats.cacheHits.Add(1)
	} else {
		p.stats.cacheMisses.Add(1)
	}

	// A destination already under an active rate-limit mitigation gets a
	// local throttle decision ahead of the signature scan — the control
	// plane's own policer takes effect on its own schedule, and packets
	// arriving before that still need a local backstop.
	if !p.limiter.Allow(dst) {
		ctx.Verdicts.Set(packet.ModuleVerdict{Slot: packet.SlotFirewall, Action: packet.ActionThrottle, Reason: "local rate limit"})
	}

	t0 = time.Now()
	p.compiler.Scan(ctx)
	p.stats.record(StageMatch, time.Since(t0))

	t0 = time.Now()
	p.observeBehavior(ctx, true)
	p.stats.record(StageDetect, time.Since(t0))

	t0 = time.Now()
	verdict = p.composeVerdict(ctx)
	p.stats.record(StageCompose, time.Since(t0))

	t0 = time.Now()
	tracked := hit
	if !hit {
		if err := p.flows.Insert(key, verdict); err != nil {
			p.stats.flowTableFull.Add(1)
		} else {
			tracked = true
		}
	} else {
		p.flows.SetVerdict(key, verdict)
	}
	if tracked {
		if verdict == flowtable.VerdictDrop || verdict == flowtable.VerdictReject {
			// Flag blocked flows for export so a kernel-side mirror (see
			// internal/ebpf/flow) can fast-path subsequent packets without a
			// second trip through this pipeline.
			p.flows.SetExportFlag(key, true)
		}
		// The composed module's Severity doubles as the flow's QoS class,
		// so the kernel-side mirror can derive a firewall mark from it
		// (see internal/qos.CalculateFWMark).
		p.flows.SetQoSClass(key, ctx.Verdicts.Compose().Severity)
	}
	p.stats.record(StageFlowInsert, time.Since(t0))

	return ctx, verdict
}

func (p *Pipeline) observeBehavior(ctx *packet.InspectionContext, isNewFlow bool) {
	dst := addrString(ctx.DstIP, ctx.L3 == packet.L3IPv6)
	p.detector.Observe(dst, behaviorObservation(ctx, isNewFlow))
}

// composeVerdict folds the signature matcher's module verdict into the
// flow table's coarser disposition: Block maps to Drop, Redirect to Reject,
// Throttle to Inspect, Log to Log, and anything else to Allow. The composed
// module verdicts stay on ctx for callers that need the finer-grained reason.
func (p *Pipeline) composeVerdict(ctx *packet.InspectionContext) flowtable.Verdict {
	composed := ctx.Verdicts.Compose()
	switch composed.Action {
	case packet.ActionBlock:
		return flowtable.VerdictDrop
	case packet.ActionRedirect:
		return flowtable.VerdictReject
	case packet.ActionThrottle:
		return flowtable.VerdictInspect
	case packet.ActionLog:
		return flowtable.VerdictLog
	default:
		return flowtable.VerdictAllow
	}
}

// EvaluateBehavior closes out the detector's current window for dst and,
// if an attack is detected or updated, activates or refreshes its
// mitigation. When the detector reports the attack Ended, the mitigation is
// torn down and the ended attack is returned. Callers invoke this on a fixed
// tick per tracked destination (see Config.Detector.Window), independent of
// the packet hot path.
func (p *Pipeline) EvaluateBehavior(dst string) *behavior.Attack {
	attack := p.detector.Evaluate(dst)
	if attack == nil || attack.Status == behavior.StatusEnded {
		p.mu.Lock()
		if am, ok := p.activeMitigations[dst]; ok {
			delete(p.activeMitigations, dst)
			p.mu.Unlock()
			p.mitigation.Deactivate(am)
			p.limiter.Remove(dst)
		} else {
			p.mu.Unlock()
		}
		return attack
	}

	p.mu.Lock()
	_, already := p.activeMitigations[dst]
	p.mu.Unlock()
	if already {
		// The mitigation engaged on an earlier window and is still holding:
		// the attack has moved past the initial activation into its
		// steady mitigated state.
		attack.Status = behavior.StatusMitigated
		return attack
	}

	allowedPPS := attack.Metrics.TotalPPS / 10
	if allowedPPS == 0 {
		allowedPPS = 1
	}
	p.limiter.Configure(dst, mitigation.TokenBucketSpec{PPS: allowedPPS, Burst: allowedPPS * 2})

	am := p.mitigation.Activate(attack)
	attack.Status = behavior.StatusMitigating
	p.mu.Lock()
	p.activeMitigations[dst] = am
	p.mu.Unlock()
	logging.Info("mitigation engaged", "dst", dst, "attack_type", attack.Type.String())
	return attack
}

// AgeFlows drives the flow table's aging sweep. Callers invoke this on a
// fixed tick, independent of the packet hot path.
func (p *Pipeline) AgeFlows() int {
	return p.flows.AgeFlows()
}
