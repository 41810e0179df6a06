// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package behavior

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sasecore/internal/logging"
)

// endedHysteresisWindows is how many consecutive below-threshold windows an
// active attack must see before it transitions to Ended. A single dip below
// threshold is not enough — attack traffic is bursty and a 1-window
// hysteresis would flap the mitigation engine on/off.
const endedHysteresisWindows = 3

// topSourcesLimit is how many top attacking sources an Attack record
// carries, widened from the reference implementation's 10 to 100 so the
// mitigation engine's per-source ACL fan-out (up to max_acl_rules) has
// enough material to work with.
const topSourcesLimit = 100

// Config tunes the detector's windowing and sensitivity.
type Config struct {
	AnomalyThreshold float64
	MinSamples       uint64
	Window           time.Duration
	LearningRate     float64
}

// DefaultConfig mirrors the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold: 0.8,
		MinSamples:       100,
		Window:           100 * time.Millisecond,
		LearningRate:     DefaultAlpha,
	}
}

// AttackStatus tracks an Attack's lifecycle.
type AttackStatus uint8

const (
	StatusDetected AttackStatus = iota
	StatusMitigating
	StatusMitigated
	StatusEnded
)

// AttackTarget identifies the victim of a detected attack.
type AttackTarget struct {
	Addr     string
	Port     uint16
	Protocol string
}

// AttackSource is one contributing attacker in an Attack's top-N list.
type AttackSource struct {
	Addr string
	PPS  uint64
}

// AttackMetrics summarizes the window that triggered detection.
type AttackMetrics struct {
	TotalPPS      uint64
	TotalBPS      uint64
	UniqueSources uint64
	AvgPacketSize uint32
}

// Attack is a detected behavioral anomaly classified into an AttackType.
type Attack struct {
	ID         string
	Type       AttackType
	Target     AttackTarget
	Sources    []AttackSource
	Metrics    AttackMetrics
	StartedAt  time.Time
	LastSeen   time.Time
	Status     AttackStatus

	belowThresholdStreak int
}

// destState is the detector's per-destination tracking: its metrics buffer,
// its private baseline, and the active attack if one is underway.
type destState struct {
	mu       sync.Mutex
	buffer   *MetricsBuffer
	baseline *BaselineModel
	active   *Attack
}

// Detector is the behavioral anomaly detector: one sharded metrics buffer
// and baseline per destination address, scanned on a fixed window tick.
type Detector struct {
	cfg Config

	mu    sync.RWMutex
	byDst map[string]*destState
}

// New builds a Detector with the given config.
func New(cfg Config) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = DefaultConfig().AnomalyThreshold
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	return &Detector{cfg: cfg, byDst: map[string]*destState{}}
}

func (d *Detector) stateFor(dst string) *destState {
	d.mu.RLock()
	st, ok := d.byDst[dst]
	d.mu.RUnlock()
	if ok {
		return st
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok = d.byDst[dst]; ok {
		return st
	}
	st = &destState{buffer: NewMetricsBuffer(), baseline: NewBaselineModel(d.cfg.LearningRate)}
	d.byDst[dst] = st
	return st
}

// Observe records one packet's constant-size contribution to its
// destination's current window.
func (d *Detector) Observe(dst string, obs PacketObservation) {
	st := d.stateFor(dst)
	st.mu.Lock()
	st.buffer.Record(obs)
	st.mu.Unlock()
}

// Evaluate closes out dst's current window: extracts features, scores them
// against the baseline, and either folds the window into the baseline (no
// attack) or classifies and returns/updates an Attack. Callers invoke this
// once per destination per configured Window tick.
func (d *Detector) Evaluate(dst string) *Attack {
	st := d.stateFor(dst)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.buffer.TotalPackets < d.cfg.MinSamples {
		st.buffer.Reset()
		return st.active
	}

	windowSeconds := st.buffer.DurationSeconds()
	features := Extract(st.buffer, windowSeconds)
	score := st.baseline.AnomalyScore(features)

	if score < d.cfg.AnomalyThreshold {
		st.baseline.Update(features)
		st.buffer.Reset()
		return d.maybeEndAttack(st)
	}

	attackType := Classify(features)
	now := time.Now()

	if st.active == nil {
		st.active = &Attack{
			ID:   uuid.NewString(),
			Type: attackType,
			Target: AttackTarget{
				Addr:     dst,
				Protocol: dominantProtocol(features),
			},
			Sources:   topSources(st.buffer, topSourcesLimit),
			Metrics:   metricsFromFeatures(features),
			StartedAt: now,
			LastSeen:  now,
			Status:    StatusDetected,
		}
		logging.Warn("behavioral attack detected", "dst", dst, "type", attackType.String(), "score", score)
	} else {
		st.active.Type = attackType
		st.active.Target.Protocol = dominantProtocol(features)
		st.active.Sources = topSources(st.buffer, topSourcesLimit)
		st.active.Metrics = metricsFromFeatures(features)
		st.active.LastSeen = now
		st.active.belowThresholdStreak = 0
	}

	st.buffer.Reset()
	return st.active
}

// ActiveAttacks returns the number of destinations with an attack
// currently underway, for metrics exposition.
func (d *Detector) ActiveAttacks() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, st := range d.byDst {
		st.mu.Lock()
		if st.active != nil {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// Destinations returns every destination address currently tracked, so a
// caller driving the per-window Evaluate tick knows what to evaluate
// without reaching into the detector's internal map.
func (d *Detector) Destinations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.byDst))
	for dst := range d.byDst {
		out = append(out, dst)
	}
	return out
}

func (d *Detector) maybeEndAttack(st *destState) *Attack {
	if st.active == nil {
		return nil
	}
	st.active.belowThresholdStreak++
	if st.active.belowThresholdStreak >= endedHysteresisWindows {
		st.active.Status = StatusEnded
		ended := st.active
		st.active = nil
		return ended
	}
	return st.active
}

// dominantProtocol reports which protocol actually dominated the window,
// rather than assuming TCP regardless of classified attack type.
func dominantProtocol(f TrafficFeatures) string {
	switch {
	case f.UDPRatio >= f.TCPRatio && f.UDPRatio >= f.ICMPRatio:
		return "udp"
	case f.ICMPRatio >= f.TCPRatio && f.ICMPRatio >= f.UDPRatio:
		return "icmp"
	default:
		return "tcp"
	}
}

func metricsFromFeatures(f TrafficFeatures) AttackMetrics {
	return AttackMetrics{
		TotalPPS:      uint64(f.PPS),
		TotalBPS:      uint64(f.BPS),
		UniqueSources: f.UniqueSources,
		AvgPacketSize: uint32(f.AvgPacketSize),
	}
}

func topSources(buf *MetricsBuffer, limit int) []AttackSource {
	sources := make([]AttackSource, 0, len(buf.SourceCounts))
	for addr, count := range buf.SourceCounts {
		sources = append(sources, AttackSource{Addr: addr, PPS: count})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].PPS > sources[j].PPS })
	if len(sources) > limit {
		sources = sources[:limit]
	}
	return sources
}
