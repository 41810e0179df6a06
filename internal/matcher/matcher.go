// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package matcher

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"sasecore/internal/logging"
	"sasecore/internal/packet"
	"sasecore/internal/rules"
)

// Stats are the matcher's running counters, safe for concurrent read while
// Scan updates them.
type Stats struct {
	scans       atomic.Uint64
	matches     atomic.Uint64
	scanErrors  atomic.Uint64
	avgScanNs   atomic.Uint64 // EMA-smoothed scan duration, nanoseconds
}

func (s *Stats) Snapshot() (scans, matches, scanErrors, avgScanNs uint64) {
	return s.scans.Load(), s.matches.Load(), s.scanErrors.Load(), s.avgScanNs.Load()
}

// emaAlpha smooths the scan-duration estimate; matches the style of the
// teacher's EMA-smoothed match-time stat.
const emaAlpha = 0.2

// Matcher scans a payload against a Compiler-published CompiledRuleSet and
// composes the result into a packet.ModuleVerdict for the IPS slot.
type Matcher struct {
	compiler  *rules.Compiler
	automaton Automaton

	scratchPool sync.Pool
	stats       Stats
}

// New builds a Matcher over compiler using automaton as the scan engine.
func New(compiler *rules.Compiler, automaton Automaton) *Matcher {
	m := &Matcher{compiler: compiler, automaton: automaton}
	m.scratchPool.New = func() any {
		scratch, err := automaton.AllocScratch(compiler.Database())
		if err != nil {
			return nil
		}
		return scratch
	}
	return m
}

// Stats returns the matcher's running counters.
func (m *Matcher) Stats() *Stats { return &m.stats }

// Compiler exposes the backing rule compiler for metrics/export wiring.
func (m *Matcher) Compiler() *rules.Compiler { return m.compiler }

// Scan inspects ctx's payload against the current rule set and records a
// ModuleVerdict in the IPS slot. A scan error degrades to Allow and bumps
// the error counter — it never produces a Block, so a matcher bug cannot
// blackhole traffic.
func (m *Matcher) Scan(ctx *packet.InspectionContext) {
	data := ctx.Payload.Remaining()
	if len(data) == 0 {
		return
	}

	db := m.compiler.Database()
	if db.PatternCount == 0 {
		return
	}

	scratch, _ := m.scratchPool.Get().(Scratch)
	defer m.scratchPool.Put(scratch)

	start := time.Now()
	matches, err := m.automaton.Scan(db, scratch, data)
	elapsed := time.Since(start)
	m.recordScan(elapsed)

	if err != nil {
		m.stats.scanErrors.Add(1)
		logging.Warn("signature scan failed, degrading to allow", "error", err)
		return
	}
	if len(matches) == 0 {
		return
	}
	m.stats.matches.Add(uint64(len(matches)))

	ctx.Verdicts.Set(composeVerdict(db, matches))
}

func (m *Matcher) recordScan(elapsed time.Duration) {
	m.stats.scans.Add(1)
	ns := uint64(elapsed.Nanoseconds())
	for {
		prev := m.stats.avgScanNs.Load()
		var next uint64
		if prev == 0 {
			next = ns
		} else {
			next = uint64(float64(prev) + emaAlpha*(float64(ns)-float64(prev)))
		}
		if m.stats.avgScanNs.CompareAndSwap(prev, next) {
			return
		}
	}
}

// composeVerdict reduces every pattern match to the single most severe
// module verdict: Drop/Reject map to Block, Alert/Log map to Log, Pass
// maps to Allow. Among equal actions the higher severity wins; full ties
// keep the first-seen rule's reason/ID.
func composeVerdict(db *rules.CompiledRuleSet, matches []Match) packet.ModuleVerdict {
	best := packet.ModuleVerdict{Slot: packet.SlotIPS, Action: packet.ActionAllow}
	haveBest := false

	for _, match := range matches {
		cp, ok := db.GetPattern(match.PatternID)
		if !ok {
			continue
		}
		action := actionFor(cp.Action)
		if !haveBest || action > best.Action || (action == best.Action && cp.Severity > best.Severity) {
			best = packet.ModuleVerdict{
				Slot:     packet.SlotIPS,
				Action:   action,
				Reason:   cp.Msg,
				RuleID:   formatSID(cp.SID),
				Severity: cp.Severity,
			}
			haveBest = true
		}
	}
	return best
}

func actionFor(a rules.Action) packet.Action {
	switch a {
	case rules.ActionDrop, rules.ActionReject:
		return packet.ActionBlock
	case rules.ActionAlert, rules.ActionLog:
		return packet.ActionLog
	case rules.ActionPass:
		return packet.ActionAllow
	default:
		return packet.ActionAllow
	}
}

func formatSID(sid uint32) string {
	if sid == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(sid), 10)
}
