// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package matcher scans packet payloads against the currently-published
// signature database and composes a module verdict from the matching
// patterns.
package matcher

import "sasecore/internal/rules"

// Match is one pattern hit: the pattern ID and the byte offset one past the
// end of the match, mirroring the `(pattern_id, end_offset)` contract an
// external multi-pattern automaton would return in block-mode scanning.
type Match struct {
	PatternID uint32
	EndOffset int
}

// Scratch is per-goroutine scan state a concrete Automaton may need to
// avoid allocating on every Scan call. Callers allocate one Scratch per
// worker and reuse it.
type Scratch interface{}

// Automaton is the swappable multi-pattern scan engine. A concrete
// implementation owns however it represents db.Patterns internally; the
// regexAutomaton in this package uses Go's stdlib regexp package compiled
// per-pattern, scanned in a simple loop, since no multi-pattern automaton
// library (Hyperscan, Aho-Corasick, vectorscan bindings) is available to
// this module. The interface exists so a faster concrete engine can be
// substituted without touching the matcher's verdict-composition logic.
type Automaton interface {
	AllocScratch(db *rules.CompiledRuleSet) (Scratch, error)
	Scan(db *rules.CompiledRuleSet, scratch Scratch, data []byte) ([]Match, error)
}

type regexAutomaton struct{}

// NewRegexAutomaton returns the stdlib-regexp-backed Automaton.
func NewRegexAutomaton() Automaton { return regexAutomaton{} }

type regexScratch struct{}

func (regexAutomaton) AllocScratch(db *rules.CompiledRuleSet) (Scratch, error) {
	return regexScratch{}, nil
}

// Scan runs every pattern's compiled regexp against data in single-match
// mode: at most one match per pattern is reported, matching the
// FlagSingleMatch semantics every compiled pattern carries.
func (regexAutomaton) Scan(db *rules.CompiledRuleSet, _ Scratch, data []byte) ([]Match, error) {
	var matches []Match
	for i := range db.Patterns {
		p := &db.Patterns[i]
		re, err := p.Regexp()
		if err != nil {
			return nil, err
		}
		loc := re.FindIndex(data)
		if loc == nil {
			continue
		}
		matches = append(matches, Match{PatternID: p.ID, EndOffset: loc[1]})
	}
	return matches, nil
}
