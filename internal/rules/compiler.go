// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"sasecore/internal/errors"
	"sasecore/internal/logging"
)

// Pattern compile flag bits, mirrored from the automaton this is ultimately
// headed toward so a future swap to a multi-pattern engine needs no format
// change here.
const (
	FlagCaseless    uint32 = 1 << 0
	FlagMultiline   uint32 = 1 << 1
	FlagDotAll      uint32 = 1 << 2
	FlagSingleMatch uint32 = 1 << 3
)

// CompiledPattern is one pattern entry in a CompiledRuleSet: a regex string
// plus the rule metadata the matcher attaches to a hit.
type CompiledPattern struct {
	ID       uint32
	SID      uint32
	Action   Action
	Pattern  string
	Flags    uint32
	Severity uint8
	Category string
	Msg      string

	compiled *regexp.Regexp
}

// Regexp lazily compiles and caches the pattern's stdlib regexp.
func (p *CompiledPattern) Regexp() (*regexp.Regexp, error) {
	if p.compiled != nil {
		return p.compiled, nil
	}
	expr := p.Pattern
	if p.Flags&FlagCaseless != 0 {
		expr = "(?i)" + expr
	}
	if p.Flags&FlagDotAll != 0 {
		expr = "(?s)" + expr
	}
	if p.Flags&FlagMultiline != 0 {
		expr = "(?m)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "compile pattern sid=%d", p.SID)
	}
	p.compiled = re
	return re, nil
}

// CompiledRuleSet is the immutable, swappable pattern database the matcher
// scans against. A freshly-compiled set replaces the running one atomically;
// in-flight scans keep using the set they loaded at scan start.
type CompiledRuleSet struct {
	PatternCount int
	RuleCount    int
	Patterns     []CompiledPattern
	PatternByID  map[uint32]*CompiledPattern
	PatternsBySID map[uint32][]uint32
}

func emptyRuleSet() *CompiledRuleSet {
	return &CompiledRuleSet{
		PatternByID:   map[uint32]*CompiledPattern{},
		PatternsBySID: map[uint32][]uint32{},
	}
}

// GetPattern looks up a pattern's compiled metadata by ID.
func (db *CompiledRuleSet) GetPattern(id uint32) (*CompiledPattern, bool) {
	p, ok := db.PatternByID[id]
	return p, ok
}

// IsBlocking reports whether id's rule action is Drop or Reject.
func (db *CompiledRuleSet) IsBlocking(id uint32) bool {
	p, ok := db.PatternByID[id]
	return ok && (p.Action == ActionDrop || p.Action == ActionReject)
}

// CompilerStats summarizes the outcome of a compilation pass.
type CompilerStats struct {
	TotalRules      int
	CompiledPatterns int
	SkippedRules    int
	ComplexPatterns int
	CompileTime     time.Duration
}

// Compiler holds the currently-published CompiledRuleSet behind an
// atomic.Pointer so Compile can hot-swap it without a lock: readers always
// see either the old or the new set, never a partially-built one.
type Compiler struct {
	db    atomic.Pointer[CompiledRuleSet]
	stats atomic.Pointer[CompilerStats]
}

// NewCompiler returns a Compiler with an empty published rule set.
func NewCompiler() *Compiler {
	c := &Compiler{}
	c.db.Store(emptyRuleSet())
	c.stats.Store(&CompilerStats{})
	return c
}

// Compile lowers rules into regex patterns and publishes the result,
// skipping any content/pcre pattern whose regex fails to compile or whose
// PCRE features are unsupported rather than failing the whole batch.
func (c *Compiler) Compile(rs []Rule) CompilerStats {
	start := time.Now()

	db := emptyRuleSet()
	var patternID uint32
	skipped := 0
	complex := 0

	for _, rule := range rs {
		sid := rule.Meta.SID
		var rulePatterns []uint32

		for _, content := range rule.ContentPatterns {
			pattern, ok := contentToPattern(content)
			if !ok {
				complex++
				continue
			}
			flags := FlagSingleMatch
			if content.Options.Nocase {
				flags |= FlagCaseless
			}
			cp := CompiledPattern{
				ID: patternID, SID: sid, Action: rule.Action,
				Pattern: pattern, Flags: flags,
				Severity: rule.Meta.Severity, Category: rule.Meta.Category, Msg: rule.Meta.Msg,
			}
			if _, err := cp.Regexp(); err != nil {
				logging.Debug("skipping uncompilable content pattern", "sid", sid, "error", err)
				complex++
				continue
			}
			db.Patterns = append(db.Patterns, cp)
			db.PatternByID[patternID] = &db.Patterns[len(db.Patterns)-1]
			rulePatterns = append(rulePatterns, patternID)
			patternID++
		}

		for _, pcre := range rule.PcrePatterns {
			pattern, ok := pcreToPattern(pcre)
			if !ok {
				complex++
				continue
			}
			flags := FlagSingleMatch
			if strings.ContainsRune(pcre.Modifiers, 'i') {
				flags |= FlagCaseless
			}
			if strings.ContainsRune(pcre.Modifiers, 'm') {
				flags |= FlagMultiline
			}
			if strings.ContainsRune(pcre.Modifiers, 's') {
				flags |= FlagDotAll
			}
			cp := CompiledPattern{
				ID: patternID, SID: sid, Action: rule.Action,
				Pattern: pattern, Flags: flags,
				Severity: rule.Meta.Severity, Category: rule.Meta.Category, Msg: rule.Meta.Msg,
			}
			if _, err := cp.Regexp(); err != nil {
				logging.Debug("skipping uncompilable pcre pattern", "sid", sid, "error", err)
				complex++
				continue
			}
			db.Patterns = append(db.Patterns, cp)
			db.PatternByID[patternID] = &db.Patterns[len(db.Patterns)-1]
			rulePatterns = append(rulePatterns, patternID)
			patternID++
		}

		if len(rulePatterns) == 0 {
			skipped++
		} else {
			db.PatternsBySID[sid] = rulePatterns
		}
	}

	db.PatternCount = len(db.Patterns)
	db.RuleCount = len(db.PatternsBySID)

	stats := CompilerStats{
		TotalRules:       len(rs),
		CompiledPatterns: int(patternID),
		SkippedRules:     skipped,
		ComplexPatterns:  complex,
		CompileTime:      time.Since(start),
	}

	c.db.Store(db)
	c.stats.Store(&stats)

	logging.Info("rule compilation complete",
		"rules", len(rs), "patterns", patternID, "skipped", skipped, "time_ms", stats.CompileTime.Milliseconds())

	return stats
}

// HotReload parses content and republishes the compiled set, returning the
// new stats. Parse errors in individual rules are logged, not fatal.
func (c *Compiler) HotReload(content string) CompilerStats {
	result := ParseContent(content)
	if len(result.Errors) > 0 {
		logging.Warn("some rules failed to parse", "errors", len(result.Errors))
	}
	return c.Compile(result.Rules)
}

// Database returns the currently-published CompiledRuleSet.
func (c *Compiler) Database() *CompiledRuleSet {
	return c.db.Load()
}

// Stats returns the stats from the most recent Compile call.
func (c *Compiler) Stats() CompilerStats {
	return *c.stats.Load()
}

func contentToPattern(c ContentPattern) (string, bool) {
	if c.IsHex {
		return c.Pattern, true
	}
	return regexp.QuoteMeta(c.Pattern), true
}

func pcreToPattern(p PcrePattern) (string, bool) {
	if strings.Contains(p.Pattern, "(?R)") || strings.Contains(p.Pattern, "(?P<") {
		return "", false
	}
	return p.Pattern, true
}
