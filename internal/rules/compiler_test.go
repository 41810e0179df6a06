// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const threeRules = `
alert http any any -> any any (msg:"Test 1"; content:"malware"; nocase; sid:1;)
alert tcp any any -> any any (msg:"Test 2"; content:"|00 01|"; sid:2;)
alert http any any -> any any (msg:"Test 3"; pcre:"/eval\s*\(/i"; sid:3;)
`

func TestCompileRules(t *testing.T) {
	result := ParseContent(threeRules)
	require.Empty(t, result.Errors)
	require.Len(t, result.Rules, 3)

	c := NewCompiler()
	stats := c.Compile(result.Rules)

	require.Equal(t, 3, stats.TotalRules)
	require.GreaterOrEqual(t, stats.CompiledPatterns, 3)

	db := c.Database()
	require.GreaterOrEqual(t, db.PatternCount, 3)
}

func TestCompilerHotSwapIsAtomic(t *testing.T) {
	c := NewCompiler()
	first := ParseContent(`alert tcp any any -> any any (msg:"a"; content:"x"; sid:1;)`)
	c.Compile(first.Rules)
	dbBefore := c.Database()

	second := ParseContent(`alert tcp any any -> any any (msg:"b"; content:"y"; sid:2;)
alert tcp any any -> any any (msg:"c"; content:"z"; sid:3;)`)
	c.Compile(second.Rules)
	dbAfter := c.Database()

	require.Equal(t, 1, dbBefore.PatternCount)
	require.Equal(t, 2, dbAfter.PatternCount)
}

func TestCaselessFlagSetsRegexPrefix(t *testing.T) {
	rule, err := ParseSingleRule(`alert tcp any any -> any any (content:"ABC"; nocase; sid:1;)`)
	require.NoError(t, err)

	c := NewCompiler()
	c.Compile([]Rule{rule})
	db := c.Database()
	require.Len(t, db.Patterns, 1)

	re, err := db.Patterns[0].Regexp()
	require.NoError(t, err)
	require.True(t, re.MatchString("abc"))
}

func TestIsBlockingForDropAndReject(t *testing.T) {
	db := emptyRuleSet()
	db.Patterns = []CompiledPattern{{ID: 1, Action: ActionDrop}, {ID: 2, Action: ActionAlert}}
	db.PatternByID[1] = &db.Patterns[0]
	db.PatternByID[2] = &db.Patterns[1]

	require.True(t, db.IsBlocking(1))
	require.False(t, db.IsBlocking(2))
}

func TestHotReloadPublishesNewStats(t *testing.T) {
	c := NewCompiler()
	stats := c.HotReload(threeRules)
	require.Equal(t, 3, stats.TotalRules)
}
