// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleRule(t *testing.T) {
	rule, err := ParseSingleRule(`alert http any any -> any any (msg:"Test Rule"; content:"malware"; nocase; sid:1000001; rev:1;)`)
	require.NoError(t, err)

	require.Equal(t, ActionAlert, rule.Action)
	require.Equal(t, ProtoHTTP, rule.Protocol)
	require.Equal(t, "Test Rule", rule.Meta.Msg)
	require.Equal(t, uint32(1000001), rule.Meta.SID)
	require.Len(t, rule.ContentPatterns, 1)
	require.Equal(t, "malware", rule.ContentPatterns[0].Pattern)
	require.True(t, rule.ContentPatterns[0].Options.Nocase)
}

func TestParsePcreRule(t *testing.T) {
	rule, err := ParseSingleRule(`alert http any any -> any any (msg:"PCRE Test"; pcre:"/eval\s*\(/i"; sid:1000002;)`)
	require.NoError(t, err)

	require.Len(t, rule.PcrePatterns, 1)
	require.Equal(t, `eval\s*\(`, rule.PcrePatterns[0].Pattern)
	require.Equal(t, "i", rule.PcrePatterns[0].Modifiers)
}

func TestParseHexContent(t *testing.T) {
	rule, err := ParseSingleRule(`alert tcp any any -> any any (msg:"Hex Test"; content:"|00 01 02 03|"; sid:1000003;)`)
	require.NoError(t, err)

	require.Len(t, rule.ContentPatterns, 1)
	require.True(t, rule.ContentPatterns[0].IsHex)
	require.Equal(t, `\x00\x01\x02\x03`, rule.ContentPatterns[0].Pattern)
}

func TestParseMissingOptionsSection(t *testing.T) {
	_, err := ParseSingleRule(`alert tcp any any -> any any`)
	require.Error(t, err)
}

func TestParseUnknownAction(t *testing.T) {
	_, err := ParseSingleRule(`bogus tcp any any -> any any (sid:1;)`)
	require.Error(t, err)
}

func TestParseContentMultiLine(t *testing.T) {
	result := ParseContent(`
# a comment
alert tcp any any -> any any (msg:"one"; sid:1;)

alert tcp any any -> \
    any any (msg:"two"; sid:2;)
`)
	require.Empty(t, result.Errors)
	require.Len(t, result.Rules, 2)
	require.Equal(t, "two", result.Rules[1].Meta.Msg)
}

func TestParsePcreLastSlashSplit(t *testing.T) {
	p, ok := parsePcre(`"/a\/b\/c/i"`)
	require.True(t, ok)
	require.Equal(t, `a\/b\/c`, p.Pattern)
	require.Equal(t, "i", p.Modifiers)
}
