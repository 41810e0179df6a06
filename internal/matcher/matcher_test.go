// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package matcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"sasecore/internal/packet"
	"sasecore/internal/rules"
)

func compileOne(t *testing.T, ruleText string) *rules.Compiler {
	t.Helper()
	result := rules.ParseContent(ruleText)
	require.Empty(t, result.Errors)
	c := rules.NewCompiler()
	c.Compile(result.Rules)
	return c
}

func TestScanDropMapsToBlock(t *testing.T) {
	c := compileOne(t, `drop tcp any any -> any any (msg:"evil"; content:"malware"; sid:1;)`)
	m := New(c, NewRegexAutomaton())

	ctx := &packet.InspectionContext{Payload: packet.NewPayloadView([]byte("download malware.exe"))}
	m.Scan(ctx)

	v, ok := ctx.Verdicts.Get(packet.SlotIPS)
	require.True(t, ok)
	require.Equal(t, packet.ActionBlock, v.Action)
	require.Equal(t, "evil", v.Reason)
}

func TestScanAlertMapsToLog(t *testing.T) {
	c := compileOne(t, `alert tcp any any -> any any (msg:"suspicious"; content:"suspect"; sid:2;)`)
	m := New(c, NewRegexAutomaton())

	ctx := &packet.InspectionContext{Payload: packet.NewPayloadView([]byte("this is suspect traffic"))}
	m.Scan(ctx)

	v, ok := ctx.Verdicts.Get(packet.SlotIPS)
	require.True(t, ok)
	require.Equal(t, packet.ActionLog, v.Action)
}

func TestScanNoMatchLeavesNoVerdict(t *testing.T) {
	c := compileOne(t, `drop tcp any any -> any any (msg:"evil"; content:"malware"; sid:1;)`)
	m := New(c, NewRegexAutomaton())

	ctx := &packet.InspectionContext{Payload: packet.NewPayloadView([]byte("totally benign"))}
	m.Scan(ctx)

	_, ok := ctx.Verdicts.Get(packet.SlotIPS)
	require.False(t, ok)
}

func TestScanEmptyPayloadSkipsScan(t *testing.T) {
	c := compileOne(t, `drop tcp any any -> any any (msg:"evil"; content:"malware"; sid:1;)`)
	m := New(c, NewRegexAutomaton())

	ctx := &packet.InspectionContext{Payload: packet.NewPayloadView(nil)}
	m.Scan(ctx)

	scans, _, _, _ := m.Stats().Snapshot()
	require.Equal(t, uint64(0), scans)
}

func TestScanStatsAccumulate(t *testing.T) {
	c := compileOne(t, `drop tcp any any -> any any (msg:"evil"; content:"malware"; sid:1;)`)
	m := New(c, NewRegexAutomaton())

	for i := 0; i < 5; i++ {
		ctx := &packet.InspectionContext{Payload: packet.NewPayloadView([]byte("malware here"))}
		m.Scan(ctx)
	}

	scans, matches, scanErrors, _ := m.Stats().Snapshot()
	require.Equal(t, uint64(5), scans)
	require.Equal(t, uint64(5), matches)
	require.Equal(t, uint64(0), scanErrors)
}

type failingAutomaton struct{}

func (failingAutomaton) AllocScratch(db *rules.CompiledRuleSet) (Scratch, error) { return nil, nil }
func (failingAutomaton) Scan(db *rules.CompiledRuleSet, s Scratch, data []byte) ([]Match, error) {
	return nil, errScanFailed
}

var errScanFailed = errors.New("scan failed")

func TestScanErrorDegradesToAllowNeverBlock(t *testing.T) {
	c := compileOne(t, `drop tcp any any -> any any (msg:"evil"; content:"malware"; sid:1;)`)
	m := New(c, failingAutomaton{})

	ctx := &packet.InspectionContext{Payload: packet.NewPayloadView([]byte("malware"))}
	m.Scan(ctx)

	_, ok := ctx.Verdicts.Get(packet.SlotIPS)
	require.False(t, ok)

	_, _, scanErrors, _ := m.Stats().Snapshot()
	require.Equal(t, uint64(1), scanErrors)
}
