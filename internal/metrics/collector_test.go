// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"sasecore/internal/engine"
	"sasecore/internal/logging"
	"sasecore/internal/matcher"
	"sasecore/internal/rules"
)

type noopExecutor struct{}

func (noopExecutor) Exec(socket, command string) (string, error) { return "", nil }

func testPipeline() *engine.Pipeline {
	compiler := rules.NewCompiler()
	compiler.Compile(nil)
	m := matcher.New(compiler, matcher.NewRegexAutomaton())
	return engine.New(engine.DefaultConfig(), m, noopExecutor{})
}

func TestCollectorPublishesFlowTableGauges(t *testing.T) {
	reg := NewRegistry()
	p := testPipeline()
	c := NewCollector(reg, p, logging.New(logging.DefaultConfig()), time.Second)

	c.collect()

	require.Equal(t, float64(p.FlowTable().Capacity()), testutil.ToFloat64(reg.FlowTableCapacity))
	require.Equal(t, float64(0), testutil.ToFloat64(reg.FlowTableOccupancy))
}

func TestCollectorLeavesMatcherScansAtZeroForUnparseablePacket(t *testing.T) {
	reg := NewRegistry()
	p := testPipeline()
	c := NewCollector(reg, p, logging.New(logging.DefaultConfig()), time.Second)

	raw := []byte{0xff, 0xff, 0xff} // unparseable; does not touch matcher counters
	_, _ = p.Process(raw)
	c.collect()
	require.Equal(t, float64(0), testutil.ToFloat64(reg.MatcherScans))
}

func TestRecordMitigationActivationIncrementsByStrategy(t *testing.T) {
	reg := NewRegistry()
	c := &Collector{registry: reg}

	c.RecordMitigationActivation("syn_cookie")
	c.RecordMitigationActivation("syn_cookie")
	c.RecordMitigationActivation("rate_limit_and_port_block")

	require.Equal(t, float64(2), testutil.ToFloat64(reg.MitigationActivations.WithLabelValues("syn_cookie")))
	require.Equal(t, float64(1), testutil.ToFloat64(reg.MitigationActivations.WithLabelValues("rate_limit_and_port_block")))
}

func TestRecordFlowsAgedIgnoresNonPositive(t *testing.T) {
	reg := NewRegistry()
	c := &Collector{registry: reg}

	c.RecordFlowsAged(0)
	c.RecordFlowsAged(5)

	require.Equal(t, float64(5), testutil.ToFloat64(reg.FlowTableAged))
}
