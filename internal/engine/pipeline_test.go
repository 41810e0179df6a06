// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"sasecore/internal/behavior"
	"sasecore/internal/flowtable"
	"sasecore/internal/matcher"
	"sasecore/internal/mitigation"
	"sasecore/internal/rules"
)

type stubExecutor struct{}

func (stubExecutor) Exec(socket, command string) (string, error) { return "ok", nil }

func buildTCPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, syn bool) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     syn,
		ACK:     !syn,
		Window:  64240,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(nil)))
	return buf.Bytes()
}

func newTestPipeline() *Pipeline {
	compiler := rules.NewCompiler()
	compiler.Compile(nil)
	m := matcher.New(compiler, matcher.NewRegexAutomaton())

	cfg := DefaultConfig()
	cfg.FlowTable.Capacity = 64
	cfg.Detector.MinSamples = 5
	cfg.Detector.AnomalyThreshold = 0.5
	return New(cfg, m, stubExecutor{})
}

func TestPipelineProcessAllowsPlainTraffic(t *testing.T) {
	p := newTestPipeline()
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true)

	ctx, verdict := p.Process(raw)
	require.NotNil(t, ctx)
	require.Equal(t, flowtable.VerdictAllow, verdict)
}

func TestPipelineProcessCachesFlowOnSecondPacket(t *testing.T) {
	p := newTestPipeline()
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true)

	_, _ = p.Process(raw)
	_, verdict := p.Process(raw)
	require.Equal(t, flowtable.VerdictAllow, verdict)

	snap := p.Stats()
	require.Equal(t, uint64(2), snap.Packets)
	require.Equal(t, uint64(1), snap.CacheHits)
	require.Equal(t, uint64(1), snap.CacheMisses)
}

func TestPipelineProcessReinspectsCachedInspectVerdict(t *testing.T) {
	p := newTestPipeline()
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true)
	dst := "10.0.0.2"

	p.limiter.Configure(dst, mitigation.TokenBucketSpec{PPS: 0, Burst: 0})
	p.limiter.Allow(dst) // drain the bucket's initial token so the next Allow denies

	_, verdict := p.Process(raw)
	require.Equal(t, flowtable.VerdictInspect, verdict)

	// Lifting the local throttle should be reflected on the very next
	// packet for this flow instead of the stale Inspect verdict sticking
	// around forever once cached.
	p.limiter.Remove(dst)
	_, verdict = p.Process(raw)
	require.Equal(t, flowtable.VerdictAllow, verdict)

	snap := p.Stats()
	require.Equal(t, uint64(2), snap.Packets)
	require.Equal(t, uint64(1), snap.CacheHits)
	require.Equal(t, uint64(1), snap.CacheMisses)
}

func TestPipelineProcessSetsFlowQoSClassFromComposedSeverity(t *testing.T) {
	p := newTestPipeline()
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true)
	dst := "10.0.0.2"

	p.limiter.Configure(dst, mitigation.TokenBucketSpec{PPS: 0, Burst: 0})
	p.limiter.Allow(dst) // drain the bucket's initial token

	ctx, _ := p.Process(raw)
	st, ok := p.flows.Lookup(ctx.FlowKey())
	require.True(t, ok)
	require.Equal(t, ctx.Verdicts.Compose().Severity, st.QoSClass)
}

func TestPipelineProcessRejectsGarbage(t *testing.T) {
	p := newTestPipeline()
	ctx, verdict := p.Process([]byte{0xff, 0xff, 0xff})
	require.Nil(t, ctx)
	require.Equal(t, flowtable.VerdictAllow, verdict)
}

func TestPipelineEvaluateBehaviorActivatesAndDeactivatesMitigation(t *testing.T) {
	p := newTestPipeline()

	for round := 0; round < 10; round++ {
		for i := 0; i < 10; i++ {
			raw := buildTCPPacket(t, "203.0.113.1", "10.0.0.10", 12345, 443, false)
			p.Process(raw)
		}
		p.EvaluateBehavior("10.0.0.10")
	}

	// Flood SYNs from one source address over many distinct source ports,
	// each a new flow, so the SYN ratio clears the anomaly threshold.
	for i := 0; i < 500; i++ {
		srcPort := uint16(20000 + i%60000)
		raw := buildTCPPacket(t, "198.51.100.1", "10.0.0.10", srcPort, 443, true)
		p.Process(raw)
	}
	attack := p.EvaluateBehavior("10.0.0.10")
	require.NotNil(t, attack)
	require.Equal(t, behavior.AttackSynFlood, attack.Type)
	require.Equal(t, behavior.StatusMitigating, attack.Status)

	am, engaged := p.ActiveMitigationFor("10.0.0.10")
	require.True(t, engaged)
	require.NotEmpty(t, am.Strategy)

	// A second window while the mitigation is still holding moves the
	// attack from its initial activation into the steady mitigated state.
	attack = p.EvaluateBehavior("10.0.0.10")
	require.NotNil(t, attack)
	require.Equal(t, behavior.StatusMitigated, attack.Status)

	// Quiet traffic for the hysteresis window should end the attack and
	// tear the mitigation back down.
	var ended *behavior.Attack
	for i := 0; i < 5; i++ {
		for j := 0; j < 10; j++ {
			raw := buildTCPPacket(t, "203.0.113.1", "10.0.0.10", 12345, 443, false)
			p.Process(raw)
		}
		ended = p.EvaluateBehavior("10.0.0.10")
	}
	require.Nil(t, ended)

	_, stillEngaged := p.ActiveMitigationFor("10.0.0.10")
	require.False(t, stillEngaged)
}

func TestPipelineAgeFlowsExpiresStaleEntries(t *testing.T) {
	p := newTestPipeline()
	p.flows = flowtable.New(flowtable.Config{
		Capacity:    64,
		HardTimeout: time.Microsecond,
		SoftTimeout: time.Microsecond,
	})

	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true)
	p.Process(raw)

	time.Sleep(2 * time.Millisecond)
	require.Equal(t, 1, p.AgeFlows())
}
