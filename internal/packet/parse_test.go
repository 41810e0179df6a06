// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func buildTCPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, syn bool, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
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
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestParseBasicTCP(t *testing.T) {
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, true, nil)

	ctx, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, L3IPv4, ctx.L3)
	require.Equal(t, L4TCP, ctx.L4)
	require.Equal(t, uint16(51234), ctx.SrcPort)
	require.Equal(t, uint16(443), ctx.DstPort)
	require.True(t, ctx.TCPFlags.SYN)
	require.False(t, ctx.TCPFlags.ACK)
	require.Equal(t, uint8(6), ctx.Protocol)
}

func TestParseFlowKeySymmetry(t *testing.T) {
	raw := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 51234, 443, false, nil)
	ctx, err := Parse(raw)
	require.NoError(t, err)

	fwd := ctx.FlowKey()
	require.Equal(t, fwd, fwd.Reverse().Reverse())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestVerdictSetComposeMostSevereWins(t *testing.T) {
	var vs VerdictSet
	vs.Set(ModuleVerdict{Slot: SlotFirewall, Action: ActionAllow})
	vs.Set(ModuleVerdict{Slot: SlotIPS, Action: ActionBlock, Reason: "signature match", RuleID: "1000001"})
	vs.Set(ModuleVerdict{Slot: SlotDNS, Action: ActionLog, Reason: "suspicious domain"})

	final := vs.Compose()
	require.Equal(t, ActionBlock, final.Action)
	require.Equal(t, "1000001", final.RuleID)
}

func TestVerdictSetComposeAllowWhenEmpty(t *testing.T) {
	var vs VerdictSet
	require.Equal(t, ActionAllow, vs.Compose().Action)
}

func TestVerdictSetComposeTieBreaksOnFirstSeen(t *testing.T) {
	var vs VerdictSet
	vs.Set(ModuleVerdict{Slot: SlotIPS, Action: ActionBlock, Severity: 50, Reason: "first"})
	vs.Set(ModuleVerdict{Slot: SlotAntimalware, Action: ActionBlock, Severity: 90, Reason: "second"})

	final := vs.Compose()
	require.Equal(t, "first", final.Reason)
}
