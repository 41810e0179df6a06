// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net"

	"sasecore/internal/behavior"
	"sasecore/internal/packet"
)

// addrString renders a context's packed address as its string form, the
// key the behavioral detector and mitigation engine track destinations
// and sources by.
func addrString(addr [16]byte, isIPv6 bool) string {
	if isIPv6 {
		return net.IP(addr[:]).String()
	}
	return net.IP(addr[:4]).String()
}

// behaviorObservation translates a parsed packet into the detector's
// constant-size PacketObservation record. isNewFlow comes from the
// pipeline's own flow-table lookup, since FlowMetadata carries no such
// flag at parse time.
func behaviorObservation(ctx *packet.InspectionContext, isNewFlow bool) behavior.PacketObservation {
	isIPv6 := ctx.L3 == packet.L3IPv6
	return behavior.PacketObservation{
		SrcAddr:   addrString(ctx.SrcIP, isIPv6),
		DstAddr:   addrString(ctx.DstIP, isIPv6),
		DstPort:   ctx.DstPort,
		Bytes:     uint64(ctx.Payload.Len()),
		IsTCP:     ctx.L4 == packet.L4TCP,
		IsUDP:     ctx.L4 == packet.L4UDP,
		IsICMP:    ctx.L4 == packet.L4ICMP || ctx.L4 == packet.L4ICMPv6,
		SYN:       ctx.TCPFlags.SYN,
		ACK:       ctx.TCPFlags.ACK,
		RST:       ctx.TCPFlags.RST,
		FIN:       ctx.TCPFlags.FIN,
		IsNewFlow: isNewFlow,
	}
}
