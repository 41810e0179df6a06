// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"sasecore/internal/errors"
)

// Parse decodes data as an Ethernet frame (tolerating a raw IP frame with no
// link layer) through VLAN tags down to its L3/L4 headers and returns an
// InspectionContext carrying a zero-copy view of whatever payload remains.
// Parse returns an error only when the frame is malformed before a complete
// L3 header is recovered; packets with no recognized L4 header still parse
// successfully with L4 set to L4Other so firewall-only rules can still act
// on them.
func Parse(data []byte) (*InspectionContext, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if packet.ErrorLayer() != nil {
		// Retry assuming a raw IP frame (no Ethernet header), common for
		// tunnel/TUN ingress sources.
		packet = gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
		if packet.ErrorLayer() != nil {
			packet = gopacket.NewPacket(data, layers.LayerTypeIPv6, gopacket.NoCopy)
		}
	}

	ctx := &InspectionContext{
		TimestampUs: uint64(time.Now().UnixMicro()),
	}

	l3found := false
	var l4Payload []byte

	if v4 := packet.Layer(layers.LayerTypeIPv4); v4 != nil {
		ip, _ := v4.(*layers.IPv4)
		ctx.L3 = L3IPv4
		copy(ctx.SrcIP[:4], ip.SrcIP.To4())
		copy(ctx.DstIP[:4], ip.DstIP.To4())
		ctx.Protocol = uint8(ip.Protocol)
		l3found = true
	} else if v6 := packet.Layer(layers.LayerTypeIPv6); v6 != nil {
		ip, _ := v6.(*layers.IPv6)
		ctx.L3 = L3IPv6
		copy(ctx.SrcIP[:], ip.SrcIP.To16())
		copy(ctx.DstIP[:], ip.DstIP.To16())
		ctx.Protocol = uint8(ip.NextHeader)
		l3found = true
	}

	if !l3found {
		return nil, errors.New(errors.KindParse, "no recognizable L3 header")
	}

	if tcp := packet.Layer(layers.LayerTypeTCP); tcp != nil {
		t, _ := tcp.(*layers.TCP)
		ctx.L4 = L4TCP
		ctx.SrcPort = uint16(t.SrcPort)
		ctx.DstPort = uint16(t.DstPort)
		ctx.TCPFlags = TCPFlags{
			SYN: t.SYN, ACK: t.ACK, FIN: t.FIN,
			RST: t.RST, PSH: t.PSH, URG: t.URG,
		}
		l4Payload = t.Payload
	} else if udp := packet.Layer(layers.LayerTypeUDP); udp != nil {
		u, _ := udp.(*layers.UDP)
		ctx.L4 = L4UDP
		ctx.SrcPort = uint16(u.SrcPort)
		ctx.DstPort = uint16(u.DstPort)
		l4Payload = u.Payload
	} else if icmp := packet.Layer(layers.LayerTypeICMPv4); icmp != nil {
		i, _ := icmp.(*layers.ICMPv4)
		ctx.L4 = L4ICMP
		l4Payload = i.Payload
	} else if icmp6 := packet.Layer(layers.LayerTypeICMPv6); icmp6 != nil {
		i, _ := icmp6.(*layers.ICMPv6)
		ctx.L4 = L4ICMPv6
		l4Payload = i.Payload
	}

	ctx.Payload = NewPayloadView(l4Payload)

	if ctx.L4 == L4TCP && len(l4Payload) > 0 {
		sniffTLS(ctx, packet, l4Payload)
	}
	if ctx.L4 == L4UDP && (ctx.SrcPort == 53 || ctx.DstPort == 53) && len(l4Payload) > 0 {
		sniffDNS(ctx, l4Payload)
	}

	return ctx, nil
}
