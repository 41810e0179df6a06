// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package packet implements the one-pass parser and the per-packet
// InspectionContext every inspection module shares through zero-copy
// payload views.
package packet

import "sasecore/internal/flowtable"

// L3Kind tags which network-layer header was decoded.
type L3Kind uint8

const (
	L3Other L3Kind = iota
	L3IPv4
	L3IPv6
)

// L4Kind tags which transport-layer header was decoded.
type L4Kind uint8

const (
	L4Other L4Kind = iota
	L4TCP
	L4UDP
	L4ICMP
	L4ICMPv6
)

// TCPFlags mirrors the handful of TCP control bits the behavioral
// detector and flow table care about.
type TCPFlags struct {
	SYN, ACK, FIN, RST, PSH, URG bool
}

// PayloadView borrows the packet's remaining bytes with an advance cursor.
// It never copies; callers must not retain it past the packet's lifetime.
type PayloadView struct {
	data   []byte
	offset int
}

// NewPayloadView wraps data at offset 0.
func NewPayloadView(data []byte) PayloadView {
	return PayloadView{data: data}
}

// Remaining returns the bytes from the current cursor to the end.
func (p PayloadView) Remaining() []byte {
	if p.offset >= len(p.data) {
		return nil
	}
	return p.data[p.offset:]
}

// Advance moves the cursor forward by n bytes, clamped to the view length.
func (p PayloadView) Advance(n int) PayloadView {
	next := p.offset + n
	if next > len(p.data) {
		next = len(p.data)
	}
	return PayloadView{data: p.data, offset: next}
}

// Len reports the number of bytes remaining.
func (p PayloadView) Len() int { return len(p.data) - p.offset }

// GeoInfo is the optional GeoIP enrichment of a flow's destination.
type GeoInfo struct {
	Country string
	ASN     uint32
	ASOrg   string
}

// Direction labels which side of a flow a packet travels.
type Direction uint8

const (
	DirUnknown Direction = iota
	DirOriginal
	DirReply
)

// FlowMetadata is the enrichment attached to an InspectionContext once the
// flow's identity and any opportunistic L7 sniff results are known.
type FlowMetadata struct {
	FlowKey   flowtable.Key
	Direction Direction
	UserID    string
	GroupID   string
	SrcZone   string
	DstZone   string
	AppLabel  string
	Geo       GeoInfo

	// Opportunistic L7 sniff results; zero-valued when not recognized.
	DNSQueryName string
	HTTPMethod   string
	HTTPPath     string
	TLSInfo      TLSInfo
}

// TLSInfo holds the fields recovered from a TLS ClientHello, when present.
type TLSInfo struct {
	Present      bool
	SNI          string
	Version      uint16
	CipherSuites []uint16
	Extensions   []uint16
	JA3          string
}

// InspectionContext is the per-packet transient value produced by Parse.
// It owns the parsed headers, a zero-copy PayloadView, the flow metadata,
// and the composable VerdictSet. Its lifetime is a single packet.
type InspectionContext struct {
	L3    L3Kind
	SrcIP [16]byte
	DstIP [16]byte

	L4       L4Kind
	SrcPort  uint16
	DstPort  uint16
	TCPFlags TCPFlags

	Protocol uint8 // IP protocol number, carried even when L4 is Other

	Payload  PayloadView
	Meta     FlowMetadata
	Verdicts VerdictSet

	TimestampUs uint64
}

// FlowKey derives the 5-tuple flow identity for this packet.
func (c *InspectionContext) FlowKey() flowtable.Key {
	if c.L3 == L3IPv6 {
		return flowtable.NewIPv6Key(c.SrcIP, c.DstIP, c.SrcPort, c.DstPort, c.Protocol)
	}
	var src, dst [4]byte
	copy(src[:], c.SrcIP[:4])
	copy(dst[:], c.DstIP[:4])
	return flowtable.NewIPv4Key(src, dst, c.SrcPort, c.DstPort, c.Protocol)
}
