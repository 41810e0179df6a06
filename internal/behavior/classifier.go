// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package behavior

// AttackType is the classifier's fixed output vocabulary.
type AttackType uint8

const (
	AttackUnknown AttackType = iota
	AttackSynFlood
	AttackUdpFlood
	AttackDnsAmplification
	AttackAckFlood
	AttackRstFlood
	AttackHttpFlood
	AttackIcmpFlood
	AttackMultiVector
	AttackNtpAmplification
	AttackMemcachedAmplification
)

func (a AttackType) String() string {
	switch a {
	case AttackSynFlood:
		return "syn_flood"
	case AttackUdpFlood:
		return "udp_flood"
	case AttackDnsAmplification:
		return "dns_amplification"
	case AttackAckFlood:
		return "ack_flood"
	case AttackRstFlood:
		return "rst_flood"
	case AttackHttpFlood:
		return "http_flood"
	case AttackIcmpFlood:
		return "icmp_flood"
	case AttackMultiVector:
		return "multi_vector"
	case AttackNtpAmplification:
		return "ntp_amplification"
	case AttackMemcachedAmplification:
		return "memcached_amplification"
	default:
		return "unknown"
	}
}

// Classify applies the fixed decision tree over a window's features. Order
// of checks matters: UDP-dominant traffic is evaluated before TCP, TCP
// before ICMP, and MultiVector only once neither protocol alone dominates.
func Classify(f TrafficFeatures) AttackType {
	if f.UDPRatio > 0.9 {
		if f.AvgPacketSize > 1000 {
			return AttackDnsAmplification
		}
		return AttackUdpFlood
	}

	if f.TCPRatio > 0.8 {
		switch {
		case f.SynRatio > 0.9:
			return AttackSynFlood
		case f.AckRatio > 0.9 && f.SynRatio < 0.1:
			return AttackAckFlood
		case f.RstRatio > 0.8:
			return AttackRstFlood
		case f.SmallPacketRatio > 0.95 && f.UniqueSources > 1000:
			return AttackHttpFlood
		}
	}

	if f.ICMPRatio > 0.7 {
		return AttackIcmpFlood
	}

	if f.TCPRatio > 0.3 && f.UDPRatio > 0.3 {
		return AttackMultiVector
	}

	return AttackUnknown
}

// AmplificationPort maps the well-known amplification-protocol ports a
// DnsAmplification/UdpFlood classification should consider port-blocking.
var AmplificationPort = map[string]uint16{
	"memcached": 11211,
	"ssdp":      1900,
	"ntp":       123,
	"chargen":   19,
}

// RecommendedMitigation returns the mitigation strategy name the spec
// associates with each attack type. The mitigation engine consumes these
// as hints, not commands: it still applies its own rate/threshold logic.
func RecommendedMitigation(t AttackType) string {
	switch t {
	case AttackSynFlood:
		return "syn_cookie"
	case AttackUdpFlood, AttackDnsAmplification, AttackNtpAmplification, AttackMemcachedAmplification:
		return "rate_limit_and_port_block"
	case AttackHttpFlood:
		return "l7_challenge_rate_limit"
	case AttackAckFlood, AttackRstFlood, AttackIcmpFlood:
		return "rate_limit"
	case AttackMultiVector:
		return "bgp_flowspec"
	default:
		return "rate_limit"
	}
}
