// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package behavior implements the behavioral attack detector and its
// fixed-decision-tree attack classifier: a rolling per-destination traffic
// feature buffer, an EWMA baseline model, and an anomaly-score gate.
package behavior

import "math"

// featureVectorLen is the dimensionality of TrafficFeatures.ToVector and
// must match BaselineModel's mean/std slice length exactly.
const featureVectorLen = 20

// TrafficFeatures is one window's extracted feature vector.
type TrafficFeatures struct {
	PPS             float64
	BPS             float64
	NewFlowsPerSec  float64
	TCPRatio        float64
	UDPRatio        float64
	ICMPRatio       float64
	SynRatio        float64
	AckRatio        float64
	RstRatio        float64
	FinRatio        float64
	AvgPacketSize   float64
	PacketSizeStdev float64
	SmallPacketRatio float64
	UniqueSources   uint64
	SourceEntropy   float64
	TopSourceRatio  float64
	UniqueDests     uint64
	UniqueDestPorts uint64
	InterArrivalMean  float64
	InterArrivalStdev float64
}

// ToVector flattens the features into the fixed-order vector the baseline
// model and anomaly scorer operate on. The order is load-bearing: it must
// match BaselineModel's mean/std indices exactly.
func (f TrafficFeatures) ToVector() [featureVectorLen]float64 {
	return [featureVectorLen]float64{
		f.PPS,
		f.BPS,
		f.NewFlowsPerSec,
		f.TCPRatio,
		f.UDPRatio,
		f.ICMPRatio,
		f.SynRatio,
		f.AckRatio,
		f.RstRatio,
		f.FinRatio,
		f.AvgPacketSize,
		f.PacketSizeStdev,
		f.SmallPacketRatio,
		float64(f.UniqueSources),
		f.SourceEntropy,
		f.TopSourceRatio,
		float64(f.UniqueDests),
		float64(f.UniqueDestPorts),
		f.InterArrivalMean,
		f.InterArrivalStdev,
	}
}

// maxf1 guards a denominator against zero, matching the spec's max(x,1)
// convention for ratio calculations.
func maxf1(n uint64) float64 {
	if n < 1 {
		return 1
	}
	return float64(n)
}

// Extract computes a TrafficFeatures vector from a window's accumulated
// MetricsBuffer. Protocol ratios divide by total packets; TCP-flag ratios
// divide by TCP packet count specifically, not total packets.
func Extract(buf *MetricsBuffer, windowSeconds float64) TrafficFeatures {
	if windowSeconds < 0.001 {
		windowSeconds = 0.001
	}

	total := buf.TotalPackets
	return TrafficFeatures{
		PPS:            float64(total) / windowSeconds,
		BPS:            float64(buf.TotalBytes) * 8.0 / windowSeconds,
		NewFlowsPerSec: float64(buf.NewFlows) / windowSeconds,

		TCPRatio:  float64(buf.TCPPackets) / maxf1(total),
		UDPRatio:  float64(buf.UDPPackets) / maxf1(total),
		ICMPRatio: float64(buf.ICMPPackets) / maxf1(total),

		SynRatio: float64(buf.SynPackets) / maxf1(buf.TCPPackets),
		AckRatio: float64(buf.AckPackets) / maxf1(buf.TCPPackets),
		RstRatio: float64(buf.RstPackets) / maxf1(buf.TCPPackets),
		FinRatio: float64(buf.FinPackets) / maxf1(buf.TCPPackets),

		AvgPacketSize:    float64(buf.TotalBytes) / maxf1(total),
		PacketSizeStdev:  0,
		SmallPacketRatio: float64(buf.SmallPackets) / maxf1(total),

		UniqueSources:  uint64(len(buf.SourceCounts)),
		SourceEntropy:  shannonEntropy(buf.SourceCounts),
		TopSourceRatio: float64(buf.TopSourcePackets) / maxf1(total),

		UniqueDests:     uint64(len(buf.UniqueDests)),
		UniqueDestPorts: uint64(len(buf.UniquePorts)),

		InterArrivalMean:  0,
		InterArrivalStdev: 0,
	}
}

func shannonEntropy(counts map[string]uint64) float64 {
	var total uint64
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
