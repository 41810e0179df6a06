// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package behavior

import "time"

// smallPacketThreshold bytes and below count toward SmallPacketRatio.
const smallPacketThreshold = 128

// MetricsBuffer accumulates one destination's traffic over a detection
// window: counters, protocol/flag breakdowns, and the source-address
// distribution used for entropy and top-source computation.
type MetricsBuffer struct {
	WindowStart time.Time

	TotalPackets uint64
	TotalBytes   uint64

	TCPPackets  uint64
	UDPPackets  uint64
	ICMPPackets uint64

	SynPackets uint64
	AckPackets uint64
	RstPackets uint64
	FinPackets uint64

	SmallPackets uint64
	NewFlows     uint64

	SourceCounts     map[string]uint64
	UniqueDests      map[string]struct{}
	UniquePorts      map[uint16]struct{}
	TopSourcePackets uint64
}

// NewMetricsBuffer allocates an empty buffer stamped with the current time.
func NewMetricsBuffer() *MetricsBuffer {
	return &MetricsBuffer{
		WindowStart:  time.Now(),
		SourceCounts: map[string]uint64{},
		UniqueDests:  map[string]struct{}{},
		UniquePorts:  map[uint16]struct{}{},
	}
}

// PacketObservation is the constant-size per-packet record the detector's
// ingest path records against a destination's buffer.
type PacketObservation struct {
	SrcAddr string
	DstAddr string
	DstPort uint16
	Bytes   uint64
	IsTCP   bool
	IsUDP   bool
	IsICMP  bool
	SYN, ACK, RST, FIN bool
	IsNewFlow bool
}

// Record applies one packet observation to the buffer in constant time.
func (b *MetricsBuffer) Record(obs PacketObservation) {
	b.TotalPackets++
	b.TotalBytes += obs.Bytes

	switch {
	case obs.IsTCP:
		b.TCPPackets++
		if obs.SYN {
			b.SynPackets++
		}
		if obs.ACK {
			b.AckPackets++
		}
		if obs.RST {
			b.RstPackets++
		}
		if obs.FIN {
			b.FinPackets++
		}
	case obs.IsUDP:
		b.UDPPackets++
	case obs.IsICMP:
		b.ICMPPackets++
	}

	if obs.Bytes <= smallPacketThreshold {
		b.SmallPackets++
	}
	if obs.IsNewFlow {
		b.NewFlows++
	}

	b.SourceCounts[obs.SrcAddr]++
	if b.SourceCounts[obs.SrcAddr] > b.TopSourcePackets {
		b.TopSourcePackets = b.SourceCounts[obs.SrcAddr]
	}
	b.UniqueDests[obs.DstAddr] = struct{}{}
	b.UniquePorts[obs.DstPort] = struct{}{}
}

// DurationSeconds reports elapsed time since the buffer's window started.
func (b *MetricsBuffer) DurationSeconds() float64 {
	return time.Since(b.WindowStart).Seconds()
}

// Reset clears the buffer and restarts its window, ready for reuse.
func (b *MetricsBuffer) Reset() {
	*b = *NewMetricsBuffer()
}
