// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow mirrors the flow table's export-flagged entries into an
// eBPF map, so an XDP/tc program sharing the map can see verdicts and
// counters this engine's data plane has already computed without a second
// round trip through userspace.
package flow

import (
	"sasecore/internal/flowtable"
	"sasecore/internal/qos"
)

// fwmarkPolicy is the single policy index this mirror marks flows under.
// The data plane has no multi-policy QoS concept of its own (spec's
// FlowState carries one QoSClass byte, not a policy+class pair), so every
// flow is marked under policy 0 and the class comes from QoSClass.
const fwmarkPolicy = 0

// MapKey is the fixed-size, C-struct-compatible map key. Its field layout
// mirrors flowtable.Key's 5-tuple, flattened into plain fixed-width types
// since cilium/ebpf marshals map keys by raw struct encoding rather than
// through flowtable.Key's own (Go-only) representation.
type MapKey struct {
	SrcAddr  [16]byte
	DstAddr  [16]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	Version  uint8
	_        [6]byte // pad to match flowtable.Key's size exactly
}

// MapValue is the fixed-size map value: the subset of flowtable.ExportRecord
// an eBPF program can act on directly.
type MapValue struct {
	Packets     uint64
	Bytes       uint64
	FirstSeenUs uint64
	LastSeenUs  uint64
	Verdict     uint8
	_           [3]byte
	FWMark      uint32
}

// keyFromFlow converts a flowtable.Key into its map representation.
func keyFromFlow(k flowtable.Key) MapKey {
	return MapKey{
		SrcAddr:  k.SrcAddr,
		DstAddr:  k.DstAddr,
		SrcPort:  k.SrcPort,
		DstPort:  k.DstPort,
		Protocol: k.Protocol,
		Version:  uint8(k.Version),
	}
}

// valueFromRecord converts a flowtable.ExportRecord into its map
// representation.
func valueFromRecord(r flowtable.ExportRecord) MapValue {
	return MapValue{
		Packets:     r.Packets,
		Bytes:       r.Bytes,
		FirstSeenUs: r.FirstSeenUs,
		LastSeenUs:  r.LastSeenUs,
		Verdict:     uint8(r.Verdict),
		FWMark:      qos.CalculateFWMark(fwmarkPolicy, int(r.QoSClass)),
	}
}
