// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import "time"

// Verdict is the cached disposition of a flow.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictDrop
	VerdictReject
	VerdictInspect
	VerdictLog
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictDrop:
		return "drop"
	case VerdictReject:
		return "reject"
	case VerdictInspect:
		return "inspect"
	case VerdictLog:
		return "log"
	default:
		return "unknown"
	}
}

// NatKind identifies which address translation, if any, applies to a flow.
type NatKind uint8

const (
	NatNone NatKind = iota
	NatSNAT
	NatDNAT
	NatBiNAT
)

// NatState records the translated source address/port when NatKind != NatNone.
type NatState struct {
	Kind            NatKind
	TranslatedAddr  [16]byte
	TranslatedPort  uint16
}

// TcpState mirrors the classical TCP connection state machine.
type TcpState uint8

const (
	TcpNone TcpState = iota
	TcpSynSent
	TcpSynReceived
	TcpEstablished
	TcpFinWait1
	TcpFinWait2
	TcpCloseWait
	TcpClosing
	TcpLastAck
	TcpTimeWait
	TcpClosed
)

// Flags is a bit-set of auxiliary flow properties.
type Flags uint16

const (
	FlagBidirectional Flags = 1 << iota
	FlagNAT
	FlagInspect
	FlagExport
	FlagNew
)

// State is the per-flow cached record held inside an Entry slot.
type State struct {
	Key         Key
	Verdict     Verdict
	Nat         NatState
	QoSClass    uint8
	Packets     uint64
	Bytes       uint64
	Tcp         TcpState
	FirstSeenUs uint64
	LastSeenUs  uint64
	Flags       Flags
}

// NewState constructs a freshly-created flow state for key with the given
// initial verdict, stamping both timestamps to now.
func NewState(key Key, verdict Verdict) *State {
	now := timestampMicros()
	return &State{
		Key:         key,
		Verdict:     verdict,
		Packets:     1,
		Bytes:       0,
		Tcp:         TcpNone,
		FirstSeenUs: now,
		LastSeenUs:  now,
		Flags:       FlagNew,
	}
}

// Update bumps packet/byte counters and refreshes LastSeenUs; called under
// the owning slot's write lock.
func (s *State) Update(packetLen uint64) {
	s.Packets++
	s.Bytes += packetLen
	s.LastSeenUs = timestampMicros()
}

// IsExpired reports whether the flow has exceeded the hard timeout measured
// from FirstSeenUs.
func (s *State) IsExpired(hardTimeoutUs uint64, nowUs uint64) bool {
	return nowUs-s.FirstSeenUs >= hardTimeoutUs
}

// IsIdle reports whether the flow has been quiet longer than the soft
// timeout measured from LastSeenUs.
func (s *State) IsIdle(softTimeoutUs uint64, nowUs uint64) bool {
	return nowUs-s.LastSeenUs >= softTimeoutUs
}

func timestampMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}
