// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowtable implements the lockless concurrent flow table: a
// fixed-capacity, power-of-two-sized, open-addressed hash table mapping
// 5-tuples to cached verdicts and per-flow statistics, with atomic
// slot-state transitions and per-slot fine-grained locking.
package flowtable

// IPVersion distinguishes an address family so a v4 address and its
// v4-mapped-v6 counterpart never alias in the table.
type IPVersion uint8

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// Key is the 5-tuple flow identity. Addresses are held in a fixed 128-bit
// container (Addr) large enough for IPv6; IPv4 addresses occupy the low 4
// bytes with the remainder zeroed. The struct is deliberately laid out to
// be cache-line-friendly and comparable by value.
type Key struct {
	SrcAddr  [16]byte
	DstAddr  [16]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
	Version  IPVersion
	_        [6]byte // pad to a round, cache-friendly size; never touched
}

const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// Hash computes a non-cryptographic, well-distributed 64-bit hash of the
// key using FNV-1a over the structural fields. The exact constants match
// the reference implementation this table is ported from, so hashes stay
// reproducible across the test suite regardless of platform.
func (k Key) Hash() uint64 {
	h := fnvOffsetBasis
	for _, b := range k.SrcAddr {
		h ^= uint64(b)
		h *= fnvPrime
	}
	for _, b := range k.DstAddr {
		h ^= uint64(b)
		h *= fnvPrime
	}
	h ^= uint64(k.SrcPort)
	h *= fnvPrime
	h ^= uint64(k.DstPort)
	h *= fnvPrime
	h ^= uint64(k.Protocol)
	h *= fnvPrime
	h ^= uint64(k.Version)
	h *= fnvPrime
	return h
}

// Reverse returns the reply-direction key: source and destination swapped.
func (k Key) Reverse() Key {
	r := k
	r.SrcAddr, r.DstAddr = k.DstAddr, k.SrcAddr
	r.SrcPort, r.DstPort = k.DstPort, k.SrcPort
	return r
}

// NewIPv4Key builds a Key from 4-byte addresses and the given ports/proto.
func NewIPv4Key(src, dst [4]byte, srcPort, dstPort uint16, protocol uint8) Key {
	var k Key
	copy(k.SrcAddr[:4], src[:])
	copy(k.DstAddr[:4], dst[:])
	k.SrcPort = srcPort
	k.DstPort = dstPort
	k.Protocol = protocol
	k.Version = IPv4
	return k
}

// NewIPv6Key builds a Key from 16-byte addresses and the given ports/proto.
func NewIPv6Key(src, dst [16]byte, srcPort, dstPort uint16, protocol uint8) Key {
	return Key{
		SrcAddr:  src,
		DstAddr:  dst,
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Protocol: protocol,
		Version:  IPv6,
	}
}
