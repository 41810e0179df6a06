// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import (
	"encoding/binary"
	"hash/fnv"
)

// mssTable is the MSS encoding table a generated cookie's low 3 bits index
// into, largest-first-fit.
var mssTable = [8]uint16{536, 1220, 1440, 1460, 4312, 8960, 9000, 65535}

func mssIndex(mss uint16) uint32 {
	for i, m := range mssTable {
		if mss <= m {
			return uint32(i)
		}
	}
	return 7
}

// GenerateCookie computes the stateless SYN-cookie for a connection
// attempt: a keyed hash of the 4-tuple and minute bucket, with the low 3
// bits overwritten to encode an MSS index. The core never allocates
// connection state for the SYN — the cookie alone lets a later ACK be
// validated as belonging to a cookie this server issued.
func GenerateCookie(srcIP, dstIP [4]byte, srcPort, dstPort uint16, minuteBucket int64, secret [16]byte, mss uint16) uint32 {
	h := fnv.New32a()
	h.Write(srcIP[:])
	h.Write(dstIP[:])

	var ports [4]byte
	binary.BigEndian.PutUint16(ports[0:2], srcPort)
	binary.BigEndian.PutUint16(ports[2:4], dstPort)
	h.Write(ports[:])

	var minuteBytes [8]byte
	binary.BigEndian.PutUint64(minuteBytes[:], uint64(minuteBucket))
	h.Write(minuteBytes[:])

	h.Write(secret[:])

	hash := h.Sum32()
	return (hash &^ 0x7) | mssIndex(mss)
}

// ValidateCookie reports whether ack-1 matches a cookie generated for
// (srcIP,dstIP,srcPort,dstPort) at nowMinute or at nowMinute-1, absorbing
// one minute of clock skew between cookie issuance and the client's ACK.
func ValidateCookie(srcIP, dstIP [4]byte, srcPort, dstPort uint16, ack uint32, nowMinute int64, secret [16]byte, mss uint16) bool {
	candidate := ack - 1
	maskedCandidate := candidate &^ 0x7

	current := GenerateCookie(srcIP, dstIP, srcPort, dstPort, nowMinute, secret, mss) &^ 0x7
	if maskedCandidate == current {
		return true
	}

	previous := GenerateCookie(srcIP, dstIP, srcPort, dstPort, nowMinute-1, secret, mss) &^ 0x7
	return maskedCandidate == previous
}
