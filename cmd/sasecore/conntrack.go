// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"net"
	"time"

	"github.com/ti-mo/conntrack"

	"sasecore/internal/engine"
	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
)

const conntrackPollInterval = 5 * time.Second

// runConntrackCorrelation polls the kernel's conntrack table and attaches
// any NAT translation it finds onto the matching flow-table entry, so
// FlowState.Nat reflects what the kernel actually did instead of staying
// at its zero value for the flow's whole lifetime. Best-effort: a kernel
// without conntrack support (or without CAP_NET_ADMIN) just runs the data
// plane without NAT correlation.
func runConntrackCorrelation(ctx context.Context, p *engine.Pipeline, logger *logging.Logger) {
	conn, err := conntrack.Dial(nil)
	if err != nil {
		logger.Warn("conntrack correlation unavailable", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(conntrackPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			correlateOnce(conn, p, logger)
		}
	}
}

func correlateOnce(conn *conntrack.Conn, p *engine.Pipeline, logger *logging.Logger) {
	flows, err := conn.Dump(nil)
	if err != nil {
		logger.Warn("conntrack dump failed", "error", err)
		return
	}

	for _, f := range flows {
		nat, ok := natFromConntrackFlow(f)
		if !ok {
			continue
		}
		key, ok := flowKeyFromConntrackTuple(f.TupleOrig)
		if !ok {
			continue
		}
		p.FlowTable().SetNat(key, nat)
	}
}

// natFromConntrackFlow reports whether f's reply tuple diverges from a
// straight reversal of the original tuple — the signature of a NAT
// translation — and if so returns the translated address/port as seen in
// the reply direction.
func natFromConntrackFlow(f conntrack.Flow) (flowtable.NatState, bool) {
	orig := f.TupleOrig
	reply := f.TupleReply

	if reply.IP.SourceAddress.Equal(orig.IP.DestinationAddress) &&
		reply.Proto.SourcePort == orig.Proto.DestinationPort {
		return flowtable.NatState{}, false
	}

	return flowtable.NatState{
		Kind:           flowtable.NatSNAT,
		TranslatedAddr: addrBytes(reply.IP.SourceAddress),
		TranslatedPort: reply.Proto.SourcePort,
	}, true
}

func flowKeyFromConntrackTuple(t conntrack.Tuple) (flowtable.Key, bool) {
	src, dst := t.IP.SourceAddress, t.IP.DestinationAddress
	if v4 := src.To4(); v4 != nil {
		d4 := dst.To4()
		if d4 == nil {
			return flowtable.Key{}, false
		}
		var s4, dd4 [4]byte
		copy(s4[:], v4)
		copy(dd4[:], d4)
		return flowtable.NewIPv4Key(s4, dd4, t.Proto.SourcePort, t.Proto.DestinationPort, t.Proto.Protocol), true
	}

	var s16, d16 [16]byte
	copy(s16[:], src.To16())
	copy(d16[:], dst.To16())
	return flowtable.NewIPv6Key(s16, d16, t.Proto.SourcePort, t.Proto.DestinationPort, t.Proto.Protocol), true
}

func addrBytes(ip net.IP) [16]byte {
	var out [16]byte
	if v4 := ip.To4(); v4 != nil {
		copy(out[:4], v4)
		return out
	}
	copy(out[:], ip.To16())
	return out
}
