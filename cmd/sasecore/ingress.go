// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"

	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
)

// flowVerdict is the ingress-agnostic disposition for one packet. Each
// concrete ingressSource translates it into whatever verdict vocabulary
// its own transport speaks (NFQUEUE can enforce a drop; NFLOG, being a
// passive copy tap, can only log one).
type flowVerdict uint8

const (
	flowAccept flowVerdict = iota
	flowDrop
)

// mapVerdict collapses the pipeline's finer-grained flowtable.Verdict into
// the binary accept/drop decision an ingress source actually enforces.
func mapVerdict(v flowtable.Verdict) flowVerdict {
	switch v {
	case flowtable.VerdictDrop, flowtable.VerdictReject:
		return flowDrop
	default:
		return flowAccept
	}
}

// ingressSource feeds raw packets into handle and carries out whatever
// verdict it returns, implementing the packet-source side of the parser's
// next_packet()/verdict contract.
type ingressSource interface {
	Run(ctx context.Context, handle func([]byte) flowVerdict) error
	Close() error
}

// newIngressSource builds the requested ingress transport. NFQUEUE is the
// default: it is the only one of the two that can actually enforce a drop
// verdict in-kernel. NFLOG is offered for deployments that only want a
// monitoring tap alongside a firewall doing the real dropping elsewhere.
func newIngressSource(kind string, queueNum uint16, logger *logging.Logger) (ingressSource, error) {
	switch kind {
	case "nfqueue":
		return newNFQueueSource(queueNum)
	case "nflog":
		return newNFLogSource(queueNum, logger)
	default:
		return nil, fmt.Errorf("unknown ingress kind %q (want nfqueue or nflog)", kind)
	}
}
