// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/florianl/go-nfqueue/v2"
)

// nfqueueSource is the default ingress: it receives packets diverted by an
// nftables/iptables NFQUEUE target and can enforce the computed verdict
// in-kernel by replying on the same netlink socket.
type nfqueueSource struct {
	nf *nfqueue.Nfqueue
}

func newNFQueueSource(queueNum uint16) (*nfqueueSource, error) {
	cfg := nfqueue.Config{
		NfQueue:      queueNum,
		MaxPacketLen: 0xffff,
		MaxQueueLen:  0xff,
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: 15 * time.Millisecond,
	}
	nf, err := nfqueue.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("opening nfqueue %d: %w", queueNum, err)
	}
	return &nfqueueSource{nf: nf}, nil
}

func (s *nfqueueSource) Run(ctx context.Context, handle func([]byte) flowVerdict) error {
	fn := func(a nfqueue.Attribute) int {
		if a.PacketID == nil || a.Payload == nil {
			return 0
		}
		verdict := nfqueue.NfAccept
		if handle(*a.Payload) == flowDrop {
			verdict = nfqueue.NfDrop
		}
		_ = s.nf.SetVerdict(*a.PacketID, verdict)
		return 0
	}
	errFn := func(err error) int { return 0 }
	return s.nf.RegisterWithErrorFunc(ctx, fn, errFn)
}

func (s *nfqueueSource) Close() error {
	return s.nf.Close()
}
