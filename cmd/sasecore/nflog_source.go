// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"

	"github.com/florianl/go-nflog/v2"

	"sasecore/internal/logging"
)

// nflogSource is an alternative ingress for deployments without
// AF_PACKET/XDP access: it receives a copy of packets diverted by an
// nftables/iptables NFLOG target. It is passive — there is no verdict path
// back into the kernel, so a computed drop can only be logged, never
// enforced, on this transport.
type nflogSource struct {
	nf     *nflog.Nflog
	logger *logging.Logger
}

func newNFLogSource(group uint16, logger *logging.Logger) (*nflogSource, error) {
	cfg := nflog.Config{
		Group:        group,
		Copymode:     nflog.NfUlnlCopyPacket,
		MaxPacketLen: 0xffff,
	}
	nf, err := nflog.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("opening nflog group %d: %w", group, err)
	}
	return &nflogSource{nf: nf, logger: logger}, nil
}

func (s *nflogSource) Run(ctx context.Context, handle func([]byte) flowVerdict) error {
	fn := func(a nflog.Attribute) int {
		if a.Payload == nil {
			return 0
		}
		if handle(*a.Payload) == flowDrop {
			s.logger.Warn("verdict computed drop but nflog ingress cannot enforce it")
		}
		return 0
	}
	errFn := func(err error) int { return 0 }
	return s.nf.RegisterWithErrorFunc(ctx, fn, errFn)
}

func (s *nflogSource) Close() error {
	return s.nf.Close()
}
