// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import "github.com/miekg/dns"

// sniffDNS opportunistically decodes a UDP/53 payload as a DNS message and,
// for queries and responses alike, records the first question's name so downstream modules
// (URL filter, DLP) can act on the resolved domain before the response
// completes the connection. Malformed or non-DNS payloads are ignored.
func sniffDNS(ctx *InspectionContext, payload []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return
	}
	if len(msg.Question) == 0 {
		return
	}
	ctx.Meta.DNSQueryName = msg.Question[0].Name
}
