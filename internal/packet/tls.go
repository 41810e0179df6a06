// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"encoding/hex"

	"github.com/dreadl0ck/ja3"
	"github.com/dreadl0ck/tlsx"
	"github.com/gopacket/gopacket"
)

// emptyMD5Hex is the hex digest of an empty JA3 string; ja3.DigestPacket
// returns this when the packet carries no recognizable ClientHello.
const emptyMD5Hex = "d41d8cd98f00b204e9800998ecf8427e"

// sniffTLS opportunistically recognizes a TLS ClientHello at the front of a
// TCP payload and, when found, records its JA3 fingerprint alongside the
// full SNI/version/cipher-suite/extension detail tlsx recovers. Anything
// short of that is left zero-valued; this is best-effort enrichment, not a
// handshake validator, so any parse failure is silently ignored.
func sniffTLS(ctx *InspectionContext, pkt gopacket.Packet, payload []byte) {
	if len(payload) < 6 || payload[0] != 0x16 || payload[5] != 0x01 {
		return
	}

	info := TLSInfo{Present: true}

	if digest := ja3.DigestPacket(pkt); digest != nil {
		hash := hex.EncodeToString(digest[:])
		if hash != emptyMD5Hex {
			info.JA3 = hash
		}
	}

	hello := &tlsx.ClientHelloBasic{}
	if err := hello.Unmarshal(payload); err == nil {
		info.SNI = hello.SNI
		info.Version = uint16(hello.Vers)
		info.Extensions = append(info.Extensions, hello.AllExtensions...)
		for _, cs := range hello.CipherSuites {
			info.CipherSuites = append(info.CipherSuites, uint16(cs))
		}
	}

	ctx.Meta.TLSInfo = info
}
