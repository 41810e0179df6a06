// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"sasecore/internal/errors"
)

// GeoResolver enriches destination addresses with country and ASN data from
// MaxMind-format databases. A nil *GeoResolver is valid and enriches nothing,
// so callers can wire geo lookup in optionally without nil-checking at every
// call site.
type GeoResolver struct {
	mu      sync.RWMutex
	country *geoip2.Reader
	asn     *geoip2.Reader
}

// OpenGeoResolver opens the country and ASN databases at the given paths.
// Either path may be empty to skip that database.
func OpenGeoResolver(countryDBPath, asnDBPath string) (*GeoResolver, error) {
	r := &GeoResolver{}
	if countryDBPath != "" {
		db, err := geoip2.Open(countryDBPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindUnavailable, "open geoip country database")
		}
		r.country = db
	}
	if asnDBPath != "" {
		db, err := geoip2.Open(asnDBPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindUnavailable, "open geoip asn database")
		}
		r.asn = db
	}
	return r, nil
}

// Close releases the underlying database files.
func (r *GeoResolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	if r.country != nil {
		firstErr = r.country.Close()
	}
	if r.asn != nil {
		if err := r.asn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Lookup resolves addr into a GeoInfo. Missing databases or lookup misses
// leave the corresponding fields zero-valued.
func (r *GeoResolver) Lookup(addr [16]byte, isIPv4 bool) GeoInfo {
	var info GeoInfo
	if r == nil {
		return info
	}

	var ip net.IP
	if isIPv4 {
		ip = net.IP(addr[:4])
	} else {
		ip = net.IP(addr[:])
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.country != nil {
		if rec, err := r.country.Country(ip); err == nil {
			info.Country = rec.Country.IsoCode
		}
	}
	if r.asn != nil {
		if rec, err := r.asn.ASN(ip); err == nil {
			info.ASN = uint32(rec.AutonomousSystemNumber)
			info.ASOrg = rec.AutonomousSystemOrganization
		}
	}
	return info
}

// EnrichGeo populates ctx.Meta.Geo for the flow's destination address.
func EnrichGeo(ctx *InspectionContext, r *GeoResolver) {
	if r == nil {
		return
	}
	ctx.Meta.Geo = r.Lookup(ctx.DstIP, ctx.L3 == L3IPv4)
}
