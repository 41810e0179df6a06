// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import (
	"sync"

	"golang.org/x/time/rate"
)

// LocalLimiter enforces a TokenBucketSpec in-process, ahead of whatever
// the control plane eventually installs — the VPP policer command takes
// effect on the data plane's own schedule, and a packet the pipeline sees
// before that lands still needs a local backstop.
type LocalLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLocalLimiter builds an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{limiters: map[string]*rate.Limiter{}}
}

// Configure installs or replaces the bucket for key (typically a
// destination or source address) per spec, deriving the bucket's fill
// rate and burst size from spec.PPS/spec.Burst.
func (l *LocalLimiter) Configure(key string, spec TokenBucketSpec) {
	burst := int(spec.Burst)
	if burst <= 0 {
		burst = int(spec.PPS) * 2
	}
	if burst <= 0 {
		burst = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[key] = rate.NewLimiter(rate.Limit(spec.PPS), burst)
}

// Allow reports whether a single packet for key may pass, consuming one
// token if so. A key with no configured bucket is always allowed.
func (l *LocalLimiter) Allow(key string) bool {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if !ok {
		return true
	}
	return lim.Allow()
}

// Remove deletes key's bucket, if any.
func (l *LocalLimiter) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}
