// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sasecore/internal/behavior"
)

// recordingExecutor is a CommandExecutor stub that records every command
// sent to it instead of touching a real control-plane socket.
type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]bool
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{fail: map[string]bool{}}
}

func (r *recordingExecutor) Exec(socket, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	if r.fail[command] {
		return "", errFailed
	}
	return "ok", nil
}

var errFailed = &failError{}

type failError struct{}

func (*failError) Error() string { return "command failed" }

func synFloodAttack() *behavior.Attack {
	return &behavior.Attack{
		ID:   "attack-1",
		Type: behavior.AttackSynFlood,
		Target: behavior.AttackTarget{
			Addr: "10.0.0.10", Port: 80, Protocol: "tcp",
		},
		Sources: []behavior.AttackSource{
			{Addr: "203.0.113.1", PPS: 5000},
			{Addr: "203.0.113.2", PPS: 4000},
		},
		Metrics: behavior.AttackMetrics{TotalPPS: 50000, TotalBPS: 30_000_000},
	}
}

func TestActivateSynFloodInstallsCookieAndRateLimit(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	am := e.Activate(synFloodAttack())

	require.Equal(t, "syn_cookie", am.Strategy)
	require.NotEmpty(t, am.Rules)

	var sawCookie, sawPolicer bool
	for _, r := range am.Rules {
		switch r.Type {
		case RuleSynCookie:
			sawCookie = true
		case RuleVppPolicer:
			sawPolicer = true
		}
	}
	require.True(t, sawCookie)
	require.True(t, sawPolicer)
}

func TestActivateRateLimitingDerivesAllowedPPS(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	rules := e.activateRateLimiting(synFloodAttack())
	require.NotEmpty(t, rules)
	require.Equal(t, uint64(5000), rules[0].RateLimit.PPS) // 50000 / 10
}

func TestActivateSourceBlockingRespectsMaxACLRules(t *testing.T) {
	exe := newRecordingExecutor()
	cfg := DefaultConfig()
	cfg.MaxACLRules = 1
	e := New(cfg, exe)

	rules := e.activateSourceBlocking(synFloodAttack())
	require.Len(t, rules, 1)
}

func TestActivatePortBlockingOnlyForUDPAttacks(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	rules := e.activatePortBlocking(synFloodAttack())
	require.Empty(t, rules)

	udpAttack := synFloodAttack()
	udpAttack.Type = behavior.AttackUdpFlood
	rules = e.activatePortBlocking(udpAttack)
	require.Len(t, rules, len(behavior.AmplificationPort))
}

func TestActivatePortBlockingTargetsSingleAmplifierPort(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	ntpAttack := synFloodAttack()
	ntpAttack.Type = behavior.AttackNtpAmplification
	rules := e.activatePortBlocking(ntpAttack)
	require.Len(t, rules, 1)
	require.Equal(t, behavior.AmplificationPort["ntp"], rules[0].Port)

	memcachedAttack := synFloodAttack()
	memcachedAttack.Type = behavior.AttackMemcachedAmplification
	rules = e.activatePortBlocking(memcachedAttack)
	require.Len(t, rules, 1)
	require.Equal(t, behavior.AmplificationPort["memcached"], rules[0].Port)
}

func TestActivateRTBHOnlyForVolumetricAttacks(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	am := e.Activate(synFloodAttack())
	for _, r := range am.Rules {
		require.NotEqual(t, RuleBirdRTBH, r.Type)
	}

	volumetric := synFloodAttack()
	volumetric.Metrics.TotalBPS = 2_000_000_000
	am = e.Activate(volumetric)
	var sawRTBH bool
	for _, r := range am.Rules {
		if r.Type == RuleBirdRTBH {
			sawRTBH = true
		}
	}
	require.True(t, sawRTBH)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	exe := newRecordingExecutor()
	e := New(DefaultConfig(), exe)

	am := e.Activate(synFloodAttack())
	e.Deactivate(am)
	// Second deactivation of the same record must not panic or error out
	// the caller — the control plane's own removal is idempotent.
	e.Deactivate(am)
}

func TestGenerateCookieDeterministic(t *testing.T) {
	var secret [16]byte
	copy(secret[:], "test-secret-1234")
	srcIP := [4]byte{203, 0, 113, 1}
	dstIP := [4]byte{10, 0, 0, 10}

	c1 := GenerateCookie(srcIP, dstIP, 5555, 80, 1000, secret, 1460)
	c2 := GenerateCookie(srcIP, dstIP, 5555, 80, 1000, secret, 1460)
	require.Equal(t, c1, c2)

	c3 := GenerateCookie(srcIP, dstIP, 5555, 80, 1001, secret, 1460)
	require.NotEqual(t, c1, c3)
}

func TestValidateCookieCurrentAndPreviousMinute(t *testing.T) {
	var secret [16]byte
	copy(secret[:], "test-secret-1234")
	srcIP := [4]byte{203, 0, 113, 1}
	dstIP := [4]byte{10, 0, 0, 10}

	const minute int64 = 1000
	cookie := GenerateCookie(srcIP, dstIP, 5555, 80, minute, secret, 1460)
	ack := cookie + 1

	require.True(t, ValidateCookie(srcIP, dstIP, 5555, 80, ack, minute, secret, 1460))
	require.True(t, ValidateCookie(srcIP, dstIP, 5555, 80, ack, minute+1, secret, 1460))
	require.False(t, ValidateCookie(srcIP, dstIP, 5555, 80, ack, minute+2, secret, 1460))
}

func TestLocalLimiterAllowsUnconfiguredKey(t *testing.T) {
	l := NewLocalLimiter()
	require.True(t, l.Allow("unconfigured"))
}

func TestLocalLimiterEnforcesBucket(t *testing.T) {
	l := NewLocalLimiter()
	l.Configure("10.0.0.10", TokenBucketSpec{PPS: 1, Burst: 1})

	require.True(t, l.Allow("10.0.0.10"))
	require.False(t, l.Allow("10.0.0.10"))
}

func TestUnixSocketExecutorTimesOutCleanly(t *testing.T) {
	e := NewUnixSocketExecutor(50*time.Millisecond, 50*time.Millisecond)
	_, err := e.Exec("/nonexistent/socket/path", "noop")
	require.Error(t, err)
}
