// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package mitigation installs and tears down countermeasures against a
// detected behavioral attack. It specifies only the contract with the
// external data plane and BGP speaker: commands are strings handed to a
// CommandExecutor, which in production dispatches to VPP's CLI socket or
// BIRD's control socket, and in tests is a recording stub.
package mitigation

import (
	"fmt"
	"time"

	"sasecore/internal/behavior"
	"sasecore/internal/errors"
	"sasecore/internal/logging"
)

// RuleType enumerates the kinds of concrete mitigation rule this engine
// can install.
type RuleType int

const (
	RuleVppACL RuleType = iota
	RuleVppPolicer
	RuleBirdRTBH
	RuleBgpFlowspec
	RuleSynCookie
	RuleSynProxy
)

func (rt RuleType) String() string {
	switch rt {
	case RuleVppACL:
		return "vpp_acl"
	case RuleVppPolicer:
		return "vpp_policer"
	case RuleBirdRTBH:
		return "bird_rtbh"
	case RuleBgpFlowspec:
		return "bgp_flowspec"
	case RuleSynCookie:
		return "syn_cookie"
	case RuleSynProxy:
		return "syn_proxy"
	default:
		return "unknown"
	}
}

// RuleAction is the disposition a MitigationRule enforces.
type RuleAction int

const (
	ActionDrop RuleAction = iota
	ActionRateLimit
	ActionSynCookie
)

// MitigationRule is one installed countermeasure. Source/Destination are
// CIDR prefixes or bare addresses depending on RuleType; Port and Protocol
// are zero-valued when the rule does not filter on them.
type MitigationRule struct {
	Type        RuleType
	Source      string
	Destination string
	Protocol    string
	Port        uint16
	Action      RuleAction
	RateLimit   *TokenBucketSpec
	Priority    int
	ExpiresAt   time.Time
}

// TokenBucketSpec describes a rate limit in packets/sec and bytes/sec with
// a burst size in tokens, matching spec §5's token-bucket model.
type TokenBucketSpec struct {
	PPS   uint64
	BPS   uint64
	Burst uint64
}

// ActiveMitigation is the live record of one mitigation response to an
// Attack: its chosen strategy, the concrete rules installed for it, and
// when it started.
type ActiveMitigation struct {
	ID        string
	AttackID  string
	Strategy  string
	Rules     []MitigationRule
	StartedAt time.Time
}

// Config controls the engine's control-plane endpoints and policy knobs.
type Config struct {
	VPPSocket    string
	BIRDSocket   string
	AutoRTBH     bool
	AutoFlowspec bool
	MaxACLRules  int
	ServerSecret [16]byte
}

// DefaultConfig mirrors the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		VPPSocket:    "/run/vpp/cli.sock",
		BIRDSocket:   "/run/bird/bird.ctl",
		AutoRTBH:     true,
		AutoFlowspec: true,
		MaxACLRules:  10000,
	}
}

// CommandExecutor dispatches an opaque command string to a control-plane
// socket and returns its response. Production wiring talks to vppctl/birdc
// over a unix socket; tests substitute a recording stub.
type CommandExecutor interface {
	Exec(socket, command string) (string, error)
}

// Engine activates and deactivates mitigations against detected attacks.
type Engine struct {
	cfg Config
	exe CommandExecutor
}

// New builds an Engine dispatching commands through exe.
func New(cfg Config, exe CommandExecutor) *Engine {
	if cfg.MaxACLRules <= 0 {
		cfg.MaxACLRules = DefaultConfig().MaxACLRules
	}
	return &Engine{cfg: cfg, exe: exe}
}

// ServerSecret returns the keyed-cookie secret this engine was configured
// with, so the packet pipeline's local SYN-cookie fast path can generate
// and validate cookies consistently with whatever the engine tells VPP to
// enforce.
func (e *Engine) ServerSecret() [16]byte {
	return e.cfg.ServerSecret
}

// Activate installs the concrete rules for attack's recommended mitigation
// strategy and returns the resulting ActiveMitigation record. Individual
// rule-installation failures are logged and skipped; Activate never
// returns an error since a partial mitigation is still better than none.
func (e *Engine) Activate(attack *behavior.Attack) *ActiveMitigation {
	strategy := behavior.RecommendedMitigation(attack.Type)

	am := &ActiveMitigation{
		ID:        attack.ID,
		AttackID:  attack.ID,
		Strategy:  strategy,
		StartedAt: time.Now(),
	}

	switch strategy {
	case "syn_cookie":
		am.Rules = append(am.Rules, e.activateSynCookies(attack)...)
		am.Rules = append(am.Rules, e.activateRateLimiting(attack)...)
	case "rate_limit_and_port_block":
		am.Rules = append(am.Rules, e.activateRateLimiting(attack)...)
		am.Rules = append(am.Rules, e.activatePortBlocking(attack)...)
		am.Rules = append(am.Rules, e.activateSourceBlocking(attack)...)
	case "l7_challenge_rate_limit":
		am.Rules = append(am.Rules, e.activateRateLimiting(attack)...)
		am.Rules = append(am.Rules, e.activateSourceBlocking(attack)...)
	case "bgp_flowspec":
		if e.cfg.AutoFlowspec {
			am.Rules = append(am.Rules, e.activateFlowspec(attack)...)
		}
		am.Rules = append(am.Rules, e.activateRateLimiting(attack)...)
	default:
		am.Rules = append(am.Rules, e.activateRateLimiting(attack)...)
	}

	if isVolumetric(attack) && e.cfg.AutoRTBH {
		am.Rules = append(am.Rules, e.activateRTBH(attack)...)
	}

	logging.Info("mitigation activated", "attack_id", attack.ID, "strategy", strategy, "rules", len(am.Rules))
	return am
}

// isVolumetric reports whether the attack's total throughput is large
// enough to warrant an upstream blackhole announcement regardless of
// strategy — a volumetric flood saturates the link before any local ACL
// helps.
func isVolumetric(attack *behavior.Attack) bool {
	const volumetricBPSThreshold = 1_000_000_000 // 1 Gbps
	return attack.Metrics.TotalBPS > volumetricBPSThreshold
}

// Deactivate reverses every rule am installed, in the order installed.
// Reversal is idempotent: a rule whose underlying ACL/policer has already
// expired on the control plane is simply a no-op removal.
func (e *Engine) Deactivate(am *ActiveMitigation) {
	for _, rule := range am.Rules {
		if err := e.remove(rule); err != nil {
			logging.Warn("mitigation rule removal failed", "attack_id", am.AttackID, "type", rule.Type.String(), "error", err)
		}
	}
	logging.Info("mitigation deactivated", "attack_id", am.AttackID, "strategy", am.Strategy)
}

func (e *Engine) remove(rule MitigationRule) error {
	switch rule.Type {
	case RuleVppACL, RuleVppPolicer, RuleSynCookie, RuleSynProxy:
		return e.removeVPP(rule)
	case RuleBirdRTBH, RuleBgpFlowspec:
		return e.removeBIRD(rule)
	default:
		return nil
	}
}

func (e *Engine) vppExec(command string) (string, error) {
	out, err := e.exe.Exec(e.cfg.VPPSocket, command)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "vpp exec: %s", command)
	}
	return out, nil
}

func (e *Engine) birdExec(command string) (string, error) {
	out, err := e.exe.Exec(e.cfg.BIRDSocket, command)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "bird exec: %s", command)
	}
	return out, nil
}

// protocolToNum maps a protocol name to its IP protocol number, as used in
// ACL and flowspec match commands.
func protocolToNum(protocol string) int {
	switch protocol {
	case "tcp":
		return 6
	case "udp":
		return 17
	case "icmp":
		return 1
	case "gre":
		return 47
	default:
		return 0
	}
}

func withPrefix(addr string) string {
	if addr == "" {
		return addr
	}
	return fmt.Sprintf("%s/32", addr)
}
