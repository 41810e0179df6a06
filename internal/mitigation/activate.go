// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import (
	"fmt"
	"time"

	"sasecore/internal/behavior"
	"sasecore/internal/logging"
)

// activateSynCookies installs a stateless SYN-cookie responder ahead of
// the protected address. Priority 100, no expiry: it stays up until the
// attack ends, since a SYN-cookie responder costs nothing to run absent
// an actual flood.
func (e *Engine) activateSynCookies(attack *behavior.Attack) []MitigationRule {
	cmd := fmt.Sprintf("set syn-cookie enable dst %s", withPrefix(attack.Target.Addr))
	if _, err := e.vppExec(cmd); err != nil {
		logging.Warn("syn cookie activation failed", "attack_id", attack.ID, "error", err)
		return nil
	}
	return []MitigationRule{{
		Type:        RuleSynCookie,
		Destination: withPrefix(attack.Target.Addr),
		Protocol:    "tcp",
		Port:        attack.Target.Port,
		Action:      ActionSynCookie,
		Priority:    100,
	}}
}

// activateSynProxy installs a stateful SYN-proxy in front of the target,
// validating the three-way handshake with a keyed cookie before opening a
// backend connection. Priority 100, no expiry.
func (e *Engine) activateSynProxy(attack *behavior.Attack) []MitigationRule {
	cmd := fmt.Sprintf("set tcp syn-proxy enable dst %s port %d", withPrefix(attack.Target.Addr), attack.Target.Port)
	if _, err := e.vppExec(cmd); err != nil {
		logging.Warn("syn proxy activation failed", "attack_id", attack.ID, "error", err)
		return nil
	}
	return []MitigationRule{{
		Type:        RuleSynProxy,
		Destination: withPrefix(attack.Target.Addr),
		Protocol:    "tcp",
		Port:        attack.Target.Port,
		Action:      ActionSynCookie,
		Priority:    100,
	}}
}

// activateRateLimiting installs a policer at the victim capping total
// throughput to a tenth of the observed attack rate, plus per-source ACLs
// for the top attacking addresses at a hundredth of that. Priority 200 for
// the aggregate policer (1hr expiry), priority 300 for per-source ACLs
// (30min expiry).
func (e *Engine) activateRateLimiting(attack *behavior.Attack) []MitigationRule {
	allowedPPS := attack.Metrics.TotalPPS / 10
	if allowedPPS == 0 {
		allowedPPS = 1
	}
	burst := allowedPPS * 2

	var rules []MitigationRule

	cmd := fmt.Sprintf("set policer name attack-%s dst %s rate %d burst %d", attack.ID, withPrefix(attack.Target.Addr), allowedPPS, burst)
	if _, err := e.vppExec(cmd); err != nil {
		logging.Warn("rate limit policer activation failed", "attack_id", attack.ID, "error", err)
	} else {
		rules = append(rules, MitigationRule{
			Type:        RuleVppPolicer,
			Destination: withPrefix(attack.Target.Addr),
			Action:      ActionRateLimit,
			RateLimit:   &TokenBucketSpec{PPS: allowedPPS, Burst: burst},
			Priority:    200,
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	}

	perSourcePPS := allowedPPS / 100
	if perSourcePPS == 0 {
		perSourcePPS = 1
	}
	for _, src := range attack.Sources {
		srcCmd := fmt.Sprintf("acl add rule permit+rate-limit src %s dst %s rate %d priority 300", withPrefix(src.Addr), withPrefix(attack.Target.Addr), perSourcePPS)
		if _, err := e.vppExec(srcCmd); err != nil {
			logging.Warn("per-source rate limit failed", "attack_id", attack.ID, "source", src.Addr, "error", err)
			continue
		}
		rules = append(rules, MitigationRule{
			Type:        RuleVppACL,
			Source:      withPrefix(src.Addr),
			Destination: withPrefix(attack.Target.Addr),
			Action:      ActionRateLimit,
			RateLimit:   &TokenBucketSpec{PPS: perSourcePPS, Burst: perSourcePPS * 2},
			Priority:    300,
			ExpiresAt:   time.Now().Add(30 * time.Minute),
		})
	}

	return rules
}

// activateSourceBlocking installs an unconditional drop ACL for each of
// the attack's top sources, up to MaxACLRules. Priority 500, 2hr expiry.
func (e *Engine) activateSourceBlocking(attack *behavior.Attack) []MitigationRule {
	var rules []MitigationRule
	limit := e.cfg.MaxACLRules
	for i, src := range attack.Sources {
		if i >= limit {
			logging.Warn("source blocking truncated at max_acl_rules", "attack_id", attack.ID, "dropped", len(attack.Sources)-limit)
			break
		}
		cmd := fmt.Sprintf("acl add rule deny src %s priority 500", withPrefix(src.Addr))
		if _, err := e.vppExec(cmd); err != nil {
			logging.Warn("source block failed", "attack_id", attack.ID, "source", src.Addr, "error", err)
			continue
		}
		rules = append(rules, MitigationRule{
			Type:      RuleVppACL,
			Source:    withPrefix(src.Addr),
			Action:    ActionDrop,
			Priority:  500,
			ExpiresAt: time.Now().Add(2 * time.Hour),
		})
	}
	return rules
}

// amplifierProtocolFor names the single amplification protocol an attack
// classification identifies, if any, so activatePortBlocking can block just
// that one port instead of every known amplifier.
func amplifierProtocolFor(t behavior.AttackType) (string, bool) {
	switch t {
	case behavior.AttackNtpAmplification:
		return "ntp", true
	case behavior.AttackMemcachedAmplification:
		return "memcached", true
	default:
		return "", false
	}
}

// activatePortBlocking installs destination-port drop ACLs for the
// well-known amplification-protocol ports when the attack is UDP-based. A
// classification naming a specific amplifier blocks only that protocol's
// port; the generic UdpFlood/DnsAmplification classifications still block
// every known amplifier port, since neither names one in particular.
// Priority 400, 24hr expiry.
func (e *Engine) activatePortBlocking(attack *behavior.Attack) []MitigationRule {
	ports := behavior.AmplificationPort
	if proto, ok := amplifierProtocolFor(attack.Type); ok {
		ports = map[string]uint16{proto: behavior.AmplificationPort[proto]}
	} else if attack.Type != behavior.AttackUdpFlood && attack.Type != behavior.AttackDnsAmplification {
		return nil
	}

	var rules []MitigationRule
	for proto, port := range ports {
		cmd := fmt.Sprintf("acl add rule deny dst %s proto udp port %d priority 400", withPrefix(attack.Target.Addr), port)
		if _, err := e.vppExec(cmd); err != nil {
			logging.Warn("port block failed", "attack_id", attack.ID, "amplifier", proto, "port", port, "error", err)
			continue
		}
		rules = append(rules, MitigationRule{
			Type:        RuleVppACL,
			Destination: withPrefix(attack.Target.Addr),
			Protocol:    "udp",
			Port:        port,
			Action:      ActionDrop,
			Priority:    400,
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		})
	}
	return rules
}

// activateFlowspec announces a BGP Flowspec rate-limit rule for the
// target, throttling the attack upstream of this box. Priority 50, 1hr
// expiry.
func (e *Engine) activateFlowspec(attack *behavior.Attack) []MitigationRule {
	rateLimitBPS := attack.Metrics.TotalBPS / 100
	protoNum := protocolToNum(attack.Target.Protocol)

	cmd := fmt.Sprintf("flow4 { dst %s; proto %d; } { rate-limit %d; }", withPrefix(attack.Target.Addr), protoNum, rateLimitBPS)
	if _, err := e.birdExec(cmd); err != nil {
		logging.Warn("flowspec activation failed", "attack_id", attack.ID, "error", err)
		return nil
	}
	return []MitigationRule{{
		Type:        RuleBgpFlowspec,
		Destination: withPrefix(attack.Target.Addr),
		Protocol:    attack.Target.Protocol,
		Action:      ActionRateLimit,
		RateLimit:   &TokenBucketSpec{BPS: rateLimitBPS},
		Priority:    50,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
}

// activateRTBH announces a remote-triggered blackhole for the target,
// tagging the route with the well-known 65535:666 blackhole community.
// Priority 10 — lowest of all rule types, since it discards all traffic
// to the target rather than just the attack. 1hr expiry.
func (e *Engine) activateRTBH(attack *behavior.Attack) []MitigationRule {
	cmd := fmt.Sprintf("route add %s blackhole bgp_community.add((65535,666))", withPrefix(attack.Target.Addr))
	if _, err := e.birdExec(cmd); err != nil {
		logging.Warn("rtbh activation failed", "attack_id", attack.ID, "error", err)
		return nil
	}
	return []MitigationRule{{
		Type:        RuleBirdRTBH,
		Destination: withPrefix(attack.Target.Addr),
		Action:      ActionDrop,
		Priority:    10,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
}
