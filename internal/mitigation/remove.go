// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mitigation

import "fmt"

// removeVPP reverses a rule installed through e.vppExec. Each rule type's
// removal command mirrors its installation command with "add"/"set ...
// enable" replaced by "del"/"set ... disable" — VPP ACL and policer
// removal is idempotent against an already-expired or already-removed
// rule, so resending a removal is harmless.
func (e *Engine) removeVPP(rule MitigationRule) error {
	var cmd string
	switch rule.Type {
	case RuleSynCookie:
		cmd = fmt.Sprintf("set syn-cookie disable dst %s", rule.Destination)
	case RuleSynProxy:
		cmd = fmt.Sprintf("set tcp syn-proxy disable dst %s port %d", rule.Destination, rule.Port)
	case RuleVppPolicer:
		cmd = fmt.Sprintf("del policer dst %s", rule.Destination)
	case RuleVppACL:
		cmd = fmt.Sprintf("acl del rule src %s dst %s", rule.Source, rule.Destination)
	default:
		return nil
	}
	_, err := e.vppExec(cmd)
	return err
}

// removeBIRD reverses a rule installed through e.birdExec.
func (e *Engine) removeBIRD(rule MitigationRule) error {
	var cmd string
	switch rule.Type {
	case RuleBirdRTBH:
		cmd = fmt.Sprintf("route del %s", rule.Destination)
	case RuleBgpFlowspec:
		cmd = fmt.Sprintf("flow4 del { dst %s; }", rule.Destination)
	default:
		return nil
	}
	_, err := e.birdExec(cmd)
	return err
}
