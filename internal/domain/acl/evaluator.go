// Package acl implements the pure access-control evaluation functions that
// run against a config.AccessControlConfig snapshot: client IP allow/deny
// and target domain/path rule matching.
package acl

import (
	"strings"

	"github.com/Annihilater/net-relay/internal/config"
)

// IPAllowed reports whether ip passes the IP ACL in ac.
//
//  1. If any blacklist entry matches ip, deny.
//  2. Else if the whitelist is non-empty and no whitelist entry matches ip, deny.
//  3. Else, allow.
//
// Match rule: exact string equality, or, for a pattern containing "/", a
// prefix match of ip against the substring before "/". This is a textual
// prefix match, not numeric CIDR parsing — an explicit, recorded gap (see
// DESIGN.md "Open Question resolutions"), not an oversight.
func IPAllowed(ac config.AccessControlConfig, ip string) bool {
	for _, pattern := range ac.IPBlacklist {
		if ipMatches(pattern, ip) {
			return false
		}
	}
	if len(ac.IPWhitelist) == 0 {
		return true
	}
	for _, pattern := range ac.IPWhitelist {
		if ipMatches(pattern, ip) {
			return true
		}
	}
	return false
}

func ipMatches(pattern, ip string) bool {
	if pattern == ip {
		return true
	}
	if prefix, _, ok := strings.Cut(pattern, "/"); ok {
		return strings.HasPrefix(ip, prefix)
	}
	return false
}

// RuleEvaluator resolves a Rule's additive CEL Condition, if set. The ACL
// package has no CEL dependency of its own — TargetAllowed accepts this as
// an injectable function so the CEL evaluator (internal/adapter/outbound/cel)
// can be wired in without the domain package importing an adapter.
type RuleEvaluator interface {
	// EvaluateCondition returns the boolean result of compiling and running
	// expr against host/path. Rules with an empty Condition never call this.
	EvaluateCondition(expr, host, path string) (bool, error)
}

// TargetAllowed scans ac.Rules in declaration order; the first rule where
// Enabled is true, DomainPattern matches host, any PathPrefix is satisfied,
// and any CEL Condition (via re) evaluates true, decides. If no rule
// matches, AllowByDefault decides.
//
// re may be nil — in that case any Rule with a non-empty Condition is
// skipped over (treated as non-matching), since there is nothing to
// evaluate it with.
func TargetAllowed(ac config.AccessControlConfig, host, path string, re RuleEvaluator) bool {
	for _, rule := range ac.Rules {
		if !rule.Enabled {
			continue
		}
		if !domainMatches(rule.DomainPattern, host) {
			continue
		}
		if rule.PathPrefix != "" && !strings.HasPrefix(path, rule.PathPrefix) {
			continue
		}
		if rule.Condition != "" {
			if re == nil {
				continue
			}
			ok, err := re.EvaluateCondition(rule.Condition, host, path)
			if err != nil || !ok {
				continue
			}
		}
		return rule.Action == config.ActionAllow
	}
	return ac.AllowByDefault
}

// domainMatches implements the domain match rule: a pattern beginning
// "*." matches any host ending with the literal after "*", or equal to the
// literal after "*."; otherwise exact (case-sensitive) equality.
func domainMatches(pattern, host string) bool {
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		bare := pattern[2:]   // "example.com"
		return host == bare || strings.HasSuffix(host, suffix)
	}
	return pattern == host
}
