// Package context implements the Pre-Gen Context Builder (C7): classify the
// query, retrieve applicable rules/paths/constraints for its domain, apply
// dominance rules to drop out-voted policies, and assemble the enforcement
// context the During-Gen Injector consumes.
//
// Grounded on _examples/original_source/Enforcement/pregen.py
// (classify_query, retrieve_rules, apply_dominance, build_context).
package context

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sovereignctl/policyguard/internal/bundle"
	"github.com/sovereignctl/policyguard/internal/classify"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/priority"
)

// EnforcementContext is everything the scaffold builder and post-gen
// verifiers need for one query.
type EnforcementContext struct {
	SessionID             string               `json:"session_id"`
	Query                 string               `json:"query"`
	Domain                string               `json:"domain"`
	Intent                string               `json:"intent"`
	DomainConfidence      float64              `json:"domain_confidence"`
	ApplicableRules       []ir.ConditionalRule `json:"applicable_rules"`
	ApplicableConstraints []ir.Constraint      `json:"applicable_constraints"`
	ApplicablePaths       []graph.CompiledPath `json:"applicable_paths"`
	DominanceApplied      []priority.DominanceRule `json:"dominance_applied"`
	EscalationContacts    []string             `json:"escalation_contacts"`
	Timestamp             string               `json:"timestamp"`
}

// RetrieveRules returns every rule/path registered under domain in idx,
// temporally filtered against cutoff (a rule with no effective date always
// applies; a rule whose effective date is unparseable is treated as
// already in effect, matching pregen.py's permissive parse-failure
// fallback), plus the always-scoped and domain-scoped constraints.
func RetrieveRules(idx bundle.Index, domain string, cutoff time.Time) ([]ir.ConditionalRule, []graph.CompiledPath, []ir.Constraint) {
	candidates := idx.RulesByDomain[domain]
	rules := make([]ir.ConditionalRule, 0, len(candidates))
	for _, r := range candidates {
		if effectiveBy(r.Metadata.EffectiveDate, cutoff) {
			rules = append(rules, r)
		}
	}

	applicable := make(map[string]bool, len(rules))
	for _, r := range rules {
		applicable[r.PolicyID] = true
	}

	var paths []graph.CompiledPath
	for _, p := range idx.PathsByDomain[domain] {
		if applicable[p.PolicyID] {
			paths = append(paths, p)
		}
	}

	var constraints []ir.Constraint
	constraints = append(constraints, idx.ConstraintsByScope["always"]...)
	constraints = append(constraints, idx.ConstraintsByScope[domain]...)

	return rules, paths, constraints
}

func effectiveBy(effDate string, cutoff time.Time) bool {
	if effDate == "" {
		return true
	}
	t, err := time.Parse("2006-01-02", effDate)
	if err != nil {
		return true // unparseable date: fail open, matching pregen.py
	}
	return !t.After(cutoff)
}

// ApplyDominance drops every policy a dominance rule or, failing that, the
// priority lattice decides loses against another retrieved policy,
// returning the surviving rules/paths plus the dominance rules that fired.
func ApplyDominance(rules []ir.ConditionalRule, paths []graph.CompiledPath, idx bundle.Index, lattice map[priority.Level]int) ([]ir.ConditionalRule, []graph.CompiledPath, []priority.DominanceRule) {
	pids := make([]string, 0, len(rules))
	byID := make(map[string]ir.ConditionalRule, len(rules))
	for _, r := range rules {
		pids = append(pids, r.PolicyID)
		byID[r.PolicyID] = r
	}
	sort.Strings(pids)

	var applied []priority.DominanceRule
	losers := map[string]bool{}

	for i, p1 := range pids {
		for _, p2 := range pids[i+1:] {
			key := pairKey(p1, p2)
			if dr, ok := idx.DominanceByPair[key]; ok {
				if dr.Mode == priority.RelationOverride {
					loser := p2
					if dr.Enforce == p2 {
						loser = p1
					}
					losers[loser] = true
				}
				applied = append(applied, dr)
				continue
			}

			r1, r2 := byID[p1], byID[p2]
			rank1 := rankOf(lattice, r1.Metadata)
			rank2 := rankOf(lattice, r2.Metadata)
			if rank1 != rank2 {
				loser := p1
				if rank1 < rank2 {
					loser = p2
				}
				losers[loser] = true
			}
		}
	}

	filteredRules := make([]ir.ConditionalRule, 0, len(rules))
	for _, r := range rules {
		if !losers[r.PolicyID] {
			filteredRules = append(filteredRules, r)
		}
	}
	filteredPaths := make([]graph.CompiledPath, 0, len(paths))
	for _, p := range paths {
		if !losers[p.PolicyID] {
			filteredPaths = append(filteredPaths, p)
		}
	}

	return filteredRules, filteredPaths, applied
}

func rankOf(lattice map[priority.Level]int, meta ir.RuleMetadata) int {
	level := priority.NormalizePriority(meta)
	if r, ok := lattice[level]; ok {
		return r
	}
	return lattice[priority.LevelCompany]
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "," + b
}

// Clock returns the current instant; injected so Build is reproducible in
// tests without depending on time.Now directly.
type Clock func() time.Time

// Build runs the full pregen pipeline: classify, retrieve, apply dominance,
// assemble. sessionID may be empty, in which case a random UUID is minted.
func Build(ctx context.Context, query string, b bundle.Bundle, idx bundle.Index, classifier classify.Classifier, sessionID string, now Clock) (EnforcementContext, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	domains := domainSet(b)
	result, err := classifier.Classify(ctx, query, domains)
	if err != nil {
		return EnforcementContext{}, err
	}

	clock := now
	if clock == nil {
		clock = time.Now
	}
	nowTime := clock()

	rules, paths, constraints := RetrieveRules(idx, result.Domain, nowTime)
	filteredRules, filteredPaths, applied := ApplyDominance(rules, paths, idx, b.PriorityLattice)

	applicable := make(map[string]bool, len(filteredRules))
	for _, r := range filteredRules {
		applicable[r.PolicyID] = true
	}
	contactSet := map[string]bool{}
	for _, esc := range b.Escalations {
		for _, pid := range esc.Policies {
			if applicable[pid] {
				for _, owner := range esc.OwnersToNotify {
					contactSet[owner] = true
				}
			}
		}
	}
	contacts := make([]string, 0, len(contactSet))
	for c := range contactSet {
		contacts = append(contacts, c)
	}
	sort.Strings(contacts)

	return EnforcementContext{
		SessionID:             sessionID,
		Query:                 query,
		Domain:                result.Domain,
		Intent:                result.Intent,
		DomainConfidence:      result.Confidence,
		ApplicableRules:       filteredRules,
		ApplicableConstraints: constraints,
		ApplicablePaths:       filteredPaths,
		DominanceApplied:      applied,
		EscalationContacts:    contacts,
		Timestamp:             nowTime.UTC().Format(time.RFC3339),
	}, nil
}

func domainSet(b bundle.Bundle) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range b.ConditionalRules {
		if !seen[r.Metadata.Domain] {
			seen[r.Metadata.Domain] = true
			out = append(out, r.Metadata.Domain)
		}
	}
	sort.Strings(out)
	return out
}
