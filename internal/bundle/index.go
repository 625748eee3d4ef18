package bundle

import (
	"sort"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/priority"
)

// Index holds in-memory lookups over a loaded Bundle, rebuilt on every load
// rather than persisted, mirroring Enforcement/bundle_loader.py's
// BundleIndex. Python's frozenset(policy_id_pair) key is expressed here as
// a sorted, comma-joined string — Go maps can't key on unordered sets
// directly, and this gives the same "order doesn't matter" lookup.
type Index struct {
	RulesByDomain      map[string][]ir.ConditionalRule
	RulesByPolicyID    map[string]ir.ConditionalRule
	PathsByDomain      map[string][]graph.CompiledPath
	PathsByPolicyID    map[string]graph.CompiledPath
	ConstraintsByScope map[string][]ir.Constraint
	DominanceByPair    map[string]priority.DominanceRule
	EscalationByPair   map[string]priority.Escalation
}

func setKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	key := ""
	for i, id := range sorted {
		if i > 0 {
			key += ","
		}
		key += id
	}
	return key
}

// BuildIndex constructs every lookup table in one pass over b.
func BuildIndex(b Bundle) Index {
	idx := Index{
		RulesByDomain:      map[string][]ir.ConditionalRule{},
		RulesByPolicyID:    map[string]ir.ConditionalRule{},
		PathsByDomain:      map[string][]graph.CompiledPath{},
		PathsByPolicyID:    map[string]graph.CompiledPath{},
		ConstraintsByScope: map[string][]ir.Constraint{},
		DominanceByPair:    map[string]priority.DominanceRule{},
		EscalationByPair:   map[string]priority.Escalation{},
	}

	for _, rule := range b.ConditionalRules {
		idx.RulesByDomain[rule.Metadata.Domain] = append(idx.RulesByDomain[rule.Metadata.Domain], rule)
		idx.RulesByPolicyID[rule.PolicyID] = rule
	}

	for _, path := range b.CompiledPaths {
		idx.PathsByDomain[path.Metadata.Domain] = append(idx.PathsByDomain[path.Metadata.Domain], path)
		idx.PathsByPolicyID[path.PolicyID] = path
	}

	for _, c := range b.Constraints {
		idx.ConstraintsByScope[c.Scope] = append(idx.ConstraintsByScope[c.Scope], c)
	}

	for _, dr := range b.DominanceRules {
		idx.DominanceByPair[setKey(dr.WhenPoliciesFire[:])] = dr
	}

	for _, esc := range b.Escalations {
		idx.EscalationByPair[setKey(esc.Policies[:])] = esc
	}

	return idx
}
