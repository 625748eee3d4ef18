//go:build property
// +build property

// Package graph_test contains property-based tests for decision-graph
// compilation, grounded on
// _examples/Mindburn-Labs-helm/core/pkg/kernel/addenda_property_test.go's
// use of gopter for determinism/idempotency checks.
package graph_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// buildIR turns a list of candidate variable names into a PolicyIR with one
// boolean-condition rule per name, cycling through a fixed action so the
// leaf-action set stays small. ruleOrder, a permutation of indices into
// names, lets callers ask for the same rule set in a different order.
func buildIR(names []string, ruleOrder []int) ir.PolicyIR {
	uniq := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	if len(uniq) == 0 {
		return ir.PolicyIR{Variables: map[string]variable.Schema{}}
	}

	vars := make(map[string]variable.Schema, len(uniq))
	for _, n := range uniq {
		vars[n] = variable.Schema{Type: variable.KindBool}
	}

	rules := make([]ir.ConditionalRule, len(uniq))
	for i, n := range uniq {
		rules[i] = ir.ConditionalRule{
			PolicyID:   n,
			Conditions: []ir.Condition{{Var: n, Op: variable.OpEq, Value: true}},
			Action:     ir.Action{Type: "required", Value: "x"},
			Metadata:   ir.RuleMetadata{Domain: "d", Priority: "company", Source: "test"},
		}
	}

	ordered := rules
	if len(ruleOrder) == len(rules) {
		ordered = make([]ir.ConditionalRule, len(rules))
		usedIdx := map[int]bool{}
		for i, idx := range ruleOrder {
			idx = ((idx % len(rules)) + len(rules)) % len(rules)
			for usedIdx[idx] {
				idx = (idx + 1) % len(rules)
			}
			usedIdx[idx] = true
			ordered[i] = rules[idx]
		}
	}

	return ir.PolicyIR{Variables: vars, ConditionalRules: ordered}
}

// TestBuildDecisionNodesOrderIndependent verifies invariant 1 (§8): the
// decision-node ordering a policy IR compiles to never depends on the
// order its conditional rules were supplied in, only on the rule set
// itself.
func TestBuildDecisionNodesOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decision node ordering is independent of rule order", prop.ForAll(
		func(names []string, permSeed []int) bool {
			polIR := buildIR(names, nil)
			if len(polIR.ConditionalRules) < 2 {
				return true
			}

			shuffled := buildIR(names, permSeed)
			if len(shuffled.ConditionalRules) != len(polIR.ConditionalRules) {
				return true
			}

			g1 := graph.Build(polIR)
			g2 := graph.Build(shuffled)

			if len(g1.DecisionNodes) != len(g2.DecisionNodes) {
				return false
			}
			for i := range g1.DecisionNodes {
				if g1.DecisionNodes[i] != g2.DecisionNodes[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.AlphaString()),
		gen.SliceOfN(6, gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// TestBuildIsDeterministic verifies Build(ir) == Build(ir) byte-for-byte
// on the decision node list, guarding against accidental reliance on Go's
// randomized map iteration order.
func TestBuildIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Build is deterministic", prop.ForAll(
		func(names []string) bool {
			polIR := buildIR(names, nil)

			g1 := graph.Build(polIR)
			g2 := graph.Build(polIR)

			if len(g1.DecisionNodes) != len(g2.DecisionNodes) {
				return false
			}
			for i := range g1.DecisionNodes {
				if g1.DecisionNodes[i] != g2.DecisionNodes[i] {
					return false
				}
			}
			return len(g1.LeafActions) == len(g2.LeafActions)
		},
		gen.SliceOfN(8, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
