// Package graph implements the Decision-Graph Compiler (C3): it orders a
// policy IR's variables into a canonical decision sequence and compiles
// each conditional rule into a path over that sequence.
//
// Grounded on _examples/original_source/Validation/decision_graph.py
// (variable ordering key, path grouping, leaf-action normalization).
package graph

import (
	"fmt"
	"sort"

	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// PathTest is one {op, value} test within a compiled path step.
type PathTest struct {
	Op    variable.Operator `json:"op"`
	Value interface{}       `json:"value"`
}

// PathStep is all tests against a single variable within one compiled path.
type PathStep struct {
	Var   string     `json:"var"`
	Tests []PathTest `json:"tests"`
}

// CompiledPath is one rule compiled into an ordered sequence of steps
// terminating in a single leaf action.
type CompiledPath struct {
	PolicyID   string          `json:"policy_id"`
	Path       []PathStep      `json:"path"`
	LeafAction string          `json:"leaf_action"`
	Metadata   ir.RuleMetadata `json:"metadata"`
}

// DecisionGraph is the compiled output: an ordering of decision variables,
// the set of canonical leaf actions, and every rule compiled into a path.
type DecisionGraph struct {
	DecisionNodes          []string                   `json:"decision_nodes"`
	NodeSchema             map[string]variable.Schema `json:"node_schema"`
	LeafActions            []string                   `json:"leaf_actions"`
	CompiledPaths          []CompiledPath             `json:"compiled_paths"`
	ExcludedConstraintsCnt int                        `json:"excluded_constraints_count"`
}

// NormalizeAction renders an action as its canonical "type:value" leaf
// action string.
func NormalizeAction(actionType string, actionValue interface{}) string {
	return fmt.Sprintf("%v:%v", actionType, actionValue)
}

// kindBucket orders variable kinds bool < enum < numeric, matching
// decision_graph.py's _variable_priority bucket assignment.
func kindBucket(k variable.Kind) int {
	switch k {
	case variable.KindBool:
		return 0
	case variable.KindEnum:
		return 1
	default:
		return 2
	}
}

// Build compiles a policy IR into a decision graph. Variable ordering is
// deterministic: kind bucket first (bool, enum, then numeric), then
// descending reference frequency, then lexicographic name — so the same
// IR always yields byte-identical decision_nodes (invariant 1 in §8).
func Build(policyIR ir.PolicyIR) DecisionGraph {
	var decisionVars []string
	seen := map[string]bool{}
	freq := map[string]int{}

	for _, rule := range policyIR.ConditionalRules {
		for _, c := range rule.Conditions {
			freq[c.Var]++
			if !seen[c.Var] {
				seen[c.Var] = true
				decisionVars = append(decisionVars, c.Var)
			}
		}
	}

	ordered := append([]string(nil), decisionVars...)
	sort.SliceStable(ordered, func(i, j int) bool {
		vi, vj := ordered[i], ordered[j]
		bi, bj := kindBucket(policyIR.Variables[vi].Type), kindBucket(policyIR.Variables[vj].Type)
		if bi != bj {
			return bi < bj
		}
		if freq[vi] != freq[vj] {
			return freq[vi] > freq[vj]
		}
		return vi < vj
	})

	nodeSchema := make(map[string]variable.Schema, len(ordered))
	for _, v := range ordered {
		nodeSchema[v] = policyIR.Variables[v]
	}

	leafSet := map[string]bool{}
	for _, rule := range policyIR.ConditionalRules {
		leafSet[NormalizeAction(rule.Action.Type, rule.Action.Value)] = true
	}
	leafActions := make([]string, 0, len(leafSet))
	for a := range leafSet {
		leafActions = append(leafActions, a)
	}
	sort.Strings(leafActions)

	compiledPaths := make([]CompiledPath, 0, len(policyIR.ConditionalRules))
	for _, rule := range policyIR.ConditionalRules {
		compiledPaths = append(compiledPaths, CompiledPath{
			PolicyID:   rule.PolicyID,
			Path:       compilePath(rule, ordered),
			LeafAction: NormalizeAction(rule.Action.Type, rule.Action.Value),
			Metadata:   rule.Metadata,
		})
	}

	return DecisionGraph{
		DecisionNodes:          ordered,
		NodeSchema:             nodeSchema,
		LeafActions:            leafActions,
		CompiledPaths:          compiledPaths,
		ExcludedConstraintsCnt: len(policyIR.Constraints),
	}
}

// compilePath groups a rule's conditions by variable (preserving
// first-seen test order within each variable) and emits them in
// decision-node order, matching decision_graph.py's _compile_path.
func compilePath(rule ir.ConditionalRule, ordered []string) []PathStep {
	grouped := map[string][]PathTest{}
	for _, c := range rule.Conditions {
		grouped[c.Var] = append(grouped[c.Var], PathTest{Op: c.Op, Value: c.Value})
	}

	steps := make([]PathStep, 0, len(grouped))
	for _, v := range ordered {
		if tests, ok := grouped[v]; ok {
			steps = append(steps, PathStep{Var: v, Tests: tests})
		}
	}
	return steps
}
