// Package bundle implements the Bundle Compiler (C6): it merges the policy
// IR, decision graph, conflict report, and priority resolution plan into a
// single self-contained artifact, plus the in-memory indexes and integrity
// checks an enforcement worker loads it with.
//
// Grounded on _examples/original_source/Validation/bundle_compiler.py
// (compile_bundle's field shape) and Enforcement/bundle_loader.py
// (BundleIndex, validate_bundle_integrity).
package bundle

import (
	"fmt"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/priority"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// SchemaVersion is the compiled bundle format version this package emits.
// Loaders gate compatibility on this field via Masterminds/semver in
// internal/bundlestore.
const SchemaVersion = "1.0"

// Metadata describes the circumstances of one compile.
type Metadata struct {
	GeneratedOn     string `json:"generated_on"`
	Generator       string `json:"generator"`
	PolicyCount     int    `json:"policy_count"`
	RuleCount       int    `json:"rule_count"`
	ConstraintCount int    `json:"constraint_count"`
	PathCount       int    `json:"path_count"`
}

// Bundle is the complete compiled artifact: everything an enforcement
// worker needs at runtime, with no further dependency on the compile-time
// pipeline (IR builder, decision graph compiler, conflict detector,
// priority resolver).
type Bundle struct {
	SchemaVersion      string                     `json:"schema_version"`
	Variables          map[string]variable.Schema `json:"variables"`
	ConditionalRules   []ir.ConditionalRule        `json:"conditional_rules"`
	Constraints        []ir.Constraint             `json:"constraints"`
	DecisionNodes      []string                    `json:"decision_nodes"`
	NodeSchema         map[string]variable.Schema  `json:"node_schema"`
	LeafActions        []string                    `json:"leaf_actions"`
	CompiledPaths      []graph.CompiledPath        `json:"compiled_paths"`
	DominanceRules     []priority.DominanceRule    `json:"dominance_rules"`
	Escalations        []priority.Escalation       `json:"escalations"`
	CanonicalActionMap []ir.CanonicalAction        `json:"canonical_action_map"`
	PriorityLattice    map[priority.Level]int      `json:"priority_lattice"`
	BundleMetadata     Metadata                    `json:"bundle_metadata"`
}

// Compile assembles a Bundle from every upstream stage's output. generatedOn
// is injected (not time.Now) so compiles are reproducible in tests and so the
// caller controls the clock the same way the audit log and IR builder do.
func Compile(policyIR ir.PolicyIR, dg graph.DecisionGraph, plan priority.Plan, generatedOn string) Bundle {
	return Bundle{
		SchemaVersion:      SchemaVersion,
		Variables:          policyIR.Variables,
		ConditionalRules:   policyIR.ConditionalRules,
		Constraints:        policyIR.Constraints,
		DecisionNodes:      dg.DecisionNodes,
		NodeSchema:         dg.NodeSchema,
		LeafActions:        dg.LeafActions,
		CompiledPaths:      dg.CompiledPaths,
		DominanceRules:     plan.DominanceRules,
		Escalations:        plan.Escalations,
		CanonicalActionMap: policyIR.CanonicalActions,
		PriorityLattice:    priority.Lattice,
		BundleMetadata: Metadata{
			GeneratedOn:     generatedOn,
			Generator:       "policyguard-bundle-compiler-v1",
			PolicyCount:     len(policyIR.ConditionalRules),
			RuleCount:       len(policyIR.ConditionalRules),
			ConstraintCount: len(policyIR.Constraints),
			PathCount:       len(dg.CompiledPaths),
		},
	}
}

// ValidateIntegrity returns non-fatal warnings: a malformed cross-reference
// inside an otherwise well-formed bundle (undefined variable, stale
// decision node, dangling dominance-rule policy ID) should be visible to
// an operator, not a hard load failure — the bundle may still enforce
// correctly for every rule that IS well-formed.
func ValidateIntegrity(b Bundle) []string {
	var warnings []string

	for _, rule := range b.ConditionalRules {
		for _, c := range rule.Conditions {
			if _, ok := b.Variables[c.Var]; !ok {
				warnings = append(warnings, fmt.Sprintf("rule %s references undefined variable %q", rule.PolicyID, c.Var))
			}
		}
	}

	for _, node := range b.DecisionNodes {
		if _, ok := b.Variables[node]; !ok {
			warnings = append(warnings, fmt.Sprintf("decision node %q not in variables", node))
		}
	}

	ruleIDs := make(map[string]bool, len(b.ConditionalRules))
	for _, rule := range b.ConditionalRules {
		ruleIDs[rule.PolicyID] = true
	}
	for _, dr := range b.DominanceRules {
		for _, pid := range dr.WhenPoliciesFire {
			if pid != "" && !ruleIDs[pid] {
				warnings = append(warnings, fmt.Sprintf("dominance rule references unknown policy %q", pid))
			}
		}
	}

	return warnings
}
