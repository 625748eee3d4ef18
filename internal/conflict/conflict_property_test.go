//go:build property
// +build property

// Package conflict_test contains property-based tests for conflict
// detection, grounded on
// _examples/Mindburn-Labs-helm/core/pkg/kernel/addenda_property_test.go's
// use of gopter for determinism checks.
package conflict_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sovereignctl/policyguard/internal/conflict"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// buildGraphFromFlags compiles a decision graph with one rule per flag in
// flags and no conditions at all, so every rule's path is unconditionally
// satisfiable: any two rules disagreeing on their leaf action are a
// guaranteed conflict, any two agreeing are never compared.
func buildGraphFromFlags(flags []bool) graph.DecisionGraph {
	polIR := ir.PolicyIR{Variables: map[string]variable.Schema{}}
	for i, f := range flags {
		action := "allow"
		if !f {
			action = "deny"
		}
		polIR.ConditionalRules = append(polIR.ConditionalRules, ir.ConditionalRule{
			PolicyID: intToPolicyID(i),
			Action:   ir.Action{Type: "required", Value: action},
			Metadata: ir.RuleMetadata{Domain: "d", Priority: "company", Source: "test"},
		})
	}
	return graph.Build(polIR)
}

func intToPolicyID(i int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}

// TestDetectIsDeterministic verifies Detect(dg) == Detect(dg) on conflict
// count: the same decision graph always yields the same number of logical
// conflicts, independent of Go's map iteration order inside the solver.
func TestDetectIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("Detect is deterministic", prop.ForAll(
		func(flags []bool) bool {
			if len(flags) < 2 {
				return true
			}
			dg := buildGraphFromFlags(flags)

			r1, err1 := conflict.Detect(context.Background(), dg)
			r2, err2 := conflict.Detect(context.Background(), dg)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}

			return len(r1.LogicalConflicts) == len(r2.LogicalConflicts)
		},
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestDetectCountsEveryDisagreeingPair verifies Detect finds exactly one
// conflict per (allow, deny) pair when every path is unconditionally
// satisfiable: nothing is missed and nothing is double-counted.
func TestDetectCountsEveryDisagreeingPair(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("conflict count equals the disagreeing-pair count", prop.ForAll(
		func(flags []bool) bool {
			dg := buildGraphFromFlags(flags)
			report, err := conflict.Detect(context.Background(), dg)
			if err != nil {
				return false
			}

			trueCount, falseCount := 0, 0
			for _, f := range flags {
				if f {
					trueCount++
				} else {
					falseCount++
				}
			}
			return len(report.LogicalConflicts) == trueCount*falseCount
		},
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestDetectOnlyFlagsDisagreeingPairs verifies every reported conflict
// pairs two paths with different leaf actions, matching
// conflict_detector.py's rule that agreeing paths can never conflict.
func TestDetectOnlyFlagsDisagreeingPairs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("conflicts only ever pair disagreeing actions", prop.ForAll(
		func(flags []bool) bool {
			dg := buildGraphFromFlags(flags)
			report, err := conflict.Detect(context.Background(), dg)
			if err != nil {
				return true
			}
			for _, c := range report.LogicalConflicts {
				if c.Actions[0] == c.Actions[1] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}
