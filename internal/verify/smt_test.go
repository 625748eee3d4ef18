package verify

import (
	"context"
	"testing"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/variable"
)

func boolSchema() map[string]variable.Schema {
	return map[string]variable.Schema{
		"has_receipt": {Type: variable.KindBool},
	}
}

func TestExtractFactsByRegexReadsBoolAssertion(t *testing.T) {
	facts := extractFactsByRegex("The customer confirmed has_receipt is true for this order.", boolSchema())
	if v, ok := facts["has_receipt"]; !ok || v != true {
		t.Fatalf("expected has_receipt=true, got %v", facts)
	}
}

func TestRunSMTCheckReturnsNeutralScoreWhenNoFactsExtracted(t *testing.T) {
	result := RunSMTCheck(context.Background(), "We appreciate your patience.", nil, nil, boolSchema(), nil)
	if result.Score != 0.8 || !result.Passed {
		t.Fatalf("expected neutral 0.8 passing score, got %+v", result)
	}
}

func TestVerifyFactsAgainstRulesFlagsConstraintBreach(t *testing.T) {
	facts := Facts{"disclose_pii": true}
	constraints := []ir.Constraint{{PolicyID: "P1", Constraint: "NOT(disclose_pii)"}}
	result := VerifyFactsAgainstRules(context.Background(), facts, constraints, nil, nil)
	if result.Passed || result.Score != 0.0 {
		t.Fatalf("expected constraint breach to fail, got %+v", result)
	}
	if len(result.Violations) != 1 || result.Violations[0].ViolationType != "constraint_breach" {
		t.Fatalf("expected one constraint_breach violation, got %v", result.Violations)
	}
}

func TestVerifyFactsAgainstRulesFlagsUncoveredPath(t *testing.T) {
	schema := map[string]variable.Schema{"has_receipt": {Type: variable.KindBool}}
	facts := Facts{"has_receipt": true}
	paths := []graph.CompiledPath{
		{
			PolicyID: "P1",
			Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: false}}},
			},
			LeafAction: "full_refund:full",
		},
	}
	result := VerifyFactsAgainstRules(context.Background(), facts, nil, paths, schema)
	if result.Passed || result.Score != 0.5 {
		t.Fatalf("expected uncovered_case at score 0.5, got %+v", result)
	}
}

func TestVerifyFactsAgainstRulesPassesWhenAnyPathInSetIsSatisfied(t *testing.T) {
	schema := map[string]variable.Schema{"has_receipt": {Type: variable.KindBool}}
	facts := Facts{"has_receipt": true}
	paths := []graph.CompiledPath{
		{
			PolicyID: "P1",
			Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: false}}},
			},
			LeafAction: "full_refund:partial",
		},
		{
			PolicyID: "P2",
			Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}},
			},
			LeafAction: "full_refund:full",
		},
	}
	result := VerifyFactsAgainstRules(context.Background(), facts, nil, paths, schema)
	if !result.Passed || result.Score != 1.0 {
		t.Fatalf("expected pass at score 1.0 since one complete path in the set is satisfied, got %+v", result)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", result.Violations)
	}
}

func TestVerifyFactsAgainstRulesPassesWhenPathSatisfied(t *testing.T) {
	schema := map[string]variable.Schema{"has_receipt": {Type: variable.KindBool}}
	facts := Facts{"has_receipt": true}
	paths := []graph.CompiledPath{
		{
			PolicyID: "P1",
			Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}},
			},
			LeafAction: "full_refund:full",
		},
	}
	result := VerifyFactsAgainstRules(context.Background(), facts, nil, paths, schema)
	if !result.Passed || result.Score != 1.0 {
		t.Fatalf("expected pass at score 1.0, got %+v", result)
	}
}
