package verify

import (
	"testing"

	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/variable"
)

func TestComputeCoverageNoPathsScoresFull(t *testing.T) {
	result := ComputeCoverage(pgcontext.EnforcementContext{}, "anything")
	if result.Score != 1.0 || result.NodesRequired != nil {
		t.Fatalf("expected full score with no required nodes, got %+v", result)
	}
}

func TestComputeCoveragePenalizesIncompleteMention(t *testing.T) {
	ec := pgcontext.EnforcementContext{
		ApplicablePaths: []graph.CompiledPath{
			{Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}},
				{Var: "customer_tier", Tests: []graph.PathTest{{Op: variable.OpEq, Value: "gold"}}},
			}},
		},
	}
	result := ComputeCoverage(ec, "The customer has receipt on file.")
	if len(result.NodesCovered) != 1 {
		t.Fatalf("expected 1 node covered, got %v", result.NodesCovered)
	}
	want := 0.5 * 0.8
	if result.Score != want {
		t.Fatalf("expected penalized score %v, got %v", want, result.Score)
	}
}

func TestComputeCoverageFullMentionNoPenalty(t *testing.T) {
	ec := pgcontext.EnforcementContext{
		ApplicablePaths: []graph.CompiledPath{
			{Path: []graph.PathStep{
				{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}},
			}},
		},
	}
	result := ComputeCoverage(ec, "The customer has receipt confirmed.")
	if result.Score != 1.0 {
		t.Fatalf("expected full score, got %v", result.Score)
	}
}
