package priority

import (
	"testing"

	"github.com/sovereignctl/policyguard/internal/conflict"
	"github.com/sovereignctl/policyguard/internal/ir"
)

func TestNormalizePriorityRegulatoryLinkageWins(t *testing.T) {
	meta := ir.RuleMetadata{Priority: "situational", RegulatoryLinkage: []string{"GDPR"}}
	if got := NormalizePriority(meta); got != LevelRegulatory {
		t.Fatalf("expected regulatory, got %s", got)
	}
}

func TestNormalizePriorityAlias(t *testing.T) {
	cases := map[string]Level{
		"legal":     LevelRegulatory,
		"ethics":    LevelCoreValues,
		"dept":      LevelDepartment,
		"promo":     LevelSituational,
		"unknown-x": LevelCompany,
		"":          LevelCompany,
	}
	for input, want := range cases {
		if got := NormalizePriority(ir.RuleMetadata{Priority: input}); got != want {
			t.Fatalf("priority %q: got %s, want %s", input, got, want)
		}
	}
}

func TestActionRelationComposeWhenApprovalAndRefund(t *testing.T) {
	if got := actionRelation("requires_approval", "issue_refund"); got != RelationCompose {
		t.Fatalf("expected compose, got %s", got)
	}
	if got := actionRelation("issue_refund", "requires_approval"); got != RelationCompose {
		t.Fatalf("expected compose (order reversed), got %s", got)
	}
}

func TestActionRelationOverrideOtherwise(t *testing.T) {
	if got := actionRelation("deny_refund", "escalate_refund"); got != RelationOverride {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestResolveDifferentPriorityAutoResolves(t *testing.T) {
	report := conflict.Report{
		LogicalConflicts: []conflict.Conflict{
			{
				Policies: [2]string{"P1", "P2"},
				Actions:  [2]string{"full_refund:full", "deny_refund:none"},
				Metadata: [2]interface{}{
					ir.RuleMetadata{Priority: "regulatory"},
					ir.RuleMetadata{Priority: "company"},
				},
			},
		},
	}

	plan := Resolve(report, nil, nil)
	if len(plan.AutoResolutions) != 1 {
		t.Fatalf("expected 1 auto-resolution, got %d", len(plan.AutoResolutions))
	}
	if plan.AutoResolutions[0].Winner != "P1" {
		t.Fatalf("expected P1 (regulatory) to win, got %s", plan.AutoResolutions[0].Winner)
	}
	if len(plan.DominanceRules) != 1 {
		t.Fatalf("expected 1 dominance rule, got %d", len(plan.DominanceRules))
	}
	if len(plan.Escalations) != 0 {
		t.Fatalf("expected no escalations, got %d", len(plan.Escalations))
	}
}

func TestResolveSamePriorityEscalates(t *testing.T) {
	report := conflict.Report{
		LogicalConflicts: []conflict.Conflict{
			{
				Policies: [2]string{"P1", "P2"},
				Actions:  [2]string{"full_refund:full", "deny_refund:none"},
				Metadata: [2]interface{}{
					ir.RuleMetadata{Priority: "company", Owner: "team-a"},
					ir.RuleMetadata{Priority: "company", Owner: "team-b"},
				},
			},
		},
	}

	plan := Resolve(report, nil, nil)
	if len(plan.AutoResolutions) != 0 {
		t.Fatalf("expected no auto-resolutions, got %d", len(plan.AutoResolutions))
	}
	if len(plan.Escalations) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(plan.Escalations))
	}
	esc := plan.Escalations[0]
	if len(esc.OwnersToNotify) != 2 {
		t.Fatalf("expected both owners notified, got %v", esc.OwnersToNotify)
	}
}

func TestResolveSemanticConflictsAlwaysEscalate(t *testing.T) {
	plan := Resolve(conflict.Report{}, []SemanticConflict{
		{Policies: [2]string{"P3", "P4"}, Actions: [2]string{"a", "b"}, Note: "contradicts tone"},
	}, map[string]ir.RuleMetadata{
		"P3": {Priority: "regulatory"},
		"P4": {Priority: "company"},
	})
	if len(plan.Escalations) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(plan.Escalations))
	}
	if plan.Escalations[0].RecommendedNext != "llm_validation_or_human_review" {
		t.Fatalf("unexpected recommended step: %s", plan.Escalations[0].RecommendedNext)
	}
}
