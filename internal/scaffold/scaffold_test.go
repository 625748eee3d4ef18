package scaffold

import (
	"strings"
	"testing"

	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/priority"
	"github.com/sovereignctl/policyguard/internal/variable"
)

func TestSerializeConstraintsRendersNeverForProhibition(t *testing.T) {
	out := SerializeConstraints([]ir.Constraint{{Constraint: "NOT(disclose_pii)"}})
	if !strings.Contains(out, "NEVER disclose pii.") {
		t.Fatalf("expected NEVER rendering, got %q", out)
	}
}

func TestSerializeConstraintsEmptyReturnsEmptyString(t *testing.T) {
	if out := SerializeConstraints(nil); out != "" {
		t.Fatalf("expected empty string for no constraints, got %q", out)
	}
}

func TestSerializeScaffoldOrdersByDecisionNodesThenAppendsFinal(t *testing.T) {
	variables := map[string]variable.Schema{
		"has_receipt": {Type: variable.KindBool},
	}
	paths := []graph.CompiledPath{
		{
			PolicyID:   "P1",
			LeafAction: "full_refund:full",
			Path:       []graph.PathStep{{Var: "has_receipt", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}}},
			Metadata:   ir.RuleMetadata{Source: "handbook", EffectiveDate: "2026-01-01"},
		},
	}
	steps := SerializeScaffold(paths, variables, []string{"has_receipt"}, nil)

	if len(steps) < 3 {
		t.Fatalf("expected at least 3 steps (check, branch, final), got %v", steps)
	}
	if !strings.HasPrefix(steps[0], "STEP 1: Check variable has_receipt.") {
		t.Fatalf("unexpected first step: %q", steps[0])
	}
	last := steps[len(steps)-1]
	if !strings.Contains(last, "FINAL") {
		t.Fatalf("expected final step, got %q", last)
	}
}

func TestSerializeScaffoldEmptyPathsReturnsNil(t *testing.T) {
	if steps := SerializeScaffold(nil, nil, nil, nil); steps != nil {
		t.Fatalf("expected nil for no paths, got %v", steps)
	}
}

func TestBuildInjectionBundleIncludesDominanceGuidance(t *testing.T) {
	ec := pgcontext.EnforcementContext{
		ApplicableConstraints: []ir.Constraint{{Constraint: "NOT(share_pii)"}},
		DominanceApplied: []priority.DominanceRule{
			{WhenPoliciesFire: [2]string{"P1", "P2"}, Enforce: "P1", Mode: priority.RelationOverride, Notes: "override"},
		},
	}
	injection := BuildInjectionBundle(ec, nil, nil)

	if !strings.Contains(injection.PriorityGuidance, "Enforce P1 when in conflict.") {
		t.Fatalf("expected dominance guidance appended, got %q", injection.PriorityGuidance)
	}
	if !strings.Contains(injection.SystemPromptAdditions, "BEGIN POLICY ENFORCEMENT") {
		t.Fatalf("expected system additions to include enforcement block, got %q", injection.SystemPromptAdditions)
	}
}

func TestFormatFullPromptAppendsScaffoldToUserMessage(t *testing.T) {
	injection := InjectionBundle{ScaffoldSteps: []string{"STEP 1: Check x.", "STEP 2: FINAL."}}
	prompt := FormatFullPrompt("what is my refund status", injection, "")

	if !strings.Contains(prompt.User, "Follow the enforcement scaffold below:") {
		t.Fatalf("expected scaffold appended to user message, got %q", prompt.User)
	}
	if !strings.Contains(prompt.User, "STEP 1: Check x.") {
		t.Fatalf("expected scaffold steps present, got %q", prompt.User)
	}
}
