package score

import (
	"testing"

	"github.com/sovereignctl/policyguard/internal/verify"
)

func fullReport() verify.Report {
	return verify.Report{
		RegexResult:    verify.RegexResult{Passed: true, Score: 1.0},
		SMTResult:      verify.SMTResult{Passed: true, Score: 1.0},
		JudgeResult:    verify.JudgeResult{Score: 1.0},
		CoverageResult: verify.CoverageResult{Score: 1.0},
	}
}

func TestComputeWeightsSumToOneOnPerfectReport(t *testing.T) {
	if s := Compute(fullReport()); s != 1.0 {
		t.Fatalf("expected perfect score 1.0, got %v", s)
	}
}

func TestDetermineRoutesToPassAboveThreshold(t *testing.T) {
	if a := Determine(0.96, fullReport()); a != ActionPass {
		t.Fatalf("expected pass, got %v", a)
	}
}

func TestDetermineRoutesToAutoCorrect(t *testing.T) {
	report := fullReport()
	if a := Determine(0.88, report); a != ActionAutoCorrect {
		t.Fatalf("expected auto_correct, got %v", a)
	}
}

func TestDetermineRoutesToRegenerate(t *testing.T) {
	report := fullReport()
	if a := Determine(0.75, report); a != ActionRegenerate {
		t.Fatalf("expected regenerate, got %v", a)
	}
}

func TestDetermineRoutesToEscalateBelowRegenerateThreshold(t *testing.T) {
	report := fullReport()
	if a := Determine(0.5, report); a != ActionEscalate {
		t.Fatalf("expected escalate, got %v", a)
	}
}

func TestDetermineHardGateEscalatesRegardlessOfScore(t *testing.T) {
	report := fullReport()
	report.RegexResult = verify.RegexResult{Passed: false, Flags: []string{"ssn"}, Score: 0.0}
	if a := Determine(1.0, report); a != ActionEscalate {
		t.Fatalf("expected regex hard gate to force escalate even at a perfect score, got %v", a)
	}
}

func TestBuildDecisionCollectsViolationsAcrossVerifiers(t *testing.T) {
	report := fullReport()
	report.RegexResult = verify.RegexResult{Passed: false, Flags: []string{"ssn"}, Score: 0.0}
	report.SMTResult.Violations = []verify.Violation{{PolicyID: "P1", Constraint: "NOT(disclose_pii)", ViolationType: "constraint_breach"}}
	report.JudgeResult.Issues = []string{"tone_implies_guarantee"}

	decision := BuildDecision(report, "the response text")
	if decision.Action != ActionEscalate {
		t.Fatalf("expected escalate, got %v", decision.Action)
	}
	if len(decision.Violations) != 3 {
		t.Fatalf("expected 3 collected violations, got %v", decision.Violations)
	}
}
