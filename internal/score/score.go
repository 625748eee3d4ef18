// Package score implements the Scorer & Router (C10): it combines a
// Post-Gen Report into one weighted compliance score, applies the regex
// hard gate, and routes to a terminal ComplianceAction.
//
// Grounded on _examples/original_source/Enforcement/scoring.py
// (compute_compliance_score, determine_action, compute_coverage already
// lives in internal/verify, build_compliance_decision).
package score

import (
	"fmt"

	"github.com/sovereignctl/policyguard/internal/verify"
)

// Weights, unchanged from scoring.py: regex no longer contributes to the
// weighted score — it is a hard gate instead, see Determine.
const (
	WeightSMT      = 0.60
	WeightJudge    = 0.30
	WeightCoverage = 0.10
)

// Thresholds, unchanged from scoring.py.
const (
	ThresholdPass        = 0.95
	ThresholdAutoCorrect = 0.85
	ThresholdRegenerate  = 0.70
)

// Action is the terminal enforcement action for one response.
type Action string

const (
	ActionPass        Action = "pass"
	ActionAutoCorrect Action = "auto_correct"
	ActionRegenerate  Action = "regenerate"
	ActionEscalate    Action = "escalate"
)

// Compute returns the weighted compliance score S = W_SMT*Z + W_JUDGE*L +
// W_COVERAGE*C. Regex is intentionally absent: it never contributes to S,
// only to Determine's hard gate. The judge and coverage terms are summed
// first so that a perfect report scores exactly 1.0 in floating point.
func Compute(report verify.Report) float64 {
	return WeightSMT*report.SMTResult.Score +
		(WeightJudge*report.JudgeResult.Score +
			WeightCoverage*report.CoverageResult.Score)
}

// Determine routes score to a terminal action, applying the safety-first
// hard gate first: a failed regex check always escalates regardless of
// how high every other verifier scored, so no combination of SMT/judge/
// coverage can ever override a detected PII leak or forbidden commitment.
func Determine(scoreValue float64, report verify.Report) Action {
	if !report.RegexResult.Passed {
		return ActionEscalate
	}
	switch {
	case scoreValue >= ThresholdPass:
		return ActionPass
	case scoreValue >= ThresholdAutoCorrect:
		return ActionAutoCorrect
	case scoreValue >= ThresholdRegenerate:
		return ActionRegenerate
	default:
		return ActionEscalate
	}
}

// Decision is the full scoring pipeline's output: the combined score, the
// routed action, a flat violation list for display, and structured
// evidence/audit-trail maps for the audit log entry.
type Decision struct {
	Score       float64                `json:"score"`
	Action      Action                 `json:"action"`
	Violations  []string               `json:"violations"`
	Evidence    map[string]interface{} `json:"evidence"`
	AuditTrail  map[string]interface{} `json:"audit_trail"`
	LLMResponse string                 `json:"llm_response"`
}

// BuildDecision runs the full scoring pipeline for one response: compute
// the score, determine the routed action, and assemble the violation list
// plus evidence/audit-trail maps scoring.py attaches to the decision.
func BuildDecision(report verify.Report, llmResponse string) Decision {
	scoreValue := Compute(report)
	action := Determine(scoreValue, report)

	var violations []string
	violations = append(violations, report.RegexResult.Flags...)
	for _, v := range report.SMTResult.Violations {
		label := v.Constraint
		if label == "" {
			label = v.ViolationType
		}
		violations = append(violations, fmt.Sprintf("SMT: %s — %s", v.PolicyID, label))
	}
	for _, issue := range report.JudgeResult.Issues {
		violations = append(violations, "Judge: "+issue)
	}

	evidence := map[string]interface{}{
		"smt_violations":    report.SMTResult.Violations,
		"regex_flags":       report.RegexResult.Flags,
		"judge_issues":      report.JudgeResult.Issues,
		"judge_explanation": report.JudgeResult.Explanation,
		"coverage": map[string]interface{}{
			"required": report.CoverageResult.NodesRequired,
			"covered":  report.CoverageResult.NodesCovered,
		},
	}

	auditTrail := map[string]interface{}{
		"scores": map[string]float64{
			"smt":      report.SMTResult.Score,
			"judge":    report.JudgeResult.Score,
			"regex":    report.RegexResult.Score,
			"coverage": report.CoverageResult.Score,
			"final":    scoreValue,
		},
		"weights": map[string]interface{}{
			"smt": WeightSMT, "judge": WeightJudge, "coverage": WeightCoverage,
			"regex_hard_gate": true,
		},
	}

	return Decision{
		Score:       scoreValue,
		Action:      action,
		Violations:  violations,
		Evidence:    evidence,
		AuditTrail:  auditTrail,
		LLMResponse: llmResponse,
	}
}
