package verify

import (
	"context"
	"regexp"

	"golang.org/x/text/unicode/norm"

	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/llmtransport"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// Report is the combined output of all four post-gen verifiers for one
// generated response, the input the Scorer & Router (C10) consumes.
type Report struct {
	RegexResult    RegexResult    `json:"regex_result"`
	SMTResult      SMTResult      `json:"smt_result"`
	JudgeResult    JudgeResult    `json:"judge_result"`
	CoverageResult CoverageResult `json:"coverage_result"`
}

// Options carries the extra inputs RunAll needs beyond the enforcement
// context and response text: caller-supplied extra regex patterns and the
// LLM transport used by the judge and fact-extraction fallback.
type Options struct {
	ExtraRegexPatterns map[string]*regexp.Regexp
	Transport          *llmtransport.Client
}

// RunAll normalizes responseText to NFC (guarding every pattern-matching
// verifier below against combining-character variants of the same visible
// text) and runs the regex gate, the SMT fact verifier, the judge, and
// coverage, returning one combined Report. schema is the bundle's declared
// variable schema, needed by the SMT verifier to know each decision
// variable's kind.
func RunAll(ctx context.Context, responseText string, ec pgcontext.EnforcementContext, schema map[string]variable.Schema, opts Options) Report {
	normalized := norm.NFC.String(responseText)

	var constraintTexts []string
	for _, c := range ec.ApplicableConstraints {
		constraintTexts = append(constraintTexts, c.Constraint)
	}

	regexResult := RunRegexCheck(normalized, constraintTexts, opts.ExtraRegexPatterns)
	smtResult := RunSMTCheck(ctx, normalized, ec.ApplicableConstraints, ec.ApplicablePaths, schema, opts.Transport)
	judgeResult := RunJudgeCheck(ctx, normalized, ec, opts.Transport)
	coverageResult := ComputeCoverage(ec, normalized)

	return Report{
		RegexResult:    regexResult,
		SMTResult:      smtResult,
		JudgeResult:    judgeResult,
		CoverageResult: coverageResult,
	}
}
