// Package verify implements the Post-Gen Verifiers (C9): the regex
// hard-gate, the SMT-style fact verifier, the judge-LLM verifier, and the
// coverage verifier that together produce one PostGenReport per response.
// No verifier checks whether an action the response recommends contradicts
// the action of an applicable rule.
//
// Grounded on _examples/original_source/Enforcement/postgen/regex.py
// (DEFAULT_FORBIDDEN_PATTERNS, compile_constraint_patterns, run_regex_check).
package verify

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexResult is the outcome of the regex hard-gate: any match against a
// forbidden pattern fails the gate regardless of every other verifier's
// score, per scoring.py's safety-first routing rule.
type RegexResult struct {
	Passed bool     `json:"passed"`
	Flags  []string `json:"flags"`
	Score  float64  `json:"score"`
}

// defaultForbiddenPatterns are always checked, independent of any
// constraint the bundle declares — PII and commitment language a
// governed assistant must never emit, matching regex.py's module-level
// DEFAULT_FORBIDDEN_PATTERNS dict exactly.
var defaultForbiddenPatterns = map[string]*regexp.Regexp{
	"ssn":                  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"email":                regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"credit_card":          regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
	"password_disclosure":  regexp.MustCompile(`(?i)\b(your|the)\s+password\s+is\b`),
	"guarantee_promise":    regexp.MustCompile(`(?i)\b(guarantee(d)?|promise(d)?)\b`),
	"unconditional_commit": regexp.MustCompile(`(?i)\b(we will|i will)\s+\w+\s+(refund|approve|waive)\b`),
}

// piiConstraintHints are substrings that, when present in a constraint's
// text, mark it as already covered by one of the default PII patterns —
// compileConstraintPatterns skips emitting a redundant pattern for these,
// matching regex.py's _is_pii_constraint check.
var piiConstraintHints = []string{"ssn", "social_security", "email", "credit_card", "password"}

func isPIIConstraint(text string) bool {
	lower := strings.ToLower(text)
	for _, hint := range piiConstraintHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// compileConstraintPatterns turns each "NOT(x)" constraint into a
// word-boundary, case-insensitive pattern matching x with each underscore
// rendered as a single whitespace-or-underscore character class, so a
// response that still spells out the token with literal underscores (e.g.
// a quoted "full_refund") still matches, skipping any constraint already
// covered by a default PII pattern.
func compileConstraintPatterns(constraints []string) map[string]*regexp.Regexp {
	out := map[string]*regexp.Regexp{}
	for _, c := range constraints {
		if !strings.HasPrefix(c, "NOT(") || !strings.HasSuffix(c, ")") {
			continue
		}
		inner := c[4 : len(c)-1]
		if isPIIConstraint(inner) {
			continue
		}
		phrase := strings.ReplaceAll(regexp.QuoteMeta(inner), `_`, `[\s_]`)
		pattern := fmt.Sprintf(`(?i)\b%s\b`, phrase)
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue // malformed constraint text: skip rather than fail the whole check
		}
		out[c] = re
	}
	return out
}

// RunRegexCheck scans text against the default forbidden patterns, the
// constraint-derived patterns, and any caller-supplied extra patterns,
// returning a RegexResult whose Score is 1.0 if nothing matched and 0.0
// otherwise — the gate is binary, there is no partial credit.
func RunRegexCheck(text string, constraints []string, extra map[string]*regexp.Regexp) RegexResult {
	var flags []string

	checkAll := func(patterns map[string]*regexp.Regexp) {
		for name, re := range patterns {
			if re.MatchString(text) {
				flags = append(flags, name)
			}
		}
	}

	checkAll(defaultForbiddenPatterns)
	checkAll(compileConstraintPatterns(constraints))
	checkAll(extra)

	if len(flags) == 0 {
		return RegexResult{Passed: true, Flags: nil, Score: 1.0}
	}
	return RegexResult{Passed: false, Flags: flags, Score: 0.0}
}
