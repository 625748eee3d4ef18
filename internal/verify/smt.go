// Grounded on _examples/original_source/Enforcement/postgen/smt.py
// (extract_facts_from_response, verify_facts_against_rules, run_smt_check).
// Z3 satisfiability in the source is replaced with internal/solver's
// CEL-backed checker, the same substitution the conflict detector (C4)
// makes.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/llmtransport"
	"github.com/sovereignctl/policyguard/internal/solver"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// Facts is a variable-name-to-value assignment extracted from a response,
// the same shape a solver.Witness takes.
type Facts map[string]interface{}

// Violation records one broken constraint or uncovered decision path.
type Violation struct {
	PolicyID      string `json:"policy_id,omitempty"`
	Constraint    string `json:"constraint,omitempty"`
	ViolationType string `json:"violation_type"`
}

// SMTResult is the outcome of fact extraction plus constraint/coverage
// verification.
type SMTResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
	Score      float64     `json:"score"`
}

// boolFactPattern matches "<var> is/was (true|false|yes|no)" style
// assertions, case-insensitively, underscore-tolerant on the variable name.
var boolFactPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s+(?:is|was)\s+(true|false|yes|no)\b`)

// numericFactPattern matches "<var> is/was/of <number>" style assertions.
var numericFactPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s+(?:is|was|of)\s+(-?\d+(?:\.\d+)?)\b`)

// enumFactPattern matches "<var> is/was <word>" where <word> is not a
// number, for enum-kind variables only.
var enumFactPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s+(?:is|was)\s+([a-z][a-z0-9_]*)\b`)

// extractFactsByRegex applies the per-kind patterns above against text for
// every variable declared in schema, returning every variable it could
// confidently read a value for.
func extractFactsByRegex(text string, schema map[string]variable.Schema) Facts {
	facts := Facts{}
	lower := strings.ToLower(text)

	for name, s := range schema {
		readable := strings.ReplaceAll(name, "_", " ")
		switch s.Type {
		case variable.KindBool:
			for _, m := range boolFactPattern.FindAllStringSubmatch(lower, -1) {
				if normalizeToken(m[1]) != name && normalizeToken(m[1]) != readable {
					continue
				}
				facts[name] = m[2] == "true" || m[2] == "yes"
			}
		case variable.KindInt, variable.KindFloat:
			for _, m := range numericFactPattern.FindAllStringSubmatch(lower, -1) {
				if normalizeToken(m[1]) != name && normalizeToken(m[1]) != readable {
					continue
				}
				if f, err := strconv.ParseFloat(m[2], 64); err == nil {
					if s.Type == variable.KindInt {
						facts[name] = int64(f)
					} else {
						facts[name] = f
					}
				}
			}
		case variable.KindEnum:
			for _, m := range enumFactPattern.FindAllStringSubmatch(lower, -1) {
				if normalizeToken(m[1]) != name && normalizeToken(m[1]) != readable {
					continue
				}
				for _, v := range s.Values {
					if strings.EqualFold(v, m[2]) {
						facts[name] = v
					}
				}
			}
		}
	}
	return facts
}

func normalizeToken(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// extractFactsPrompt mirrors smt.py's LLM fallback prompt template.
const extractFactsPrompt = `Extract the value of each listed variable as stated or implied by the
response text below. Respond in JSON only, mapping each variable name to
its extracted value, omitting any variable the text does not address.

VARIABLES:
%s

RESPONSE TEXT:
%s`

// ExtractFacts extracts a Facts assignment from responseText against
// schema. It starts with the cheap regex extractor; if that extractor
// covers fewer than half of the declared variables, it falls back to an
// LLM call over the fact-fallback backend (transport.InvokeJSON), matching
// smt.py's coverage-gated escalation. A transport failure on the fallback
// is swallowed and the regex-only facts are returned, per this package's
// documented neutral-fallback contract.
func ExtractFacts(ctx context.Context, responseText string, schema map[string]variable.Schema, transport *llmtransport.Client) Facts {
	facts := extractFactsByRegex(responseText, schema)
	if len(schema) == 0 {
		return facts
	}
	coverage := float64(len(facts)) / float64(len(schema))
	if coverage >= 0.5 || transport == nil {
		return facts
	}

	var varList strings.Builder
	for name, s := range schema {
		fmt.Fprintf(&varList, "- %s (%s)\n", name, s.Type)
	}
	prompt := fmt.Sprintf(extractFactsPrompt, varList.String(), responseText)

	var llmFacts map[string]interface{}
	if err := transport.InvokeJSON(ctx, "fact-fallback", prompt, &llmFacts); err != nil {
		return facts
	}
	for name, s := range schema {
		if _, already := facts[name]; already {
			continue
		}
		raw, ok := llmFacts[name]
		if !ok {
			continue
		}
		if coerced, ok := coerceFact(s.Type, raw); ok {
			facts[name] = coerced
		}
	}
	return facts
}

func coerceFact(kind variable.Kind, raw interface{}) (interface{}, bool) {
	switch kind {
	case variable.KindBool:
		b, ok := raw.(bool)
		return b, ok
	case variable.KindInt:
		f, ok := variable.AsFloat64(raw)
		return int64(f), ok
	case variable.KindFloat:
		return variable.AsFloat64(raw)
	case variable.KindEnum:
		s, ok := raw.(string)
		return s, ok
	}
	return nil, false
}

// VerifyFactsAgainstRules checks extracted facts against every applicable
// constraint (a NOT(x) constraint breaks if x's backing boolean fact is
// true) and against path coverage: among every applicable path whose
// variables are all present in facts, at least one such path must be
// satisfied by those facts. This is an OR across the whole path set, not a
// per-path check — one covering path is enough, matching
// verify_facts_against_rules' break-on-first-satisfied loop. Only the
// absence of any satisfied path records a single "uncovered_case"
// violation.
func VerifyFactsAgainstRules(ctx context.Context, facts Facts, constraints []ir.Constraint, paths []graph.CompiledPath, schema map[string]variable.Schema) SMTResult {
	var violations []Violation

	for _, c := range constraints {
		if !strings.HasPrefix(c.Constraint, "NOT(") || !strings.HasSuffix(c.Constraint, ")") {
			continue
		}
		flag := c.Constraint[4 : len(c.Constraint)-1]
		if v, ok := facts[flag]; ok {
			if b, ok := v.(bool); ok && b {
				violations = append(violations, Violation{
					PolicyID:      c.PolicyID,
					Constraint:    c.Constraint,
					ViolationType: "constraint_breach",
				})
			}
		}
	}

	if len(violations) > 0 {
		return SMTResult{Passed: false, Violations: violations, Score: 0.0}
	}

	if len(paths) > 0 {
		anySatisfied := false
		for _, p := range paths {
			complete := true
			for _, step := range p.Path {
				if _, ok := facts[step.Var]; !ok {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}
			if satisfied, err := pathSatisfiedByFacts(p, facts, schema); err == nil && satisfied {
				anySatisfied = true
				break
			}
		}

		if !anySatisfied {
			violations = append(violations, Violation{
				PolicyID:      "path_coverage",
				ViolationType: "uncovered_case",
			})
			return SMTResult{Passed: false, Violations: violations, Score: 0.5}
		}
	}

	return SMTResult{Passed: true, Violations: nil, Score: 1.0}
}

// pathSatisfiedByFacts delegates each step's conjunction of tests to
// solver.EvaluateTests against the extracted fact value — the same CEL
// machinery the conflict detector uses to verify a witness, here checking
// one concrete fact instead of searching for one.
func pathSatisfiedByFacts(p graph.CompiledPath, facts Facts, schema map[string]variable.Schema) (bool, error) {
	for _, step := range p.Path {
		value, ok := facts[step.Var]
		if !ok {
			return false, nil
		}
		ok, err := solver.EvaluateTests(step.Var, schema[step.Var].Type, step.Tests, value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// RunSMTCheck runs the full fact-extraction-then-verification pipeline. If
// extraction produced zero facts at all, smt.py returns a neutral 0.8
// score rather than either extreme — there is nothing to confirm a
// violation, and nothing to confirm compliance.
func RunSMTCheck(ctx context.Context, responseText string, constraints []ir.Constraint, paths []graph.CompiledPath, schema map[string]variable.Schema, transport *llmtransport.Client) SMTResult {
	facts := ExtractFacts(ctx, responseText, schema, transport)
	if len(facts) == 0 {
		return SMTResult{Passed: true, Violations: nil, Score: 0.8}
	}
	return VerifyFactsAgainstRules(ctx, facts, constraints, paths, schema)
}
