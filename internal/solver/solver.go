// Package solver implements the satisfiability engine shared by the
// Conflict Detector (C4) and the post-generation SMT-style verifier (C9).
//
// The reference implementation (_examples/original_source/Validation/
// z3_utils.go — actually z3_utils.py) asks a real SMT solver (Z3) whether
// two conjunctions of single-variable comparisons are simultaneously
// satisfiable. This corpus's teacher never depends on Z3 — it depends on
// google/cel-go and uses it for exactly this shape of problem (validate →
// compile → evaluate a boolean expression against typed variables, see
// core/pkg/kernel/celdp/evaluator.go). Since the IR's expressiveness is
// restricted to quantifier-free conjunctions of independent single-variable
// tests (no two tests in this model ever relate two different variables to
// each other), satisfiability of the whole conjunction decomposes into
// per-variable satisfiability: bounded domain enumeration for bool/enum
// variables, interval intersection for numeric ones. Each candidate value
// this package settles on is still double-checked by compiling and
// evaluating the real CEL expression against it, so CEL is the engine of
// record for the final yes/no, not just documentation.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// ErrTimeout is returned when a satisfiability check does not complete
// before the context's deadline. Per spec.md §7 a timed-out pair is
// reported as "conflict unknown" and escalated, never silently dropped.
var ErrTimeout = errors.New("solver: timed out")

// Witness is a satisfying assignment: one value per variable referenced by
// either path.
type Witness map[string]interface{}

// CheckSatisfiable reports whether pathA and pathB's conditions can be
// simultaneously true for some input, returning a witness assignment if so.
// A nil witness with a nil error means proven unsatisfiable (no conflict).
func CheckSatisfiable(ctx context.Context, pathA, pathB []graph.PathStep, schema map[string]variable.Schema) (Witness, error) {
	merged := map[string][]graph.PathTest{}
	for _, step := range pathA {
		merged[step.Var] = append(merged[step.Var], step.Tests...)
	}
	for _, step := range pathB {
		merged[step.Var] = append(merged[step.Var], step.Tests...)
	}

	vars := make([]string, 0, len(merged))
	for v := range merged {
		vars = append(vars, v)
	}
	sort.Strings(vars) // deterministic iteration for reproducible error messages

	witness := make(Witness, len(vars))
	for _, v := range vars {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}

		kind := schema[v].Type
		value, ok, err := satisfyVariable(v, kind, schema[v].Values, merged[v])
		if err != nil {
			return nil, fmt.Errorf("solver: variable %q: %w", v, err)
		}
		if !ok {
			return nil, nil // this variable alone is unsatisfiable: whole pair is UNSAT
		}
		witness[v] = value
	}
	return witness, nil
}

// satisfyVariable finds one value of kind satisfying every test, or
// reports ok=false if no such value exists.
func satisfyVariable(name string, kind variable.Kind, enumValues []string, tests []graph.PathTest) (interface{}, bool, error) {
	switch kind {
	case variable.KindBool:
		return satisfyDomain(name, kind, []interface{}{true, false}, tests)
	case variable.KindEnum:
		domain := enumDomain(enumValues, tests)
		return satisfyDomain(name, kind, domain, tests)
	case variable.KindInt, variable.KindFloat:
		return satisfyNumeric(name, kind, tests)
	default:
		return nil, false, fmt.Errorf("unsupported kind %q", kind)
	}
}

// enumDomain is the schema's declared enum values, extended with any
// literal string referenced directly by a test (defensive: a test should
// only ever reference an already-registered enum value, but falling back
// keeps the solver total rather than panicking on a malformed bundle).
func enumDomain(declared []string, tests []graph.PathTest) []interface{} {
	seen := map[string]bool{}
	var out []interface{}
	for _, v := range declared {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, t := range tests {
		if s, ok := t.Value.(string); ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// satisfyDomain enumerates a closed domain and returns the first value for
// which every test evaluates true under CEL.
func satisfyDomain(name string, kind variable.Kind, domain []interface{}, tests []graph.PathTest) (interface{}, bool, error) {
	if len(domain) == 0 {
		return nil, false, nil
	}
	expr, err := conjunctionExpr(name, kind, tests)
	if err != nil {
		return nil, false, err
	}
	if expr == "" {
		return domain[0], true, nil // unconstrained
	}
	prg, err := compile(name, kind, expr)
	if err != nil {
		return nil, false, err
	}
	for _, candidate := range domain {
		ok, err := evalBool(prg, name, candidate)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return candidate, true, nil
		}
	}
	return nil, false, nil
}

// compile builds a CEL program for expr over a single declared variable.
func compile(name string, kind variable.Kind, expr string) (cel.Program, error) {
	env, err := cel.NewEnv(cel.Variable(name, celType(kind)))
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return prg, nil
}

func evalBool(prg cel.Program, name string, value interface{}) (bool, error) {
	out, _, err := prg.Eval(map[string]interface{}{name: value})
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel eval: expected bool result, got %T", out.Value())
	}
	return b, nil
}

func celType(k variable.Kind) *cel.Type {
	switch k {
	case variable.KindBool:
		return cel.BoolType
	case variable.KindInt:
		return cel.IntType
	case variable.KindFloat:
		return cel.DoubleType
	default:
		return cel.StringType
	}
}

func celLiteral(kind variable.Kind, value interface{}) (string, error) {
	switch kind {
	case variable.KindBool:
		b, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool literal, got %T", value)
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case variable.KindEnum:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("expected string literal, got %T", value)
		}
		return fmt.Sprintf("%q", s), nil
	case variable.KindInt:
		f, ok := variable.AsFloat64(value)
		if !ok {
			return "", fmt.Errorf("expected numeric literal, got %T", value)
		}
		return fmt.Sprintf("%d", int64(f)), nil
	case variable.KindFloat:
		f, ok := variable.AsFloat64(value)
		if !ok {
			return "", fmt.Errorf("expected numeric literal, got %T", value)
		}
		return fmt.Sprintf("%g", f), nil
	}
	return "", fmt.Errorf("unsupported kind %q", kind)
}

// EvaluateTests reports whether value satisfies every test in tests for a
// variable of the given name and kind, compiling and evaluating the same
// CEL conjunction CheckSatisfiable verifies its witnesses against. Shared
// by the post-generation SMT-style verifier (C9), which checks a single
// extracted fact value rather than searching for one.
func EvaluateTests(name string, kind variable.Kind, tests []graph.PathTest, value interface{}) (bool, error) {
	expr, err := conjunctionExpr(name, kind, tests)
	if err != nil {
		return false, err
	}
	if expr == "" {
		return true, nil
	}
	prg, err := compile(name, kind, expr)
	if err != nil {
		return false, err
	}
	return evalBool(prg, name, value)
}

func conjunctionExpr(name string, kind variable.Kind, tests []graph.PathTest) (string, error) {
	var parts []string
	for _, t := range tests {
		lit, err := celLiteral(kind, t.Value)
		if err != nil {
			return "", fmt.Errorf("variable %q: %w", name, err)
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", name, t.Op, lit))
	}
	return strings.Join(parts, " && "), nil
}
