// Package variable implements the typed variable model and comparison-test
// encoder shared by the decision-graph compiler, the conflict detector, and
// the post-generation SMT-style verifier.
//
// Grounded on _examples/original_source/Validation/z3_utils.go's type/
// operator matrix (z3_var, encode_test): four variable kinds — bool, int,
// float, enum — and six comparison operators, with enum modeled as a
// closed set of string values (Z3 String equality in the original; CEL
// string equality here, see internal/solver).
package variable

import (
	"errors"
	"fmt"
)

// Kind is a variable's declared type.
type Kind string

const (
	KindBool  Kind = "bool"
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindEnum  Kind = "enum"
)

// Operator is a comparison test's relational operator.
type Operator string

const (
	OpEq Operator = "=="
	OpNe Operator = "!="
	OpLe Operator = "<="
	OpGe Operator = ">="
	OpLt Operator = "<"
	OpGt Operator = ">"
)

// Schema describes one declared variable.
type Schema struct {
	Type        Kind     `json:"type"`
	Description string   `json:"description,omitempty"`
	Values      []string `json:"values,omitempty"` // enum only, accumulated in first-seen order
}

// Test is a single {var, op, value} comparison, the atomic unit a
// conditional rule's conditions and a compiled path's steps are built from.
type Test struct {
	Var   string      `json:"var"`
	Op    Operator    `json:"op"`
	Value interface{} `json:"value"`
}

var (
	// ErrUnknownVariable is returned when a test references a variable
	// absent from the schema.
	ErrUnknownVariable = errors.New("variable: unknown variable")
	// ErrUnsupportedOperator is returned when an operator is not valid for
	// the variable's kind (e.g. "<" against an enum).
	ErrUnsupportedOperator = errors.New("variable: unsupported operator for kind")
	// ErrTypeMismatch is returned when a test's value cannot be reconciled
	// with its variable's declared kind.
	ErrTypeMismatch = errors.New("variable: type mismatch")
)

// operatorsByKind lists which operators are valid per kind. Equality
// comparisons are defined for every kind; ordering comparisons only make
// sense for int and float.
var operatorsByKind = map[Kind]map[Operator]bool{
	KindBool:  {OpEq: true, OpNe: true},
	KindEnum:  {OpEq: true, OpNe: true},
	KindInt:   {OpEq: true, OpNe: true, OpLe: true, OpGe: true, OpLt: true, OpGt: true},
	KindFloat: {OpEq: true, OpNe: true, OpLe: true, OpGe: true, OpLt: true, OpGt: true},
}

// ValidOperator reports whether op is a legal comparison for kind.
func ValidOperator(k Kind, op Operator) bool {
	ops, ok := operatorsByKind[k]
	if !ok {
		return false
	}
	return ops[op]
}

// CheckValue reports whether value is consistent with kind, independent of
// any particular operator.
func CheckValue(k Kind, value interface{}) bool {
	switch k {
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindInt:
		switch value.(type) {
		case int, int32, int64, float64: // json numbers decode as float64
			return true
		}
		return false
	case KindFloat:
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case KindEnum:
		_, ok := value.(string)
		return ok
	}
	return false
}

// Validate checks a test against a schema, failing fast with a sentinel
// error before the test is ever handed to the solver.
func Validate(t Test, schema map[string]Schema) error {
	s, ok := schema[t.Var]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, t.Var)
	}
	if !ValidOperator(s.Type, t.Op) {
		return fmt.Errorf("%w: operator %q on kind %q (var %q)", ErrUnsupportedOperator, t.Op, s.Type, t.Var)
	}
	if !CheckValue(s.Type, t.Value) {
		return fmt.Errorf("%w: value %v is not a valid %q for var %q", ErrTypeMismatch, t.Value, s.Type, t.Var)
	}
	return nil
}

// InferKind derives a variable's kind from a raw value when no explicit
// type hint is available, mirroring z3_utils.py's value-based fallback in
// _infer_variable_type.
func InferKind(value interface{}) Kind {
	switch value.(type) {
	case bool:
		return KindBool
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	default:
		return KindEnum
	}
}

// AsFloat64 normalizes any of the numeric representations CheckValue
// accepts into a float64, for use by the solver's interval arithmetic.
func AsFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
