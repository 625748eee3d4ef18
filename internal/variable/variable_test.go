package variable

import (
	"errors"
	"testing"
)

func TestValidateRejectsUnsupportedOperator(t *testing.T) {
	schema := map[string]Schema{"region": {Type: KindEnum}}
	err := Validate(Test{Var: "region", Op: OpLt, Value: "eu"}, schema)
	if !errors.Is(err, ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator, got %v", err)
	}
}

func TestValidateRejectsTypeMismatch(t *testing.T) {
	schema := map[string]Schema{"has_receipt": {Type: KindBool}}
	err := Validate(Test{Var: "has_receipt", Op: OpEq, Value: "yes"}, schema)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestValidateRejectsUnknownVariable(t *testing.T) {
	err := Validate(Test{Var: "ghost", Op: OpEq, Value: 1}, map[string]Schema{})
	if !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestValidateAcceptsOrderingOnNumeric(t *testing.T) {
	schema := map[string]Schema{"refund_amount": {Type: KindFloat}}
	if err := Validate(Test{Var: "refund_amount", Op: OpLe, Value: 500.0}, schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInferKind(t *testing.T) {
	cases := []struct {
		value interface{}
		want  Kind
	}{
		{true, KindBool},
		{3, KindInt},
		{3.5, KindFloat},
		{"gold", KindEnum},
	}
	for _, c := range cases {
		if got := InferKind(c.value); got != c.want {
			t.Errorf("InferKind(%v) = %v, want %v", c.value, got, c.want)
		}
	}
}
