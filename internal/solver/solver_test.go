package solver

import (
	"context"
	"testing"
	"time"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/variable"
)

func schemaFor(kind variable.Kind, values ...string) map[string]variable.Schema {
	return map[string]variable.Schema{
		"x": {Type: kind, Values: values},
	}
}

func TestCheckSatisfiableDisjointNumericRangesIsUnsat(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpLe, Value: 10.0}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpGt, Value: 20.0}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindFloat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness != nil {
		t.Fatalf("expected UNSAT, got witness %v", witness)
	}
}

func TestCheckSatisfiableOverlappingNumericRangesIsSat(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpLe, Value: 500.0}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpGe, Value: 100.0}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindFloat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness == nil {
		t.Fatal("expected SAT with a witness")
	}
	v, ok := variable.AsFloat64(witness["x"])
	if !ok || v < 100.0 || v > 500.0 {
		t.Fatalf("witness %v outside expected range [100, 500]", witness["x"])
	}
}

func TestCheckSatisfiableIntegerDisjointAfterExclusion(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{
		{Op: variable.OpGe, Value: 1.0},
		{Op: variable.OpLe, Value: 1.0},
	}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpNe, Value: 1.0}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindInt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness != nil {
		t.Fatalf("expected UNSAT (x must equal 1 and must not equal 1), got %v", witness)
	}
}

func TestCheckSatisfiableEnumDomainEnumeration(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpEq, Value: "gold"}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpNe, Value: "silver"}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindEnum, "gold", "silver"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness == nil || witness["x"] != "gold" {
		t.Fatalf("expected witness x=gold, got %v", witness)
	}
}

func TestCheckSatisfiableEnumDomainUnsat(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpEq, Value: "gold"}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpEq, Value: "silver"}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindEnum, "gold", "silver"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness != nil {
		t.Fatalf("expected UNSAT, got %v", witness)
	}
}

func TestCheckSatisfiableBoolDomain(t *testing.T) {
	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpEq, Value: true}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpEq, Value: false}}}}

	witness, err := CheckSatisfiable(context.Background(), pathA, pathB, schemaFor(variable.KindBool))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if witness != nil {
		t.Fatalf("expected UNSAT, got %v", witness)
	}
}

func TestCheckSatisfiableRespectsExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	pathA := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpLe, Value: 10.0}}}}
	pathB := []graph.PathStep{{Var: "x", Tests: []graph.PathTest{{Op: variable.OpGe, Value: 0.0}}}}

	_, err := CheckSatisfiable(ctx, pathA, pathB, schemaFor(variable.KindFloat))
	if err == nil {
		t.Fatal("expected ErrTimeout for already-expired deadline")
	}
}
