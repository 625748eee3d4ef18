package solver

import (
	"fmt"
	"math"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// bound is one side of a half-open or closed interval. set is false when
// the bound is unconstrained (-inf or +inf).
type bound struct {
	val  float64
	set  bool
	incl bool
}

func tightenLower(b bound, v float64, incl bool) bound {
	if !b.set || v > b.val || (v == b.val && !incl) {
		return bound{val: v, set: true, incl: incl}
	}
	return b
}

func tightenUpper(b bound, v float64, incl bool) bound {
	if !b.set || v < b.val || (v == b.val && !incl) {
		return bound{val: v, set: true, incl: incl}
	}
	return b
}

// satisfyNumeric intersects every test's half-open constraint into a single
// interval, then searches it for a value avoiding every "!=" exclusion.
// The chosen witness is finally re-verified by compiling and evaluating the
// real CEL conjunction, so CEL — not just this package's arithmetic — has
// the final word on satisfiability.
func satisfyNumeric(name string, kind variable.Kind, tests []graph.PathTest) (interface{}, bool, error) {
	var lo, hi bound
	var excluded []float64

	for _, t := range tests {
		v, ok := variable.AsFloat64(t.Value)
		if !ok {
			return nil, false, fmt.Errorf("non-numeric value %v for variable %q", t.Value, name)
		}
		switch t.Op {
		case variable.OpEq:
			lo = tightenLower(lo, v, true)
			hi = tightenUpper(hi, v, true)
		case variable.OpNe:
			excluded = append(excluded, v)
		case variable.OpLe:
			hi = tightenUpper(hi, v, true)
		case variable.OpLt:
			hi = tightenUpper(hi, v, false)
		case variable.OpGe:
			lo = tightenLower(lo, v, true)
		case variable.OpGt:
			lo = tightenLower(lo, v, false)
		default:
			return nil, false, fmt.Errorf("unsupported operator %q", t.Op)
		}
	}

	if lo.set && hi.set {
		if lo.val > hi.val {
			return nil, false, nil
		}
		if lo.val == hi.val && (!lo.incl || !hi.incl) {
			return nil, false, nil
		}
	}

	witness, ok := pickWitness(kind, lo, hi, excluded)
	if !ok {
		return nil, false, nil
	}

	expr, err := conjunctionExpr(name, kind, tests)
	if err != nil {
		return nil, false, err
	}
	if expr != "" {
		prg, err := compile(name, kind, expr)
		if err != nil {
			return nil, false, err
		}
		var celValue interface{} = witness
		if kind == variable.KindInt {
			celValue = int64(witness)
		}
		verified, err := evalBool(prg, name, celValue)
		if err != nil {
			return nil, false, err
		}
		if !verified {
			return nil, false, nil
		}
	}

	if kind == variable.KindInt {
		return int64(witness), true, nil
	}
	return witness, true, nil
}

// pickWitness finds one value within [lo, hi] (respecting inclusivity and
// exclusions), stepping by whole units for int variables and by a small
// epsilon for float ones. Bounded to a fixed number of attempts: a search
// that exhausts them returns ok=false, so the variable is reported
// unsatisfiable.
func pickWitness(kind variable.Kind, lo, hi bound, excluded []float64) (float64, bool) {
	step := 1.0
	if kind == variable.KindFloat {
		step = 1e-6
	}

	start := 0.0
	switch {
	case lo.set && hi.set:
		start = lo.val
		if !lo.incl {
			start += step
		}
	case lo.set:
		start = lo.val
		if !lo.incl {
			start += step
		}
	case hi.set:
		// Start far enough below hi that the upward search can step past
		// every exclusion before it reaches hi.
		start = hi.val - step*float64(len(excluded))
		if !hi.incl {
			start -= step
		}
	}

	isExcluded := func(v float64) bool {
		for _, e := range excluded {
			if math.Abs(v-e) < step/2 {
				return true
			}
		}
		return false
	}

	const maxAttempts = 4096
	candidate := start
	for i := 0; i < maxAttempts; i++ {
		if hi.set {
			if candidate > hi.val || (candidate == hi.val && !hi.incl) {
				return 0, false
			}
		}
		if lo.set {
			if candidate < lo.val || (candidate == lo.val && !lo.incl) {
				candidate += step
				continue
			}
		}
		if !isExcluded(candidate) {
			return candidate, true
		}
		candidate += step
	}
	return 0, false
}
