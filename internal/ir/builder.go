package ir

import (
	"fmt"
	"time"

	"github.com/sovereignctl/policyguard/internal/variable"
)

// variableNameFor derives a variable name from a condition's fields,
// following the fixed-mapping-then-fallback order of
// policy_ir_builder.py's _infer_variable_name.
func variableNameFor(c RawCondition) (string, bool) {
	switch c.Type {
	case "boolean_flag":
		if c.Parameter != "" {
			return c.Parameter, true
		}
	case "time_window":
		return "days_since_purchase", true
	case "amount_threshold":
		return "refund_amount", true
	case "product_category":
		return "product_category", true
	case "customer_tier":
		return "customer_tier", true
	case "geographic":
		return "region", true
	case "role_requirement":
		return "role", true
	}
	if c.Parameter != "" {
		return c.Parameter, true
	}
	if c.Target != "" {
		return fmt.Sprintf("%s_%s", c.Type, c.Target), true
	}
	return "", false
}

// kindFor derives a variable.Kind for a condition, following
// _infer_variable_type's explicit-type-then-value-inference order.
func kindFor(c RawCondition) variable.Kind {
	switch c.Type {
	case "boolean_flag":
		return variable.KindBool
	case "time_window", "role_requirement":
		return variable.KindInt
	case "amount_threshold":
		return variable.KindFloat
	case "product_category", "customer_tier", "geographic":
		return variable.KindEnum
	}
	if c.Value != nil {
		return variable.InferKind(c.Value)
	}
	return variable.KindEnum
}

// conditionToIR converts a raw condition to an IR condition, defaulting
// boolean flags without an explicit operator/value to "== true". Returns
// false if the condition carries no usable operator or value (per spec.md
// §4.2's "skip this condition" edge case).
func conditionToIR(c RawCondition, varName string) (Condition, bool) {
	op := c.Operator
	val := c.Value

	if c.Type == "boolean_flag" {
		if op == "" {
			op = "=="
		}
		if val == nil {
			val = true
		}
	}

	if op == "" || val == nil {
		return Condition{}, false
	}
	return Condition{Var: varName, Op: variable.Operator(op), Value: val}, true
}

func buildMetadata(m RawMetadata) RuleMetadata {
	domain := m.Domain
	if domain == "" {
		domain = "other"
	}
	priority := m.Priority
	if priority == "" {
		priority = "company"
	}
	eff := ""
	if m.EffectiveDate != nil {
		eff = m.EffectiveDate.Format("2006-01-02")
	}
	return RuleMetadata{
		Domain:            domain,
		Priority:          priority,
		Owner:             m.Owner,
		Source:            m.Source,
		EffectiveDate:     eff,
		RegulatoryLinkage: m.RegulatoryLinkage,
	}
}

// actionValueFor maps an Extractor action type to its IR action value,
// mirroring policy_ir_builder.py's _infer_action_value.
func actionValueFor(actionType string) string {
	switch actionType {
	case "required":
		return "full"
	case "fallback":
		return "partial"
	case "conditional":
		return "conditional"
	case "other":
		return "unknown"
	default:
		return actionType
	}
}

// Build transforms raw policy records into the policy IR: a variable
// schema, a list of conditional rules, and a list of invariant constraints.
//
// Variables are registered and their enum value sets accumulated in
// first-seen order across all records, matching the reference
// implementation's insertion-ordered dict semantics.
func Build(records []RawPolicyRecord, now func() time.Time) PolicyIR {
	if now == nil {
		now = time.Now
	}

	variables := map[string]variable.Schema{}
	var rules []ConditionalRule
	var constraints []Constraint
	var canonicalActions []CanonicalAction

	registerEnumValue := func(varName, val string) {
		s := variables[varName]
		for _, existing := range s.Values {
			if existing == val {
				return
			}
		}
		s.Values = append(s.Values, val)
		variables[varName] = s
	}

	for _, rec := range records {
		meta := buildMetadata(rec.Metadata)

		var irConditions []Condition
		for _, cond := range rec.Conditions {
			varName, ok := variableNameFor(cond)
			if !ok {
				continue
			}
			kind := kindFor(cond)

			if _, exists := variables[varName]; !exists {
				desc := cond.SourceText
				if desc == "" {
					desc = fmt.Sprintf("%s variable", cond.Type)
				}
				variables[varName] = variable.Schema{Type: kind, Description: desc}
			}

			if kind == variable.KindEnum {
				if s, ok := cond.Value.(string); ok {
					registerEnumValue(varName, s)
				}
				if cond.Target != "" {
					if tv, ok := cond.Value.(string); !ok || tv != cond.Target {
						registerEnumValue(varName, cond.Target)
					}
				}
			}

			if irCond, ok := conditionToIR(cond, varName); ok {
				irConditions = append(irConditions, irCond)
			}
		}

		for _, act := range rec.Actions {
			if act.Type == "prohibited" {
				constraints = append(constraints, Constraint{
					PolicyID:   fmt.Sprintf("C_%s_%s", rec.PolicyID, act.Action),
					Constraint: fmt.Sprintf("NOT(%s)", act.Action),
					Scope:      "always",
					Metadata:   meta,
				})
				continue
			}

			if act.Type == "discovered_pattern" {
				if rec.Discovery == nil || !rec.Discovery.HumanValidated {
					continue
				}
			}

			if len(irConditions) > 0 || len(act.Requires) > 0 {
				rules = append(rules, ConditionalRule{
					PolicyID:   rec.PolicyID,
					Conditions: irConditions,
					Action:     Action{Type: act.Action, Value: actionValueFor(act.Type)},
					Metadata:   meta,
				})
			}
		}

		if len(rec.CanonicalActions) > 0 {
			canonicalActions = append(canonicalActions, CanonicalAction{
				PolicyID:         rec.PolicyID,
				CanonicalActions: rec.CanonicalActions,
			})
		}
	}

	return PolicyIR{
		Variables:        variables,
		ConditionalRules: rules,
		Constraints:      constraints,
		CanonicalActions: canonicalActions,
		Metadata: Metadata{
			GeneratedOn: now().UTC().Format("2006-01-02"),
			Generator:   "policyguard-ir-builder-v1",
			Notes:       "auto-generated from validated policy records",
		},
	}
}
