// Package ir implements the IR Builder (C2): it turns raw, schema-validated
// policy records into the typed intermediate representation consumed by the
// decision-graph compiler.
//
// Grounded on _examples/original_source/Validation/policy_ir_builder.py
// (variable inference, enum accumulation, constraint/rule emission) and on
// core/pkg/compliance/compiler/compiler.go for the surrounding Go idiom
// (struct-building, %w error wrapping, log/slog diagnostics).
package ir

import (
	"time"

	"github.com/sovereignctl/policyguard/internal/variable"
)

// RawCondition is one condition clause of a raw policy record, as produced
// by an upstream extraction pipeline (out of scope for this module).
type RawCondition struct {
	Type       string      `json:"type"`
	Parameter  string      `json:"parameter,omitempty"`
	Target     string      `json:"target,omitempty"`
	Operator   string      `json:"operator,omitempty"`
	Value      interface{} `json:"value,omitempty"`
	SourceText string      `json:"source_text,omitempty"`
}

// RawAction is one action clause of a raw policy record.
type RawAction struct {
	Type     string   `json:"type"` // prohibited, discovered_pattern, required, fallback, conditional, other
	Action   string   `json:"action"`
	Requires []string `json:"requires,omitempty"`
}

// RawMetadata carries provenance and governance metadata for a policy.
type RawMetadata struct {
	Domain            string     `json:"domain,omitempty"`
	Priority          string     `json:"priority,omitempty"`
	Owner             string     `json:"owner,omitempty"`
	Source            string     `json:"source,omitempty"`
	EffectiveDate     *time.Time `json:"effective_date,omitempty"`
	RegulatoryLinkage []string   `json:"regulatory_linkage,omitempty"`
}

// DiscoveryInfo describes a discovered (rather than explicitly authored)
// pattern's validation state.
type DiscoveryInfo struct {
	HumanValidated bool `json:"human_validated"`
}

// RawPolicyRecord is the wire shape the IR Builder consumes.
type RawPolicyRecord struct {
	PolicyID   string         `json:"policy_id"`
	Conditions []RawCondition `json:"conditions,omitempty"`
	Actions    []RawAction    `json:"actions,omitempty"`
	Metadata   RawMetadata    `json:"metadata,omitempty"`
	Discovery  *DiscoveryInfo `json:"discovery,omitempty"`
	// CanonicalActions, when present, flows straight through to the
	// compiled bundle's canonical_action_map (schema-discovery output the
	// IR builder itself never interprets).
	CanonicalActions []string `json:"canonical_actions,omitempty"`
}

// RuleMetadata is the governance metadata attached to every emitted rule
// and constraint.
type RuleMetadata struct {
	Domain            string   `json:"domain"`
	Priority          string   `json:"priority"`
	Owner             string   `json:"owner,omitempty"`
	Source            string   `json:"source"`
	EffectiveDate     string   `json:"eff_date,omitempty"` // ISO 8601 date, empty if unbounded
	RegulatoryLinkage []string `json:"regulatory_linkage,omitempty"`
}

// Condition is one IR-level {var, op, value} triple.
type Condition = variable.Test

// Action is a normalized {type, value} action.
type Action struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// ConditionalRule is one emitted rule: a conjunction of conditions guarding
// a single action.
type ConditionalRule struct {
	PolicyID   string       `json:"policy_id"`
	Conditions []Condition  `json:"conditions"`
	Action     Action       `json:"action"`
	Metadata   RuleMetadata `json:"metadata"`
}

// Constraint is an unconditional invariant; Build emits one "NOT(x)"
// constraint per prohibited action.
type Constraint struct {
	PolicyID   string       `json:"policy_id"`
	Constraint string       `json:"constraint"`
	Scope      string       `json:"scope"` // "always" or a domain name
	Metadata   RuleMetadata `json:"metadata"`
}

// CanonicalAction is schema-discovery output carried through unmodified.
type CanonicalAction struct {
	PolicyID         string   `json:"policy_id"`
	CanonicalActions []string `json:"canonical_actions"`
}

// Metadata describes the IR document itself.
type Metadata struct {
	GeneratedOn string `json:"generated_on"`
	Generator   string `json:"generator"`
	Notes       string `json:"notes,omitempty"`
}

// PolicyIR is the complete intermediate representation: a schema of typed
// variables plus the rules and constraints derived from raw records.
type PolicyIR struct {
	Variables        map[string]variable.Schema `json:"variables"`
	ConditionalRules []ConditionalRule          `json:"conditional_rules"`
	Constraints      []Constraint               `json:"constraints"`
	CanonicalActions []CanonicalAction          `json:"canonical_action_map,omitempty"`
	Metadata         Metadata                   `json:"ir_metadata"`
}
