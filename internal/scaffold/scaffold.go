// Package scaffold implements the During-Gen Injector (C8): it renders a
// retrieved rule set into deterministic, step-by-step natural-language
// instructions and assembles the final prompt the generator LLM receives.
//
// Grounded on _examples/original_source/Enforcement/duringgen.py
// (serialize_constraints, serialize_scaffold, build_injection_bundle,
// format_full_prompt) — field-for-field, including its exact wording.
package scaffold

import (
	"fmt"
	"sort"
	"strings"

	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/ir"
	"github.com/sovereignctl/policyguard/internal/priority"
	"github.com/sovereignctl/policyguard/internal/variable"
)

// priorityOrderText is the fixed guidance line describing the lattice,
// always present regardless of whether any dominance rule fired.
const priorityOrderText = "PRIORITY: regulatory > core_values > company > department > situational."

// InjectionBundle is everything format_full_prompt needs to build the
// final system/user prompt pair.
type InjectionBundle struct {
	SystemPromptAdditions string            `json:"system_prompt_additions"`
	ScaffoldSteps         []string          `json:"scaffold_steps"`
	PriorityGuidance      string            `json:"priority_guidance"`
	InvariantConstraints  []string          `json:"invariant_constraints"`
	GenerationParams      map[string]float64 `json:"generation_params"`
}

// SerializeConstraints renders constraints as a numbered invariant block.
// "NOT(x)" constraints become "NEVER x" (underscores turned to spaces);
// anything else becomes a generic "ALWAYS comply with" line.
func SerializeConstraints(constraints []ir.Constraint) string {
	if len(constraints) == 0 {
		return ""
	}
	lines := []string{"- INVARIANTS:"}
	for i, c := range constraints {
		text := c.Constraint
		if strings.HasPrefix(text, "NOT(") && strings.HasSuffix(text, ")") {
			inner := strings.ReplaceAll(text[4:len(text)-1], "_", " ")
			lines = append(lines, fmt.Sprintf("  %d) NEVER %s.", i+1, inner))
		} else {
			lines = append(lines, fmt.Sprintf("  %d) ALWAYS comply with: %s.", i+1, text))
		}
	}
	return strings.Join(lines, "\n")
}

// SerializeScaffold converts compiled paths into the ordered STEP-by-STEP
// instruction list: variables in decision-node order (any path variable
// absent from decision_nodes is appended, sorted, at the end), each
// followed by its conditional branches in policy-ID order, then any
// dominance notes, then a closing FINAL step.
func SerializeScaffold(paths []graph.CompiledPath, variables map[string]variable.Schema, decisionNodes []string, dominanceApplied []priority.DominanceRule) []string {
	if len(paths) == 0 {
		return nil
	}

	pathVars := map[string]bool{}
	for _, p := range paths {
		for _, step := range p.Path {
			pathVars[step.Var] = true
		}
	}

	var orderedVars []string
	seen := map[string]bool{}
	for _, v := range decisionNodes {
		if pathVars[v] {
			orderedVars = append(orderedVars, v)
			seen[v] = true
		}
	}
	var leftover []string
	for v := range pathVars {
		if !seen[v] {
			leftover = append(leftover, v)
		}
	}
	sort.Strings(leftover)
	orderedVars = append(orderedVars, leftover...)

	sortedPaths := append([]graph.CompiledPath(nil), paths...)
	sort.SliceStable(sortedPaths, func(i, j int) bool { return sortedPaths[i].PolicyID < sortedPaths[j].PolicyID })

	var steps []string
	stepNum := 1
	for _, v := range orderedVars {
		schema, hasSchema := variables[v]
		vtype := "unknown"
		if hasSchema {
			vtype = string(schema.Type)
		}

		switch vtype {
		case string(variable.KindBool):
			steps = append(steps, fmt.Sprintf("STEP %d: Check variable %s. If unknown, ask the user; DO NOT assume.", stepNum, v))
		case string(variable.KindEnum):
			valsStr := "unknown"
			if hasSchema && len(schema.Values) > 0 {
				valsStr = strings.Join(schema.Values, ", ")
			}
			steps = append(steps, fmt.Sprintf("STEP %d: Determine %s. Must be one of: %s.", stepNum, v, valsStr))
		default:
			steps = append(steps, fmt.Sprintf("STEP %d: Check %s.", stepNum, v))
		}
		stepNum++

		for _, p := range sortedPaths {
			for _, pathStep := range p.Path {
				if pathStep.Var != v {
					continue
				}
				for _, test := range pathStep.Tests {
					source := p.Metadata.Source
					eff := p.Metadata.EffectiveDate
					if eff == "" {
						eff = "N/A"
					}
					steps = append(steps, fmt.Sprintf(
						"  If %s %s %v THEN ACTION => %s (per %s, source: %s, eff_date: %s).",
						v, test.Op, test.Value, p.LeafAction, p.PolicyID, source, eff,
					))
				}
			}
		}
	}

	for _, dr := range dominanceApplied {
		steps = append(steps, fmt.Sprintf(
			"NOTE: When policies %v conflict, mode=%s, enforce=%s. %s",
			dr.WhenPoliciesFire, dr.Mode, dr.Enforce, dr.Notes,
		))
	}

	steps = append(steps, fmt.Sprintf("STEP %d: FINAL — State the action and cite the policy source.", stepNum))
	return steps
}

// BuildInjectionBundle runs the full during-gen pipeline for one
// enforcement context against its compiled bundle's variable schema and
// decision-node ordering.
func BuildInjectionBundle(ec pgcontext.EnforcementContext, variables map[string]variable.Schema, decisionNodes []string) InjectionBundle {
	constraintsBlock := SerializeConstraints(ec.ApplicableConstraints)
	scaffoldSteps := SerializeScaffold(ec.ApplicablePaths, variables, decisionNodes, ec.DominanceApplied)

	priorityGuidance := priorityOrderText
	for _, dr := range ec.DominanceApplied {
		priorityGuidance += fmt.Sprintf("\nEnforce %s when in conflict.", dr.Enforce)
	}

	var systemAdditions string
	if constraintsBlock != "" || priorityGuidance != "" {
		systemAdditions = "---BEGIN POLICY ENFORCEMENT---\n" +
			constraintsBlock + "\n" +
			"- " + priorityGuidance + "\n" +
			"---END POLICY ENFORCEMENT---"
	}

	invariants := make([]string, 0, len(ec.ApplicableConstraints))
	for _, c := range ec.ApplicableConstraints {
		invariants = append(invariants, c.Constraint)
	}

	return InjectionBundle{
		SystemPromptAdditions: systemAdditions,
		ScaffoldSteps:         scaffoldSteps,
		PriorityGuidance:      priorityGuidance,
		InvariantConstraints:  invariants,
		GenerationParams:      map[string]float64{"temperature": 0.0, "max_tokens": 2048},
	}
}

// Prompt is the final {system, user} pair handed to the generator LLM.
type Prompt struct {
	System string
	User   string
}

// FormatFullPrompt assembles the final prompt from a base system prompt,
// the user's query, and the rendered injection bundle.
func FormatFullPrompt(userQuery string, injection InjectionBundle, baseSystemPrompt string) Prompt {
	system := baseSystemPrompt
	if injection.SystemPromptAdditions != "" {
		if system != "" {
			system = system + "\n\n" + injection.SystemPromptAdditions
		} else {
			system = injection.SystemPromptAdditions
		}
	}

	user := userQuery
	if len(injection.ScaffoldSteps) > 0 {
		user = userQuery + "\n\nFollow the enforcement scaffold below:\n" + strings.Join(injection.ScaffoldSteps, "\n")
	}

	return Prompt{System: system, User: user}
}
