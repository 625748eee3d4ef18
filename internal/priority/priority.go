// Package priority implements the Priority Resolver (C5): it resolves every
// detected conflict against a fixed priority lattice, recording a
// deterministic dominance rule for differently-ranked pairs and escalating
// same-rank pairs (and every semantic conflict) to human review.
//
// Grounded on _examples/original_source/Validation/resolution.py
// (_normalize_priority, _action_relation, resolve_conflicts).
package priority

import (
	"sort"
	"strings"

	"github.com/sovereignctl/policyguard/internal/conflict"
	"github.com/sovereignctl/policyguard/internal/ir"
)

// Level is a named rung of the priority lattice, lowest rank wins.
type Level string

const (
	LevelRegulatory  Level = "regulatory"
	LevelCoreValues  Level = "core_values"
	LevelCompany     Level = "company"
	LevelDepartment  Level = "department"
	LevelSituational Level = "situational"
)

// Lattice ranks each level; a lower rank dominates a higher one.
var Lattice = map[Level]int{
	LevelRegulatory:  1,
	LevelCoreValues:  2,
	LevelCompany:     3,
	LevelDepartment:  4,
	LevelSituational: 5,
}

var priorityAliases = map[string]Level{
	"legal": LevelRegulatory, "law": LevelRegulatory, "reg": LevelRegulatory,
	"values": LevelCoreValues, "ethics": LevelCoreValues, "privacy": LevelCoreValues, "safety": LevelCoreValues,
	"dept": LevelDepartment, "team": LevelDepartment,
	"promo": LevelSituational, "temporary": LevelSituational,
}

// NormalizePriority maps a rule's governance metadata onto a canonical
// lattice level. A non-empty regulatory linkage always wins outright,
// matching resolution.py's "regulatory_linkage implies regulatory" rule.
func NormalizePriority(meta ir.RuleMetadata) Level {
	if len(meta.RegulatoryLinkage) > 0 {
		return LevelRegulatory
	}
	p := strings.ToLower(strings.TrimSpace(meta.Priority))
	if p == "" {
		p = string(LevelCompany)
	}
	if _, ok := Lattice[Level(p)]; ok {
		return Level(p)
	}
	if alias, ok := priorityAliases[p]; ok {
		return alias
	}
	return LevelCompany
}

func rank(meta ir.RuleMetadata) int { return Lattice[NormalizePriority(meta)] }

func ownerOf(meta ir.RuleMetadata) string {
	if meta.Owner == "" {
		return "unknown_owner"
	}
	return meta.Owner
}

// ActionRelation is how two conflicting actions should be combined once one
// of them is chosen to dominate.
type ActionRelation string

const (
	RelationCompose  ActionRelation = "compose"
	RelationOverride ActionRelation = "override"
)

// actionRelation mirrors resolution.py's _action_relation: an approval
// paired with a refund composes (the approval gates the refund); any other
// pairing is a straight override.
func actionRelation(a1, a2 string) ActionRelation {
	if (strings.Contains(a1, "approval") && strings.Contains(a2, "refund")) ||
		(strings.Contains(a2, "approval") && strings.Contains(a1, "refund")) {
		return RelationCompose
	}
	return RelationOverride
}

// AutoResolution is a logical conflict resolved deterministically by rank.
type AutoResolution struct {
	Policies       [2]string      `json:"policies"`
	Winner         string         `json:"winner"`
	Loser          string         `json:"loser"`
	WinnerPriority Level          `json:"winner_priority"`
	LoserPriority  Level          `json:"loser_priority"`
	ActionRelation ActionRelation `json:"action_relation"`
	Rationale      string         `json:"rationale"`
	Evidence       map[string]interface{} `json:"evidence,omitempty"`
}

// Escalation is a conflict that could not be auto-resolved: same-rank
// logical conflicts, and every semantic conflict (never produced by this
// module's own conflict detector, but accepted here for pipelines that feed
// in externally-sourced semantic conflicts).
type Escalation struct {
	ConflictType    string                 `json:"conflict_type"`
	Policies        [2]string              `json:"policies"`
	Actions         [2]string              `json:"actions"`
	Priority        string                 `json:"priority"`
	OwnersToNotify  []string               `json:"owners_to_notify"`
	Evidence        map[string]interface{} `json:"evidence,omitempty"`
	RecommendedNext string                 `json:"recommended_next_step"`
}

// DominanceRule is a reusable "when these two policies both fire, then
// enforce this one" directive, deduplicated by policy pair + winner + mode.
type DominanceRule struct {
	WhenPoliciesFire [2]string `json:"when_policies_fire"`
	Mode             ActionRelation `json:"mode"`
	Enforce          string         `json:"enforce"`
	Notes            string         `json:"notes"`
}

// Plan is the full resolution output for one conflict report.
type Plan struct {
	AutoResolutions []AutoResolution `json:"auto_resolutions"`
	Escalations     []Escalation     `json:"escalations"`
	DominanceRules  []DominanceRule  `json:"dominance_rules"`
}

// SemanticConflict is a conflict sourced outside this module's own detector
// (e.g. an LLM-assisted semantic pass); it always escalates.
type SemanticConflict struct {
	Policies [2]string
	Actions  [2]string
	Note     string
}

// Resolve applies the priority lattice to every logical conflict in report,
// plus any externally supplied semantic conflicts, against metaByPolicy (the
// governance metadata keyed by policy ID, typically sourced from a compiled
// decision graph's paths).
func Resolve(report conflict.Report, semantic []SemanticConflict, metaByPolicy map[string]ir.RuleMetadata) Plan {
	var plan Plan
	type dominanceKey struct {
		pair   [2]string
		winner string
		rel    ActionRelation
	}
	seen := map[dominanceKey]bool{}

	resolveLogical := func(policies, actions [2]string, meta1, meta2 ir.RuleMetadata, evidence map[string]interface{}) {
		pr1, pr2 := rank(meta1), rank(meta2)
		rel := actionRelation(actions[0], actions[1])

		if pr1 != pr2 {
			winnerIdx := 0
			if pr2 < pr1 {
				winnerIdx = 1
			}
			loserIdx := 1 - winnerIdx
			winMeta, loseMeta := meta1, meta2
			if winnerIdx == 1 {
				winMeta, loseMeta = meta2, meta1
			}

			plan.AutoResolutions = append(plan.AutoResolutions, AutoResolution{
				Policies:       policies,
				Winner:         policies[winnerIdx],
				Loser:          policies[loserIdx],
				WinnerPriority: NormalizePriority(winMeta),
				LoserPriority:  NormalizePriority(loseMeta),
				ActionRelation: rel,
				Rationale:      "priority_lattice",
				Evidence:       evidence,
			})

			pairSorted := sortedPair(policies)
			key := dominanceKey{pair: pairSorted, winner: policies[winnerIdx], rel: rel}
			if !seen[key] {
				seen[key] = true
				notes := "override: winner action replaces loser action"
				if rel == RelationCompose {
					notes = "compose: treat approval as gating step before refund"
				}
				plan.DominanceRules = append(plan.DominanceRules, DominanceRule{
					WhenPoliciesFire: pairSorted,
					Mode:             rel,
					Enforce:          policies[winnerIdx],
					Notes:            notes,
				})
			}
			return
		}

		owners := sortedOwners(ownerOf(meta1), ownerOf(meta2))
		plan.Escalations = append(plan.Escalations, Escalation{
			ConflictType:    "logical",
			Policies:        policies,
			Actions:         actions,
			Priority:        string(NormalizePriority(meta1)),
			OwnersToNotify:  owners,
			Evidence:        evidence,
			RecommendedNext: "human_review",
		})
	}

	for _, c := range report.LogicalConflicts {
		meta1, _ := metaFor(c.Metadata[0], metaByPolicy, c.Policies[0])
		meta2, _ := metaFor(c.Metadata[1], metaByPolicy, c.Policies[1])
		evidence := map[string]interface{}{}
		if c.Witness != nil {
			evidence["witness"] = c.Witness
		}
		resolveLogical(c.Policies, c.Actions, meta1, meta2, evidence)
	}

	for _, c := range report.UnknownConflicts {
		meta1, _ := metaFor(c.Metadata[0], metaByPolicy, c.Policies[0])
		meta2, _ := metaFor(c.Metadata[1], metaByPolicy, c.Policies[1])
		owners := sortedOwners(ownerOf(meta1), ownerOf(meta2))
		plan.Escalations = append(plan.Escalations, Escalation{
			ConflictType:    "unknown",
			Policies:        c.Policies,
			Actions:         c.Actions,
			Priority:        string(NormalizePriority(meta1)) + "|" + string(NormalizePriority(meta2)),
			OwnersToNotify:  owners,
			RecommendedNext: "human_review",
		})
	}

	for _, sc := range semantic {
		meta1 := metaByPolicy[sc.Policies[0]]
		meta2 := metaByPolicy[sc.Policies[1]]
		evidence := map[string]interface{}{}
		if sc.Note != "" {
			evidence["note"] = sc.Note
		}
		owners := sortedOwners(ownerOf(meta1), ownerOf(meta2))
		plan.Escalations = append(plan.Escalations, Escalation{
			ConflictType:    "semantic",
			Policies:        sc.Policies,
			Actions:         sc.Actions,
			Priority:        string(NormalizePriority(meta1)) + "|" + string(NormalizePriority(meta2)),
			OwnersToNotify:  owners,
			Evidence:        evidence,
			RecommendedNext: "llm_validation_or_human_review",
		})
	}

	return plan
}

func metaFor(raw interface{}, fallback map[string]ir.RuleMetadata, policyID string) (ir.RuleMetadata, bool) {
	if m, ok := raw.(ir.RuleMetadata); ok {
		return m, true
	}
	return fallback[policyID], false
}

func sortedPair(p [2]string) [2]string {
	if p[0] <= p[1] {
		return p
	}
	return [2]string{p[1], p[0]}
}

func sortedOwners(a, b string) []string {
	owners := map[string]bool{a: true, b: true}
	out := make([]string, 0, len(owners))
	for o := range owners {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
