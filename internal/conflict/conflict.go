// Package conflict implements the Conflict Detector (C4): pairwise
// satisfiability checking between every two compiled paths that disagree on
// their leaf action.
//
// Grounded on _examples/original_source/Validation/conflict_detector.py
// (detect_conflicts): only pairs of paths with different leaf actions are
// ever handed to the solver, since two paths agreeing on the outcome cannot
// conflict regardless of whether their conditions overlap.
package conflict

import (
	"context"
	"errors"
	"fmt"

	"github.com/sovereignctl/policyguard/internal/graph"
	"github.com/sovereignctl/policyguard/internal/solver"
)

// Conflict is one pair of policies whose compiled paths can be
// simultaneously true while prescribing different actions. Type is either
// "logical" (satisfiability was actually decided, Witness populated) or
// "unknown" (the solver timed out on this pair per §7's SolverTimeout
// error kind; Witness is nil and the pair still needs human review).
type Conflict struct {
	Type     string         `json:"type"`
	Policies [2]string      `json:"policies"`
	Actions  [2]string      `json:"actions"`
	Witness  solver.Witness `json:"witness,omitempty"`
	Metadata [2]interface{} `json:"metadata"`
}

// Report summarizes a full conflict-detection pass over one decision graph.
type Report struct {
	LogicalConflicts []Conflict `json:"logical_conflicts"`
	// UnknownConflicts holds every pair whose satisfiability check timed
	// out: conflict status could not be decided, so internal/priority
	// escalates them unconditionally rather than silently dropping them.
	UnknownConflicts []Conflict `json:"unknown_conflicts,omitempty"`
	NumPolicies      int        `json:"num_policies"`
	Engine           string     `json:"engine"`
	Deterministic    bool       `json:"deterministic"`
}

// Detect runs the O(n^2) pairwise check over dg's compiled paths. ctx bounds
// every individual pair's satisfiability check. Per §7's error-kind table, a
// timed-out pair is carved out of the general "compilation errors are
// fatal" rule: it is recorded as a "conflict unknown" entry and detection
// continues over the remaining pairs rather than aborting the whole pass.
// Any other solver error (a malformed test the IR builder should already
// have rejected) is still fatal.
func Detect(ctx context.Context, dg graph.DecisionGraph) (Report, error) {
	paths := dg.CompiledPaths
	var conflicts []Conflict
	var unknown []Conflict

	for i := 0; i < len(paths); i++ {
		for j := i + 1; j < len(paths); j++ {
			p1, p2 := paths[i], paths[j]
			if p1.LeafAction == p2.LeafAction {
				continue
			}

			witness, err := solver.CheckSatisfiable(ctx, p1.Path, p2.Path, dg.NodeSchema)
			if err != nil {
				if errors.Is(err, solver.ErrTimeout) {
					unknown = append(unknown, Conflict{
						Type:     "unknown",
						Policies: [2]string{p1.PolicyID, p2.PolicyID},
						Actions:  [2]string{p1.LeafAction, p2.LeafAction},
						Metadata: [2]interface{}{p1.Metadata, p2.Metadata},
					})
					continue
				}
				return Report{}, fmt.Errorf("conflict: policies %s/%s: %w", p1.PolicyID, p2.PolicyID, err)
			}
			if witness == nil {
				continue
			}

			conflicts = append(conflicts, Conflict{
				Type:     "logical",
				Policies: [2]string{p1.PolicyID, p2.PolicyID},
				Actions:  [2]string{p1.LeafAction, p2.LeafAction},
				Witness:  witness,
				Metadata: [2]interface{}{p1.Metadata, p2.Metadata},
			})
		}
	}

	return Report{
		LogicalConflicts: conflicts,
		UnknownConflicts: unknown,
		NumPolicies:      len(paths),
		Engine:           "cel",
		Deterministic:    len(unknown) == 0,
	}, nil
}

