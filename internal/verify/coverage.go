// Grounded on _examples/original_source/Enforcement/scoring.py's
// compute_coverage.
package verify

import (
	"strings"

	pgcontext "github.com/sovereignctl/policyguard/internal/context"
)

// CoverageResult measures what fraction of the decision nodes a response
// needed to address it actually did.
type CoverageResult struct {
	Score         float64  `json:"score"`
	NodesRequired []string `json:"nodes_required"`
	NodesCovered  []string `json:"nodes_covered"`
}

// ComputeCoverage reports, for every decision variable referenced by the
// enforcement context's applicable paths, whether responseText mentions it
// (either its literal name or its underscore-to-space readable form). A
// response that addresses every required node scores its raw mention
// fraction; a response that misses any of them is further penalized 20%,
// matching scoring.py's incomplete-coverage discount.
func ComputeCoverage(ec pgcontext.EnforcementContext, responseText string) CoverageResult {
	var nodesRequired []string
	seen := map[string]bool{}
	for _, path := range ec.ApplicablePaths {
		for _, step := range path.Path {
			if !seen[step.Var] {
				seen[step.Var] = true
				nodesRequired = append(nodesRequired, step.Var)
			}
		}
	}

	if len(nodesRequired) == 0 {
		return CoverageResult{Score: 1.0, NodesRequired: nil, NodesCovered: nil}
	}

	lower := strings.ToLower(responseText)
	var nodesCovered []string
	for _, node := range nodesRequired {
		readable := strings.ReplaceAll(node, "_", " ")
		if strings.Contains(lower, readable) || strings.Contains(lower, node) {
			nodesCovered = append(nodesCovered, node)
		}
	}

	baseScore := float64(len(nodesCovered)) / float64(len(nodesRequired))
	score := baseScore
	if len(nodesCovered) < len(nodesRequired) {
		score = baseScore * 0.8
	}

	return CoverageResult{Score: score, NodesRequired: nodesRequired, NodesCovered: nodesCovered}
}
