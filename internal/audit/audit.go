// Package audit implements the Audit Log (C11): an append-only,
// hash-chained JSONL log of every enforcement decision, with optional
// per-entry Ed25519 signing.
//
// The hash-chain mechanics (genesis sentinel, content-hash-becomes-next-
// prev-hash, full-chain Verify by replay) are grounded on
// core/pkg/ledger/ledger.go's Ledger. The entry field shape and the
// scaffold/response hashing are grounded on
// _examples/original_source/Enforcement/audit.py's AuditEntry and
// build_audit_entry.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sovereignctl/policyguard/internal/canonicalize"
	pgcontext "github.com/sovereignctl/policyguard/internal/context"
	"github.com/sovereignctl/policyguard/internal/score"
	"github.com/sovereignctl/policyguard/internal/verify"
)

// Genesis is the sentinel previous-hash value for the first entry in a
// chain, matching ledger.go's "genesis".
const Genesis = "genesis"

// Entry is one audit record: everything needed to reconstruct why a
// response received its final action, without retaining the raw policy
// rules or full response body inline (those are hashed, not embedded, to
// keep the log itself free of governed content).
type Entry struct {
	SessionID          string         `json:"session_id"`
	Timestamp          string         `json:"timestamp"`
	Query              string         `json:"query"`
	Domain             string         `json:"domain"`
	Intent             string         `json:"intent"`
	RetrievedPolicyIDs []string       `json:"retrieved_policy_ids"`
	ScaffoldHash       string         `json:"scaffold_hash"`
	LLMResponseHash    string         `json:"llm_response_hash"`
	PostGenReport      *verify.Report `json:"postgen_report,omitempty"`
	ComplianceScore    float64        `json:"compliance_score"`
	FinalAction        score.Action   `json:"final_action"`
	OwnersNotified     []string       `json:"owners_notified"`
	DurationMS         float64        `json:"duration_ms"`
}

// hashHex is a small convenience over sha256+hex, matching audit.py's
// repeated hashlib.sha256(...).hexdigest() calls.
func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// BuildEntry constructs an Entry from one enforcement pipeline run. report
// may be nil (the regex/SMT/judge/coverage pipeline can be skipped ahead
// of generation, e.g. for a dry validate-only call), in which case
// PostGenReport is simply omitted from the entry.
//
// ScaffoldHash is the SHA-256 of the applicable paths' step variable names,
// in path order, joined with "|"; the rendered scaffold text itself is not
// hashed.
func BuildEntry(ec pgcontext.EnforcementContext, report *verify.Report, decision score.Decision, durationMS float64) Entry {
	var scaffoldParts []string
	for _, path := range ec.ApplicablePaths {
		for _, step := range path.Path {
			scaffoldParts = append(scaffoldParts, step.Var)
		}
	}
	scaffoldHash := hashHex(strings.Join(scaffoldParts, "|"))
	responseHash := hashHex(decision.LLMResponse)

	var policyIDs []string
	for _, r := range ec.ApplicableRules {
		policyIDs = append(policyIDs, r.PolicyID)
	}

	var ownersNotified []string
	if decision.Action == score.ActionEscalate {
		ownersNotified = ec.EscalationContacts
	}

	return Entry{
		SessionID:          ec.SessionID,
		Timestamp:          ec.Timestamp,
		Query:              ec.Query,
		Domain:             ec.Domain,
		Intent:             ec.Intent,
		RetrievedPolicyIDs: policyIDs,
		ScaffoldHash:       scaffoldHash,
		LLMResponseHash:    responseHash,
		PostGenReport:      report,
		ComplianceScore:    decision.Score,
		FinalAction:        decision.Action,
		OwnersNotified:     ownersNotified,
		DurationMS:         durationMS,
	}
}

// Record is one persisted, hash-chained audit log line.
type Record struct {
	EntryHash string `json:"entry_hash"`
	PrevHash  string `json:"prev_hash"`
	Entry
	Signature string `json:"signature,omitempty"`
}

// entryHash computes the content hash sha256(prevHash + canonical_entry_json),
// where the canonical form is the RFC 8785 (JCS) encoding of entry produced
// by internal/canonicalize, so the hash does not depend on struct field order.
func entryHash(prevHash string, entry Entry) (string, error) {
	raw, err := canonicalize.JCS(entry)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(append([]byte(prevHash), raw...))
	return hex.EncodeToString(sum[:]), nil
}
