// Package classify implements the external query classifier collaborator
// and its cache. The classifier itself is out of scope (an LLM call behind
// internal/llmtransport); this package owns the neutral-fallback contract
// and the cache that keeps repeated identical queries off the transport.
//
// Grounded on _examples/original_source/Enforcement/pregen.py's
// classify_query: LLM-only classification, ("unknown","unknown",0.0) when
// no classifier is configured or the call fails.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sovereignctl/policyguard/internal/llmtransport"
)

// Result is a query's classification.
type Result struct {
	Domain     string  `json:"domain"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Unknown is the neutral fallback returned whenever no classifier is wired
// or the classifier call fails — the pipeline then short-circuits to a pass
// with score 1 and zero violations, per the pre-gen context contract.
var Unknown = Result{Domain: "unknown", Intent: "unknown", Confidence: 0.0}

// Classifier classifies a free-text query against a set of known domains.
type Classifier interface {
	Classify(ctx context.Context, query string, domains []string) (Result, error)
}

// LLMClassifier calls the classifier backend via llmtransport.InvokeJSON.
type LLMClassifier struct {
	Transport *llmtransport.Client
}

func (c *LLMClassifier) Classify(ctx context.Context, query string, domains []string) (Result, error) {
	if c == nil || c.Transport == nil {
		return Unknown, nil
	}

	prompt := buildPrompt(query, domains)
	var out Result
	if err := c.Transport.InvokeJSON(ctx, "classifier", prompt, &out); err != nil {
		return Unknown, nil //nolint:nilerr // transport failure is this layer's documented neutral fallback
	}
	if out.Domain == "" {
		out.Domain = "unknown"
	}
	if out.Intent == "" {
		out.Intent = "unknown"
	}
	return out, nil
}

func buildPrompt(query string, domains []string) string {
	var b strings.Builder
	b.WriteString("Classify this user query into one of these domains: [")
	b.WriteString(strings.Join(domains, ", "))
	b.WriteString("].\nIntents: refund_request, policy_inquiry, complaint, other.\nQuery: ")
	b.WriteString(query)
	b.WriteString("\nReturn JSON: {\"domain\": \"...\", \"intent\": \"...\", \"confidence\": 0.0-1.0}\n")
	b.WriteString("Use semantic understanding to handle synonyms and paraphrasing.")
	return b.String()
}

// QueryKey returns the SHA-256 hex digest of a normalized query, the cache
// key every Cache implementation indexes on.
func QueryKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
