package policyguard

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sovereignctl/policyguard/internal/audit"
	"github.com/sovereignctl/policyguard/internal/classify"
	"github.com/sovereignctl/policyguard/internal/score"
)

const sampleRecords = `[
  {
    "policy_id": "P1",
    "conditions": [{"type": "boolean_flag", "parameter": "has_receipt", "operator": "==", "source_text": "has a receipt"}],
    "actions": [{"type": "required", "action": "full_refund"}],
    "metadata": {"domain": "refunds", "priority": "company", "owner": "cs-team"}
  }
]`

type fakeClassifier struct {
	result classify.Result
}

func (f fakeClassifier) Classify(ctx context.Context, query string, domains []string) (classify.Result, error) {
	return f.result, nil
}

func TestValidateCompilesBundleFromRawRecords(t *testing.T) {
	result, err := Validate(context.Background(), []byte(sampleRecords), "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Bundle.ConditionalRules) != 1 {
		t.Fatalf("expected 1 compiled rule, got %d", len(result.Bundle.ConditionalRules))
	}
	if len(result.IntegrityWarns) != 0 {
		t.Fatalf("expected no integrity warnings, got %v", result.IntegrityWarns)
	}
}

func TestValidateRejectsMalformedRecords(t *testing.T) {
	_, err := Validate(context.Background(), []byte(`[{"conditions": []}]`), "2026-01-01T00:00:00Z")
	if err == nil {
		t.Fatal("expected validation error for record missing policy_id")
	}
}

func TestEngineEnforceWithSuppliedResponseSkipsGeneration(t *testing.T) {
	result, err := Validate(context.Background(), []byte(sampleRecords), "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger := audit.NewLogger(logPath, nil)

	engine := NewEngine(result.Bundle, fakeClassifier{result: classify.Result{Domain: "refunds", Intent: "refund_request", Confidence: 0.9}}, nil, logger)
	engine.SkipJudge = true
	engine.SkipSMT = true

	out, err := engine.Enforce(context.Background(), EnforceRequest{
		Query:    "Can I get a refund, I have a receipt?",
		Response: "Yes, since you have a receipt, you qualify for a full refund.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Context.Domain != "refunds" {
		t.Fatalf("expected domain refunds, got %s", out.Context.Domain)
	}
	if out.Decision.Score <= 0 {
		t.Fatalf("expected a positive compliance score, got %f", out.Decision.Score)
	}

	verifyResult, err := audit.VerifyFile(logPath, nil)
	if err != nil {
		t.Fatalf("unexpected error verifying audit log: %v", err)
	}
	if !verifyResult.Valid || verifyResult.EntryCount != 1 {
		t.Fatalf("expected one valid audit entry, got %+v", verifyResult)
	}
}

func TestEngineEnforceUnknownDomainShortCircuitsWithoutGeneration(t *testing.T) {
	result, err := Validate(context.Background(), []byte(sampleRecords), "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewEngine(result.Bundle, fakeClassifier{result: classify.Unknown}, nil, nil)

	out, err := engine.Enforce(context.Background(), EnforceRequest{Query: "What is the weather forecast for tomorrow?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Decision.Action != score.ActionPass {
		t.Fatalf("expected action pass, got %s", out.Decision.Action)
	}
	if out.Decision.Score != 1.0 {
		t.Fatalf("expected score 1.0, got %f", out.Decision.Score)
	}
	if len(out.Decision.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", out.Decision.Violations)
	}
	if out.Response != "" {
		t.Fatalf("expected no response to be generated, got %q", out.Response)
	}
}

func TestEngineEnforceFailsWithoutResponseOrTransportForKnownDomain(t *testing.T) {
	result, err := Validate(context.Background(), []byte(sampleRecords), "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine := NewEngine(result.Bundle, fakeClassifier{result: classify.Result{Domain: "refunds", Intent: "refund_request", Confidence: 0.9}}, nil, nil)
	if _, err := engine.Enforce(context.Background(), EnforceRequest{Query: "Can I get a refund?"}); err == nil {
		t.Fatal("expected an error when no response and no transport are available")
	}
}
