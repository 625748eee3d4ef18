package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sovereignctl/policyguard/internal/audit"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestRecordAndQueryBySession(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	entry := audit.Entry{SessionID: "s1", Timestamp: "2026-01-01T00:00:00Z", Domain: "refunds", Intent: "refund_request", ComplianceScore: 0.97, FinalAction: "pass"}
	if err := idx.Record(ctx, "hash1", entry, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	refs, err := idx.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].EntryHash != "hash1" {
		t.Fatalf("expected one ref for session s1, got %+v", refs)
	}
}

func TestByActionFiltersCorrectly(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	idx.Record(ctx, "h1", audit.Entry{SessionID: "s1", Timestamp: "2026-01-01T00:00:00Z", FinalAction: "pass"}, 0)
	idx.Record(ctx, "h2", audit.Entry{SessionID: "s2", Timestamp: "2026-01-01T00:01:00Z", FinalAction: "escalate"}, 1)

	refs, err := idx.ByAction(ctx, "escalate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].EntryHash != "h2" {
		t.Fatalf("expected only h2 for action escalate, got %+v", refs)
	}
}

func TestByTimeRangeFiltersCorrectly(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	idx.Record(ctx, "h1", audit.Entry{SessionID: "s1", Timestamp: "2026-01-01T00:00:00Z"}, 0)
	idx.Record(ctx, "h2", audit.Entry{SessionID: "s1", Timestamp: "2026-03-01T00:00:00Z"}, 1)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	refs, err := idx.ByTimeRange(ctx, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 || refs[0].EntryHash != "h2" {
		t.Fatalf("expected only h2 in range, got %+v", refs)
	}
}

func TestResetClearsIndex(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	idx.Record(ctx, "h1", audit.Entry{SessionID: "s1", Timestamp: "2026-01-01T00:00:00Z"}, 0)

	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	refs, err := idx.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("expected empty index after reset, got %+v", refs)
	}
}
