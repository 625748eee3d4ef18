// Package store implements a derived SQLite index (A4) over the audit
// hash chain: fast lookup of audit entries by session, final action, or
// timestamp range without a linear JSONL scan. It is strictly a derived
// index — the JSONL log is the source of truth — so a corrupt or missing
// index file is never a fatal error, only a reason to rebuild.
//
// Grounded on core/pkg/store/receipt_store_sqlite.go's SQLiteReceiptStore
// (migrate-on-open, parameterized INSERT/SELECT, modernc.org/sqlite as the
// pure-Go driver requiring no cgo toolchain).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sovereignctl/policyguard/internal/audit"
)

// Index is a SQLite-backed derived index over audit log entries.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures its
// schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		entry_hash TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		domain TEXT,
		intent TEXT,
		compliance_score REAL,
		final_action TEXT,
		seq INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_entries(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(final_action);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
	`
	_, err := idx.db.ExecContext(context.Background(), schema)
	return err
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Reset drops and recreates the index's tables. Rebuild calls it before
// every replay, since the JSONL log remains authoritative and the index can
// always be regenerated from it.
func (idx *Index) Reset(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, `DROP TABLE IF EXISTS audit_entries`); err != nil {
		return fmt.Errorf("store: reset: %w", err)
	}
	return idx.migrate()
}

// Record inserts or replaces one audit entry's index row.
func (idx *Index) Record(ctx context.Context, entryHash string, entry audit.Entry, seq int) error {
	const query = `
	INSERT INTO audit_entries (entry_hash, session_id, timestamp, domain, intent, compliance_score, final_action, seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(entry_hash) DO UPDATE SET
		session_id=excluded.session_id, timestamp=excluded.timestamp, domain=excluded.domain,
		intent=excluded.intent, compliance_score=excluded.compliance_score,
		final_action=excluded.final_action, seq=excluded.seq`
	_, err := idx.db.ExecContext(ctx, query,
		entryHash, entry.SessionID, entry.Timestamp, entry.Domain, entry.Intent,
		entry.ComplianceScore, string(entry.FinalAction), seq)
	if err != nil {
		return fmt.Errorf("store: record entry: %w", err)
	}
	return nil
}

// EntryRef is a lightweight row returned by query methods — enough to
// locate the full entry in the JSONL log (by sequence number) without
// duplicating its content in the index.
type EntryRef struct {
	EntryHash string
	SessionID string
	Timestamp string
	Domain    string
	Intent    string
	Score     float64
	Action    string
	Seq       int
}

// BySession returns every indexed entry for sessionID, oldest first.
func (idx *Index) BySession(ctx context.Context, sessionID string) ([]EntryRef, error) {
	return idx.query(ctx, `SELECT entry_hash, session_id, timestamp, domain, intent, compliance_score, final_action, seq
		FROM audit_entries WHERE session_id = ? ORDER BY seq ASC`, sessionID)
}

// ByAction returns every indexed entry that resolved to action.
func (idx *Index) ByAction(ctx context.Context, action string) ([]EntryRef, error) {
	return idx.query(ctx, `SELECT entry_hash, session_id, timestamp, domain, intent, compliance_score, final_action, seq
		FROM audit_entries WHERE final_action = ? ORDER BY seq ASC`, action)
}

// ByTimeRange returns every indexed entry with a timestamp in [from, to]
// (RFC 3339 strings, matching the audit entry's own timestamp format so
// the comparison can be done lexicographically by SQLite).
func (idx *Index) ByTimeRange(ctx context.Context, from, to time.Time) ([]EntryRef, error) {
	return idx.query(ctx, `SELECT entry_hash, session_id, timestamp, domain, intent, compliance_score, final_action, seq
		FROM audit_entries WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp ASC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

func (idx *Index) query(ctx context.Context, query string, args ...interface{}) ([]EntryRef, error) {
	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var refs []EntryRef
	for rows.Next() {
		var ref EntryRef
		if err := rows.Scan(&ref.EntryHash, &ref.SessionID, &ref.Timestamp, &ref.Domain, &ref.Intent, &ref.Score, &ref.Action, &ref.Seq); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
