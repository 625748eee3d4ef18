package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sovereignctl/policyguard/internal/audit"
)

// Rebuild truncates idx's table and replays jsonlPath's audit log into it
// from scratch — the only recovery path this package offers. Treated as
// a normal maintenance operation, not an error path: a derived index is
// by definition reconstructible from its source of truth, so a caller
// finds the index missing or corrupt simply calls Rebuild rather than
// treating it as a fatal condition.
func Rebuild(ctx context.Context, idx *Index, jsonlPath string) (int, error) {
	if err := idx.Reset(ctx); err != nil {
		return 0, err
	}

	f, err := os.Open(jsonlPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: open audit log %q: %w", jsonlPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seq := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec audit.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A single malformed line doesn't invalidate the whole index —
			// the hash-chain verifier (internal/audit) is the tool of
			// record for chain integrity, not this lookup index.
			continue
		}
		if err := idx.Record(ctx, rec.EntryHash, rec.Entry, seq); err != nil {
			return seq, err
		}
		seq++
	}
	if err := scanner.Err(); err != nil {
		return seq, fmt.Errorf("store: scan audit log: %w", err)
	}
	return seq, nil
}
