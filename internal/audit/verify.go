package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult is the outcome of replaying a log file's hash chain.
type VerifyResult struct {
	Valid       bool   `json:"valid"`
	EntryCount  int    `json:"entry_count"`
	FailedAt    int    `json:"failed_at,omitempty"` // 1-indexed line, 0 if Valid
	FailureNote string `json:"failure_note,omitempty"`
}

// VerifyFile replays path's hash chain from genesis, recomputing each
// entry's content hash and checking it both matches the stored hash and
// chains to the previous entry's hash, mirroring ledger.go's Verify and
// audit.py's verify_integrity. If verifier is non-nil, every entry's
// signature is additionally checked against it.
func VerifyFile(path string, verifier *Verifier) (VerifyResult, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return VerifyResult{Valid: true}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	prev := Genesis
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		count++

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return VerifyResult{Valid: false, EntryCount: count, FailedAt: count,
				FailureNote: fmt.Sprintf("malformed JSON: %v", err)}, nil
		}

		if rec.PrevHash != prev {
			return VerifyResult{Valid: false, EntryCount: count, FailedAt: count,
				FailureNote: fmt.Sprintf("chain broken: expected prev %s, got %s", prev, rec.PrevHash)}, nil
		}

		computed, err := entryHash(rec.PrevHash, rec.Entry)
		if err != nil {
			return VerifyResult{}, err
		}
		if computed != rec.EntryHash {
			return VerifyResult{Valid: false, EntryCount: count, FailedAt: count,
				FailureNote: "entry hash mismatch"}, nil
		}

		if verifier != nil {
			if rec.Signature == "" {
				return VerifyResult{Valid: false, EntryCount: count, FailedAt: count,
					FailureNote: "missing signature"}, nil
			}
			if err := verifier.Verify(rec.EntryHash, rec.Signature); err != nil {
				return VerifyResult{Valid: false, EntryCount: count, FailedAt: count,
					FailureNote: fmt.Sprintf("signature verification failed: %v", err)}, nil
			}
		}

		prev = rec.EntryHash
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("audit: scan log: %w", err)
	}

	return VerifyResult{Valid: true, EntryCount: count}, nil
}
