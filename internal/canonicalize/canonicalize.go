// Package canonicalize produces RFC 8785 (JSON Canonicalization Scheme)
// output for deterministic hashing of policy-governance artifacts: compiled
// bundles (internal/bundlestore) and audit entries (internal/audit) hash
// their canonical form rather than whatever key order json.Marshal happens
// to produce.
//
// Grounded on core/pkg/canonicalize/jcs.go, which hand-rolls the RFC 8785
// walk. This package keeps the same public surface (JCS, CanonicalHash,
// HashBytes, JCSString) but delegates the transform itself to
// github.com/gowebpki/jcs, a maintained implementation of the same RFC.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first marshaled with the standard library (so struct tags are
// respected) and then transformed into canonical form: object keys sorted
// by UTF-16 code unit, no insignificant whitespace, numbers in their
// shortest round-tripping form.
func JCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}
