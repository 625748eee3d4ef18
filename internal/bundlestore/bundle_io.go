package bundlestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/sovereignctl/policyguard/internal/bundle"
	"github.com/sovereignctl/policyguard/internal/canonicalize"
)

// ErrBundleMalformed is returned when a loaded bundle's schema_version is
// incompatible with the version this build understands.
var ErrBundleMalformed = fmt.Errorf("bundlestore: bundle schema_version incompatible")

// Compatible is the semver constraint this build accepts: forward-compatible
// within the "1.x" line, matching SchemaVersion="1.0" today.
const Compatible = "^1.0.0"

// Save canonicalizes b via RFC 8785 (so identical bundles always hash
// identically regardless of JSON key order produced upstream), stores it
// content-addressed, and returns its hash — the identifier callers persist
// elsewhere (config, a pointer file, an audit entry) to retrieve it later.
func Save(ctx context.Context, store BlobStore, b bundle.Bundle) (string, error) {
	canonical, err := canonicalize.JCS(b)
	if err != nil {
		return "", fmt.Errorf("bundlestore: canonicalize bundle: %w", err)
	}
	hash := HashBytes(canonical)
	if err := store.Put(ctx, hash, canonical); err != nil {
		return "", err
	}
	return hash, nil
}

// Load retrieves a bundle by hash and checks its schema_version against
// Compatible before returning it.
func Load(ctx context.Context, store BlobStore, hash string) (bundle.Bundle, error) {
	data, err := store.Get(ctx, hash)
	if err != nil {
		return bundle.Bundle{}, err
	}
	return decode(data)
}

func decode(data []byte) (bundle.Bundle, error) {
	var b bundle.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return bundle.Bundle{}, fmt.Errorf("bundlestore: decode bundle: %w", err)
	}
	if err := checkCompatible(b.SchemaVersion); err != nil {
		return bundle.Bundle{}, err
	}
	return b, nil
}

func checkCompatible(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: unparseable schema_version %q: %v", ErrBundleMalformed, version, err)
	}
	constraint, err := semver.NewConstraint(Compatible)
	if err != nil {
		return fmt.Errorf("bundlestore: invalid internal constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %q does not satisfy %s", ErrBundleMalformed, version, Compatible)
	}
	return nil
}
