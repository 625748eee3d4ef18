package bundlestore

import (
	"context"
	"testing"

	"github.com/sovereignctl/policyguard/internal/bundle"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := []byte(`{"schema_version":"1.0"}`)
	hash := HashBytes(data)

	if err := store.Put(context.Background(), hash, data); err != nil {
		t.Fatalf("unexpected error on put: %v", err)
	}
	exists, err := store.Exists(context.Background(), hash)
	if err != nil || !exists {
		t.Fatalf("expected blob to exist, exists=%v err=%v", exists, err)
	}
	got, err := store.Get(context.Background(), hash)
	if err != nil {
		t.Fatalf("unexpected error on get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round-trip mismatch: got %s", got)
	}
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	data := []byte(`{"a":1}`)
	hash := HashBytes(data)

	if err := store.Put(context.Background(), hash, data); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.Put(context.Background(), hash, data); err != nil {
		t.Fatalf("second put should be a no-op, got error: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	b := bundle.Bundle{SchemaVersion: "1.0", LeafActions: []string{"full_refund:full"}}
	hash, err := Save(context.Background(), store, b)
	if err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	loaded, err := Load(context.Background(), store, hash)
	if err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}
	if loaded.SchemaVersion != "1.0" || len(loaded.LeafActions) != 1 {
		t.Fatalf("unexpected round-tripped bundle: %+v", loaded)
	}
}

func TestSaveIsContentAddressedAndDeterministic(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	b := bundle.Bundle{SchemaVersion: "1.0"}
	hash1, err := Save(context.Background(), store, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash2, err := Save(context.Background(), store, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash1 != hash2 {
		t.Fatalf("expected identical bundle to hash identically, got %s vs %s", hash1, hash2)
	}
}

func TestLoadRejectsIncompatibleSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	b := bundle.Bundle{SchemaVersion: "2.0"}
	hash, err := Save(context.Background(), store, b)
	if err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	_, err = Load(context.Background(), store, hash)
	if err == nil {
		t.Fatal("expected an error loading a 2.x bundle against a 1.x-only build")
	}
}

func TestLoadAcceptsForwardCompatiblePatchVersion(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	b := bundle.Bundle{SchemaVersion: "1.3"}
	hash, err := Save(context.Background(), store, b)
	if err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}

	if _, err := Load(context.Background(), store, hash); err != nil {
		t.Fatalf("expected 1.3 to be accepted under ^1.0.0, got error: %v", err)
	}
}
