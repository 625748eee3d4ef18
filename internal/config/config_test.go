package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"POLICYGUARD_BUNDLE_PATH", "POLICYGUARD_AUDIT_LOG_PATH", "POLICYGUARD_LLM_BASE_URL",
		"POLICYGUARD_LLM_TIMEOUT", "POLICYGUARD_MAX_RETRIES", "POLICYGUARD_REDIS_URL",
		"POLICYGUARD_S3_BUCKET", "POLICYGUARD_OTLP_ENDPOINT", "POLICYGUARD_JWT_SIGNING_KEY",
		"POLICYGUARD_LISTEN_ADDR", "POLICYGUARD_LOG_LEVEL", "POLICYGUARD_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaultsWithNoEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MaxRetries != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadReadsEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLICYGUARD_LISTEN_ADDR", ":9090")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected env override, got %s", cfg.ListenAddr)
	}
}

func TestLoadOverlaysYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\nscore_weights:\n  smt: 0.5\n  judge: 0.4\n  coverage: 0.1\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("POLICYGUARD_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("expected overlay to win, got %s", cfg.ListenAddr)
	}
	if cfg.Weights.IsZero() || cfg.Weights.SMT != 0.5 {
		t.Fatalf("expected weight override, got %+v", cfg.Weights)
	}
}

func TestScoreWeightsIsZero(t *testing.T) {
	if !(ScoreWeights{}).IsZero() {
		t.Fatal("expected zero-valued ScoreWeights to report IsZero")
	}
	if (ScoreWeights{SMT: 0.6}).IsZero() {
		t.Fatal("expected non-zero ScoreWeights to report not IsZero")
	}
}
