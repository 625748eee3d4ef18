// Package config loads process configuration from environment variables,
// with sane defaults, optionally overlaid by a YAML file.
//
// Grounded on core/pkg/config/config.go's Load (env-var-with-default
// pattern); the YAML overlay is this module's own addition, needed
// because score-weight overrides and multi-backend LLM URLs don't fit
// comfortably in flat env vars the way the teacher's four fields do.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-tunable knob the enforcement pipeline
// needs at startup.
type Config struct {
	BundlePath    string        `yaml:"bundle_path"`
	AuditLogPath  string        `yaml:"audit_log_path"`
	LLMBaseURL    string        `yaml:"llm_base_url"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RedisURL      string        `yaml:"redis_url"`
	S3Bucket      string        `yaml:"s3_bucket"`
	S3Endpoint    string        `yaml:"s3_endpoint,omitempty"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	ListenAddr    string        `yaml:"listen_addr"`
	LogLevel      string        `yaml:"log_level"`

	// Weights is loaded from the YAML overlay's score_weights block and is
	// zero when that block is absent. No package reads it: internal/score
	// always scores with its compiled-in constant weights.
	Weights ScoreWeights `yaml:"score_weights"`
}

// ScoreWeights holds score weights read from configuration. A zero-valued
// ScoreWeights (all three fields 0) means none were configured.
type ScoreWeights struct {
	SMT      float64 `yaml:"smt"`
	Judge    float64 `yaml:"judge"`
	Coverage float64 `yaml:"coverage"`
}

// IsZero reports whether w carries no configured weights.
func (w ScoreWeights) IsZero() bool {
	return w.SMT == 0 && w.Judge == 0 && w.Coverage == 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Load builds Config from environment variables with defaults, then, if
// POLICYGUARD_CONFIG names a readable file, overlays it as YAML on top.
func Load() (*Config, error) {
	cfg := &Config{
		BundlePath:    getEnv("POLICYGUARD_BUNDLE_PATH", "./bundle.json"),
		AuditLogPath:  getEnv("POLICYGUARD_AUDIT_LOG_PATH", "audit/enforcement.jsonl"),
		LLMBaseURL:    getEnv("POLICYGUARD_LLM_BASE_URL", "http://localhost:8081"),
		LLMTimeout:    getEnvDuration("POLICYGUARD_LLM_TIMEOUT", 10*time.Second),
		MaxRetries:    getEnvInt("POLICYGUARD_MAX_RETRIES", 2),
		RedisURL:      getEnv("POLICYGUARD_REDIS_URL", ""),
		S3Bucket:      getEnv("POLICYGUARD_S3_BUCKET", ""),
		S3Endpoint:    getEnv("POLICYGUARD_S3_ENDPOINT", ""),
		OTLPEndpoint:  getEnv("POLICYGUARD_OTLP_ENDPOINT", ""),
		JWTSigningKey: getEnv("POLICYGUARD_JWT_SIGNING_KEY", ""),
		ListenAddr:    getEnv("POLICYGUARD_LISTEN_ADDR", ":8080"),
		LogLevel:      getEnv("POLICYGUARD_LOG_LEVEL", "INFO"),
	}

	if path := os.Getenv("POLICYGUARD_CONFIG"); path != "" {
		if err := overlayYAML(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func overlayYAML(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read overlay %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: parse overlay %q: %w", path, err)
	}
	return nil
}
