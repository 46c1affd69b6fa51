// Package config loads server configuration from the environment, with an
// optional YAML overlay for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the full runtime configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Service  string `yaml:"service"`

	DatabaseURL  string `yaml:"database_url"`
	SQLitePath   string `yaml:"sqlite_path"`
	RedisAddr    string `yaml:"redis_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	Policy    PolicyConfig   `yaml:"policy"`
	Tokens    TokenConfig    `yaml:"tokens"`
	Risk      RiskConfig     `yaml:"risk"`
	Proposals ProposalConfig `yaml:"proposals"`
}

// PolicyConfig holds the decision matrix knobs.
type PolicyConfig struct {
	PolicyID              string  `yaml:"policy_id"`
	PolicyVersion         string  `yaml:"policy_version"`
	HighBlockThreshold    float64 `yaml:"high_block_threshold"`
	HighReviewThreshold   float64 `yaml:"high_review_threshold"`
	MediumReviewThreshold float64 `yaml:"medium_review_threshold"`
	OverrideExpr          string  `yaml:"override_expr"`
}

// TokenConfig holds secrets and lifetimes for both token families.
type TokenConfig struct {
	ExecSecret       string `yaml:"exec_secret"`
	ExecTTLMillis    int64  `yaml:"exec_ttl_ms"`
	CommitSecret     string `yaml:"commit_secret"`
	CommitTTLSeconds int64  `yaml:"commit_ttl_seconds"`
}

// RiskConfig holds signal enablement and routing of the secondary answer.
type RiskConfig struct {
	ShadowForHighRisk   bool   `yaml:"shadow_for_high_risk"`
	SelfConsistencyMode string `yaml:"self_consistency_mode"`

	GroundingEnabled          bool `yaml:"grounding_enabled"`
	SelfConsistencyEnabled    bool `yaml:"self_consistency_enabled"`
	NumericInstabilityEnabled bool `yaml:"numeric_instability_enabled"`
	ToolMismatchEnabled       bool `yaml:"tool_mismatch_enabled"`
	DriftEnabled              bool `yaml:"drift_enabled"`
	VerifierEnabled           bool `yaml:"verifier_enabled"`
}

// ProposalConfig holds proposal-phase knobs.
type ProposalConfig struct {
	BlockThreshold float64 `yaml:"block_threshold"`
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		Service:      getenv("VIGIL_SERVICE", "vigil"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("VIGIL_SQLITE_PATH"),
		RedisAddr:    os.Getenv("VIGIL_REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Policy: PolicyConfig{
			PolicyID:              getenv("VIGIL_POLICY_ID", "risk-bound-exec-v2"),
			PolicyVersion:         getenv("VIGIL_POLICY_VERSION", "2.0.0"),
			HighBlockThreshold:    getenvFloat("VIGIL_HIGH_BLOCK_THRESHOLD", 0.35),
			HighReviewThreshold:   getenvFloat("VIGIL_HIGH_REVIEW_THRESHOLD", 0.20),
			MediumReviewThreshold: getenvFloat("VIGIL_MEDIUM_REVIEW_THRESHOLD", 0.50),
			OverrideExpr:          os.Getenv("VIGIL_POLICY_OVERRIDE_EXPR"),
		},
		Tokens: TokenConfig{
			ExecSecret:       os.Getenv("VIGIL_TOKEN_SECRET"),
			ExecTTLMillis:    getenvInt("VIGIL_TOKEN_TTL_MS", 30_000),
			CommitSecret:     os.Getenv("VIGIL_COMMIT_SECRET"),
			CommitTTLSeconds: getenvInt("VIGIL_COMMIT_TTL_SECONDS", 60),
		},
		Risk: RiskConfig{
			ShadowForHighRisk:         getenvBool("VIGIL_SHADOW_FOR_HIGH_RISK", true),
			SelfConsistencyMode:       getenv("VIGIL_SELF_CONSISTENCY_MODE", "inline"),
			GroundingEnabled:          getenvBool("VIGIL_SIGNAL_GROUNDING", true),
			SelfConsistencyEnabled:    getenvBool("VIGIL_SIGNAL_SELF_CONSISTENCY", true),
			NumericInstabilityEnabled: getenvBool("VIGIL_SIGNAL_NUMERIC_INSTABILITY", true),
			ToolMismatchEnabled:       getenvBool("VIGIL_SIGNAL_TOOL_MISMATCH", true),
			DriftEnabled:              getenvBool("VIGIL_SIGNAL_DRIFT", true),
			VerifierEnabled:           getenvBool("VIGIL_SIGNAL_VERIFIER", true),
		},
		Proposals: ProposalConfig{
			BlockThreshold: getenvFloat("VIGIL_PROPOSAL_BLOCK_THRESHOLD", 0.45),
		},
	}
}

// LoadWithFile loads env configuration and overlays the YAML file at path.
// Values present in the file win over environment values.
func LoadWithFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if _, err := semver.NewVersion(c.Policy.PolicyVersion); err != nil {
		return fmt.Errorf("config: policy_version %q is not semver: %w", c.Policy.PolicyVersion, err)
	}
	switch c.Risk.SelfConsistencyMode {
	case "inline", "shadow", "off":
	default:
		return fmt.Errorf("config: self_consistency_mode %q must be inline, shadow or off", c.Risk.SelfConsistencyMode)
	}
	if c.Policy.HighBlockThreshold < c.Policy.HighReviewThreshold {
		return fmt.Errorf("config: high_block_threshold %.2f below high_review_threshold %.2f",
			c.Policy.HighBlockThreshold, c.Policy.HighReviewThreshold)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
