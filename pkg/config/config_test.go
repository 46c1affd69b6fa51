package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "VIGIL_SERVICE", "DATABASE_URL",
		"VIGIL_POLICY_VERSION", "VIGIL_HIGH_BLOCK_THRESHOLD",
		"VIGIL_SELF_CONSISTENCY_MODE", "VIGIL_TOKEN_TTL_MS",
		"VIGIL_SHADOW_FOR_HIGH_RISK", "VIGIL_PROPOSAL_BLOCK_THRESHOLD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "vigil", cfg.Service)
	assert.Equal(t, "risk-bound-exec-v2", cfg.Policy.PolicyID)
	assert.Equal(t, "2.0.0", cfg.Policy.PolicyVersion)
	assert.Equal(t, 0.35, cfg.Policy.HighBlockThreshold)
	assert.Equal(t, 0.20, cfg.Policy.HighReviewThreshold)
	assert.Equal(t, 0.50, cfg.Policy.MediumReviewThreshold)
	assert.Equal(t, int64(30_000), cfg.Tokens.ExecTTLMillis)
	assert.Equal(t, int64(60), cfg.Tokens.CommitTTLSeconds)
	assert.True(t, cfg.Risk.ShadowForHighRisk)
	assert.Equal(t, "inline", cfg.Risk.SelfConsistencyMode)
	assert.True(t, cfg.Risk.GroundingEnabled)
	assert.Equal(t, 0.45, cfg.Proposals.BlockThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("VIGIL_TOKEN_TTL_MS", "5000")
	t.Setenv("VIGIL_SHADOW_FOR_HIGH_RISK", "false")
	t.Setenv("VIGIL_SELF_CONSISTENCY_MODE", "shadow")
	t.Setenv("VIGIL_PROPOSAL_BLOCK_THRESHOLD", "0.6")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, int64(5000), cfg.Tokens.ExecTTLMillis)
	assert.False(t, cfg.Risk.ShadowForHighRisk)
	assert.Equal(t, "shadow", cfg.Risk.SelfConsistencyMode)
	assert.Equal(t, 0.6, cfg.Proposals.BlockThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithFileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")

	path := filepath.Join(t.TempDir(), "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"7070\"\npolicy:\n  policy_version: \"2.1.0\"\n  high_block_threshold: 0.40\n  high_review_threshold: 0.25\n  medium_review_threshold: 0.50\nrisk:\n  self_consistency_mode: \"off\"\n"), 0o600))

	cfg, err := config.LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "file wins over env")
	assert.Equal(t, "2.1.0", cfg.Policy.PolicyVersion)
	assert.Equal(t, 0.40, cfg.Policy.HighBlockThreshold)
	assert.Equal(t, "off", cfg.Risk.SelfConsistencyMode)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := config.LoadWithFile("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()
	cfg.Policy.PolicyVersion = "not-a-version"
	assert.Error(t, cfg.Validate())

	cfg = config.Load()
	cfg.Risk.SelfConsistencyMode = "sometimes"
	assert.Error(t, cfg.Validate())

	cfg = config.Load()
	cfg.Policy.HighBlockThreshold = 0.10
	assert.Error(t, cfg.Validate())
}
