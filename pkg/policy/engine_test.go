package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/registry"
)

func highProfile() registry.ToolProfile {
	return registry.ToolProfile{Name: "initiate_wire_transfer", Criticality: registry.CriticalityHigh, Irreversible: true}
}

func TestMatrixHighCriticality(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	cases := []struct {
		score    float64
		decision Decision
		reason   string
	}{
		{0.40, DecisionBlock, "high_criticality_block_threshold"},
		{0.35, DecisionBlock, "high_criticality_block_threshold"},
		{0.25, DecisionReview, "high_criticality_review_threshold"},
		{0.20, DecisionReview, "high_criticality_review_threshold"},
		{0.10, DecisionAllow, "high_criticality_allow"},
	}
	for _, tc := range cases {
		result := engine.Evaluate(highProfile(), tc.score, "", nil)
		assert.Equal(t, tc.decision, result.Decision, "score=%v", tc.score)
		assert.Equal(t, tc.reason, result.Reason, "score=%v", tc.score)
		assert.True(t, result.RequireToken, "HIGH always requires a token")
		assert.Equal(t, "risk-bound-exec-v2", result.PolicyID)
		assert.Equal(t, "2.0.0", result.PolicyVersion)
	}
}

func TestMatrixMediumCriticality(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	profile := registry.ToolProfile{Name: "issue_invoice_refund", Criticality: registry.CriticalityMedium}

	result := engine.Evaluate(profile, 0.55, "", nil)
	assert.Equal(t, DecisionReview, result.Decision)
	assert.Equal(t, "medium_criticality_review_threshold", result.Reason)
	assert.False(t, result.RequireToken)

	result = engine.Evaluate(profile, 0.10, "", nil)
	assert.Equal(t, DecisionAllow, result.Decision)
	assert.Equal(t, "medium_criticality_allow", result.Reason)
	assert.Equal(t, 0.50, result.ThresholdUsed)
}

func TestMatrixLowCriticality(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	profile := registry.DefaultProfile("cancel_shipment")

	result := engine.Evaluate(profile, 0.99, "", nil)
	assert.Equal(t, DecisionAllow, result.Decision)
	assert.Equal(t, "low_criticality_allow", result.Reason)
	assert.False(t, result.RequireToken)
	assert.Equal(t, 1.0, result.ThresholdUsed)
}

func TestCustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighBlockThreshold = 0.90
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	result := engine.Evaluate(highProfile(), 0.50, "", nil)
	assert.Equal(t, DecisionReview, result.Decision)
}

func TestOverrideRuleTightens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverrideExpr = `context["region"] == "sanctioned" ? "BLOCK" : ""`
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	profile := registry.DefaultProfile("cancel_shipment")

	result := engine.Evaluate(profile, 0.0, "", map[string]any{"region": "sanctioned"})
	assert.Equal(t, DecisionBlock, result.Decision)
	assert.Equal(t, "policy_override_rule", result.Reason)

	result = engine.Evaluate(profile, 0.0, "", map[string]any{"region": "eu"})
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestOverrideRuleSeesRiskTier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverrideExpr = `risk_tier == "HIGH" ? "REVIEW" : ""`
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	profile := registry.DefaultProfile("change_subscription_plan")

	result := engine.Evaluate(profile, 0.0, "HIGH", nil)
	assert.Equal(t, DecisionReview, result.Decision)
	assert.Equal(t, "policy_override_rule", result.Reason)

	result = engine.Evaluate(profile, 0.0, "", nil)
	assert.Equal(t, DecisionAllow, result.Decision)
}

func TestOverrideRuleNeverLoosens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverrideExpr = `"ALLOW"`
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	result := engine.Evaluate(highProfile(), 0.40, "", nil)
	assert.Equal(t, DecisionBlock, result.Decision)
	assert.Equal(t, "high_criticality_block_threshold", result.Reason)
}

func TestOverrideRuleCompileError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverrideExpr = `this is not cel`
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}
