// Package policy maps (tool criticality, composite risk) onto an execution
// decision. The engine is stateless; policy id and version are emitted
// verbatim for audit.
package policy

import "github.com/Mindburn-Labs/vigil/pkg/registry"

// Decision is the policy outcome for a tool call.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionReview Decision = "REVIEW"
	DecisionBlock  Decision = "BLOCK"
)

// Result is the audit record of one policy evaluation.
type Result struct {
	Decision      Decision `json:"decision"`
	Reason        string   `json:"reason"`
	PolicyID      string   `json:"policy_id"`
	PolicyVersion string   `json:"policy_version"`
	ThresholdUsed float64  `json:"threshold_used"`
	RequireToken  bool     `json:"require_token"`
}

// Config holds the matrix thresholds. Zero value is not usable; start from
// DefaultConfig.
type Config struct {
	PolicyID              string  `json:"policy_id" yaml:"policy_id"`
	PolicyVersion         string  `json:"policy_version" yaml:"policy_version"`
	HighBlockThreshold    float64 `json:"high_block_threshold" yaml:"high_block_threshold"`
	HighReviewThreshold   float64 `json:"high_review_threshold" yaml:"high_review_threshold"`
	MediumReviewThreshold float64 `json:"medium_review_threshold" yaml:"medium_review_threshold"`

	// OverrideExpr is an optional CEL expression evaluated over
	// {tool, criticality, risk_tier, score, context}. When it yields
	// "REVIEW" or "BLOCK", the matrix decision is tightened to that
	// outcome.
	OverrideExpr string `json:"override_expr,omitempty" yaml:"override_expr,omitempty"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		PolicyID:              "risk-bound-exec-v2",
		PolicyVersion:         "2.0.0",
		HighBlockThreshold:    0.35,
		HighReviewThreshold:   0.20,
		MediumReviewThreshold: 0.50,
	}
}

// Engine evaluates tool execution policy.
type Engine struct {
	config   Config
	override *overrideRule
}

// NewEngine builds an engine, compiling the override expression if present.
func NewEngine(config Config) (*Engine, error) {
	e := &Engine{config: config}
	if config.OverrideExpr != "" {
		rule, err := compileOverride(config.OverrideExpr)
		if err != nil {
			return nil, err
		}
		e.override = rule
	}
	return e, nil
}

// Evaluate applies the criticality × risk matrix. riskTier and callContext
// are carried for the override rule and for audit; the matrix itself ignores
// them.
func (e *Engine) Evaluate(profile registry.ToolProfile, compositeRiskScore float64, riskTier string, callContext map[string]any) Result {
	result := e.matrix(profile, compositeRiskScore)
	if e.override != nil {
		result = e.override.apply(result, profile, compositeRiskScore, riskTier, callContext)
	}
	return result
}

func (e *Engine) matrix(profile registry.ToolProfile, score float64) Result {
	cfg := e.config
	switch profile.Criticality {
	case registry.CriticalityHigh:
		if score >= cfg.HighBlockThreshold {
			return Result{DecisionBlock, "high_criticality_block_threshold", cfg.PolicyID, cfg.PolicyVersion, cfg.HighBlockThreshold, true}
		}
		if score >= cfg.HighReviewThreshold {
			return Result{DecisionReview, "high_criticality_review_threshold", cfg.PolicyID, cfg.PolicyVersion, cfg.HighReviewThreshold, true}
		}
		return Result{DecisionAllow, "high_criticality_allow", cfg.PolicyID, cfg.PolicyVersion, cfg.HighReviewThreshold, true}
	case registry.CriticalityMedium:
		if score >= cfg.MediumReviewThreshold {
			return Result{DecisionReview, "medium_criticality_review_threshold", cfg.PolicyID, cfg.PolicyVersion, cfg.MediumReviewThreshold, false}
		}
		return Result{DecisionAllow, "medium_criticality_allow", cfg.PolicyID, cfg.PolicyVersion, cfg.MediumReviewThreshold, false}
	default:
		return Result{DecisionAllow, "low_criticality_allow", cfg.PolicyID, cfg.PolicyVersion, 1.0, false}
	}
}
