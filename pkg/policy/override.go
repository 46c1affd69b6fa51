package policy

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/vigil/pkg/registry"
)

// overrideRule is a compiled CEL expression that may tighten a matrix
// decision. It can only move ALLOW → REVIEW/BLOCK or REVIEW → BLOCK; it never
// loosens the matrix outcome.
type overrideRule struct {
	program cel.Program
}

func compileOverride(expr string) (*overrideRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("criticality", cel.StringType),
		cel.Variable("risk_tier", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: override expression: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: override program: %w", err)
	}
	return &overrideRule{program: program}, nil
}

func (r *overrideRule) apply(base Result, profile registry.ToolProfile, score float64, riskTier string, callContext map[string]any) Result {
	if callContext == nil {
		callContext = map[string]any{}
	}
	out, _, err := r.program.Eval(map[string]any{
		"tool":        profile.Name,
		"criticality": string(profile.Criticality),
		"risk_tier":   riskTier,
		"score":       score,
		"context":     callContext,
	})
	if err != nil {
		// The matrix decision stands; an override rule must not be able to
		// loosen enforcement by failing.
		slog.Warn("policy override rule evaluation failed", "tool", profile.Name, "error", err)
		return base
	}

	decision, ok := out.Value().(string)
	if !ok {
		return base
	}
	switch Decision(decision) {
	case DecisionBlock:
		if base.Decision != DecisionBlock {
			base.Decision = DecisionBlock
			base.Reason = "policy_override_rule"
		}
	case DecisionReview:
		if base.Decision == DecisionAllow {
			base.Decision = DecisionReview
			base.Reason = "policy_override_rule"
		}
	}
	return base
}
