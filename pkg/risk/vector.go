package risk

import "github.com/Mindburn-Labs/vigil/pkg/canonicalize"

// Vector carries every risk component for one tool call plus the composite.
// Optional components are nil when their inputs were missing.
type Vector struct {
	PromptHash         string   `json:"prompt_hash"`
	Grounding          *float64 `json:"grounding_risk,omitempty"`
	SelfConsistency    *float64 `json:"self_consistency_risk,omitempty"`
	NumericInstability *float64 `json:"numeric_instability_risk,omitempty"`
	ToolMismatch       float64  `json:"tool_mismatch_risk"`
	Drift              float64  `json:"drift_risk"`
	Verifier           float64  `json:"verifier_risk"`
	CompositeScore     float64  `json:"composite_risk_score"`
	CompositeLevel     string   `json:"composite_risk_level"`
}

// Input bundles the texts a risk vector is computed from. Empty strings mean
// the input is unavailable.
type Input struct {
	Prompt             string
	Answer             string
	RetrievedContext   string
	SecondaryAnswer    string
	ToolResultSummary  string
	PreviousPromptHash string
}

// Enabled toggles individual signals. A disabled signal is treated as absent
// and contributes nothing to the composite.
type Enabled struct {
	Grounding          bool
	SelfConsistency    bool
	NumericInstability bool
	ToolMismatch       bool
	Drift              bool
	Verifier           bool
}

// AllEnabled returns the default signal configuration.
func AllEnabled() Enabled {
	return Enabled{
		Grounding:          true,
		SelfConsistency:    true,
		NumericInstability: true,
		ToolMismatch:       true,
		Drift:              true,
		Verifier:           true,
	}
}

// Compute derives the full risk vector with all signals enabled.
func Compute(in Input) Vector {
	return ComputeWith(in, AllEnabled(), nil)
}

// ComputeWith derives the risk vector under a signal configuration and an
// optional weight override.
func ComputeWith(in Input, enabled Enabled, weights map[string]float64) Vector {
	pHash := canonicalize.PromptHash(in.Prompt)

	var grounding, selfConsistency, numeric *float64
	if enabled.Grounding {
		grounding = GroundingRisk(in.Answer, in.RetrievedContext)
	}
	if enabled.SelfConsistency {
		selfConsistency = SelfConsistencyRisk(in.Answer, in.SecondaryAnswer)
	}
	if enabled.NumericInstability {
		numeric = NumericInstabilityRisk(in.Answer, in.SecondaryAnswer)
	}

	toolMismatch := 0.0
	if enabled.ToolMismatch {
		toolMismatch = ToolMismatchRisk(in.Answer, in.ToolResultSummary)
	}
	drift := 0.0
	if enabled.Drift {
		drift = DriftRisk(in.PreviousPromptHash, pHash)
	}
	verifier := 0.0
	if enabled.Verifier {
		lowGrounding := grounding != nil && *grounding > 0.75
		verifier = VerifierRisk(in.Answer, lowGrounding)
	}

	components := map[string]*float64{
		ComponentGrounding:          grounding,
		ComponentSelfConsistency:    selfConsistency,
		ComponentNumericInstability: numeric,
	}
	if enabled.ToolMismatch {
		components[ComponentToolMismatch] = ptr(toolMismatch)
	}
	if enabled.Drift {
		components[ComponentDrift] = ptr(drift)
	}
	if enabled.Verifier {
		components[ComponentVerifier] = ptr(verifier)
	}

	score, level := CompositeScore(components, weights)
	return Vector{
		PromptHash:         pHash,
		Grounding:          grounding,
		SelfConsistency:    selfConsistency,
		NumericInstability: numeric,
		ToolMismatch:       toolMismatch,
		Drift:              drift,
		Verifier:           verifier,
		CompositeScore:     score,
		CompositeLevel:     level,
	}
}
