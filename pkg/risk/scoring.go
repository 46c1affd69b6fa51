package risk

// Component names used as weight keys.
const (
	ComponentGrounding          = "grounding_risk"
	ComponentSelfConsistency    = "self_consistency_risk"
	ComponentVerifier           = "verifier_risk"
	ComponentNumericInstability = "numeric_instability_risk"
	ComponentToolMismatch       = "tool_mismatch_risk"
	ComponentDrift              = "drift_risk"
)

// DefaultWeights returns the default component weights. Weights are
// renormalized over present components, so they need not sum to one.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		ComponentGrounding:          0.30,
		ComponentSelfConsistency:    0.25,
		ComponentVerifier:           0.25,
		ComponentNumericInstability: 0.10,
		ComponentToolMismatch:       0.10,
		ComponentDrift:              0.10,
	}
}

// Level bands for the composite score.
const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

// LevelFor maps a composite score onto its categorical level.
func LevelFor(score float64) string {
	if score < 0.20 {
		return LevelLow
	}
	if score < 0.35 {
		return LevelMedium
	}
	return LevelHigh
}

// CompositeScore computes the weighted mean over present components only.
// Absent components (nil values) contribute neither value nor weight.
func CompositeScore(components map[string]*float64, weights map[string]float64) (float64, string) {
	if weights == nil {
		weights = DefaultWeights()
	}
	weightedSum := 0.0
	totalWeight := 0.0
	for name, weight := range weights {
		value := components[name]
		if value == nil {
			continue
		}
		weightedSum += Clamp01(*value) * weight
		totalWeight += weight
	}
	if totalWeight <= 0 {
		return 0.0, LevelLow
	}
	score := Clamp01(weightedSum / totalWeight)
	return score, LevelFor(score)
}
