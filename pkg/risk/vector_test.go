package risk

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelLow, LevelFor(0.0))
	assert.Equal(t, LevelLow, LevelFor(0.19))
	assert.Equal(t, LevelMedium, LevelFor(0.20))
	assert.Equal(t, LevelMedium, LevelFor(0.34))
	assert.Equal(t, LevelHigh, LevelFor(0.35))
	assert.Equal(t, LevelHigh, LevelFor(1.0))
}

func TestCompositeScoreRenormalizesOverPresentComponents(t *testing.T) {
	g := 0.8
	v := 0.4
	components := map[string]*float64{
		ComponentGrounding: &g,
		ComponentVerifier:  &v,
	}
	score, level := CompositeScore(components, nil)
	// (0.8*0.30 + 0.4*0.25) / (0.30 + 0.25)
	assert.InDelta(t, (0.8*0.30+0.4*0.25)/0.55, score, 1e-9)
	assert.Equal(t, LevelHigh, level)
}

func TestCompositeScoreAllAbsent(t *testing.T) {
	score, level := CompositeScore(map[string]*float64{}, nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, LevelLow, level)
}

func TestComputeGroundedLowRisk(t *testing.T) {
	vec := Compute(Input{
		Prompt:            "Refund invoice INV-445 by 54.90 USD because the customer was double charged.",
		Answer:            "Refund queued and ledger entry RF-2201 created.",
		RetrievedContext:  "billing ledger confirms invoice INV-445 and refundable amount 54.90 refund queued entry RF-2201 created",
		SecondaryAnswer:   "Refund queued and ledger entry RF-2201 created.",
		ToolResultSummary: "refund API accepted",
	})
	assert.NotNil(t, vec.Grounding)
	assert.NotNil(t, vec.SelfConsistency)
	assert.Equal(t, 0.0, *vec.SelfConsistency)
	assert.Equal(t, 0.0, vec.ToolMismatch)
	assert.Equal(t, LevelLow, vec.CompositeLevel)
}

func TestComputeMismatchedHighRisk(t *testing.T) {
	vec := Compute(Input{
		Prompt:            "Send 250000 USD to DE89370400440532013000 for supplier invoice INV-9921 immediately.",
		Answer:            "Transfer executed successfully and reference WIRE-8931 was returned.",
		RetrievedContext:  "Treasury API rejected transfer: insufficient authorization scope.",
		ToolResultSummary: "wire transfer failed with authorization_denied",
	})
	assert.Equal(t, 1.0, vec.ToolMismatch)
	assert.NotNil(t, vec.Grounding)
	assert.Greater(t, *vec.Grounding, 0.75)
	assert.GreaterOrEqual(t, vec.CompositeScore, 0.35)
	assert.Equal(t, LevelHigh, vec.CompositeLevel)
}

func TestComputeDisabledSignalsAreAbsent(t *testing.T) {
	enabled := AllEnabled()
	enabled.Grounding = false
	enabled.SelfConsistency = false
	vec := ComputeWith(Input{
		Prompt:           "check balance",
		Answer:           "balance is 100",
		RetrievedContext: "entirely different words",
		SecondaryAnswer:  "different answer entirely",
	}, enabled, nil)
	assert.Nil(t, vec.Grounding)
	assert.Nil(t, vec.SelfConsistency)
}

// Property: for all present subsets, the composite stays in [0, 1] and equals
// the renormalized weighted mean.
func TestCompositeScoreProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := []string{
		ComponentGrounding,
		ComponentSelfConsistency,
		ComponentVerifier,
		ComponentNumericInstability,
		ComponentToolMismatch,
		ComponentDrift,
	}

	properties.Property("composite is a renormalized weighted mean in [0,1]", prop.ForAll(
		func(values []float64, present []bool) bool {
			components := make(map[string]*float64)
			for i, name := range names {
				if i < len(values) && i < len(present) && present[i] {
					v := values[i]
					components[name] = &v
				}
			}

			score, _ := CompositeScore(components, nil)
			if score < 0 || score > 1 {
				return false
			}

			weights := DefaultWeights()
			expectedSum, expectedWeight := 0.0, 0.0
			for name, v := range components {
				expectedSum += Clamp01(*v) * weights[name]
				expectedWeight += weights[name]
			}
			if expectedWeight == 0 {
				return score == 0
			}
			expected := Clamp01(expectedSum / expectedWeight)
			diff := score - expected
			if diff < 0 {
				diff = -diff
			}
			return diff < 1e-9
		},
		gen.SliceOfN(6, gen.Float64Range(0, 1)),
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}
