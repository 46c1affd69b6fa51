package proposal

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

// Signal names used in proposal-phase scoring.
const (
	SignalOutputInstability = "output_instability"
	SignalNumericVariance   = "numeric_variance"
	SignalPromptDrift       = "prompt_drift"
)

var (
	proposalWordRE = regexp.MustCompile(`[a-z0-9_]+`)
	proposalNumRE  = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)
)

const proposalEpsilon = 1e-9

// DefaultScoreWeights returns the proposal-phase signal weights.
func DefaultScoreWeights() map[string]float64 {
	return map[string]float64{
		SignalOutputInstability: 0.5,
		SignalNumericVariance:   0.3,
		SignalPromptDrift:       0.2,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func wordSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range proposalWordRE.FindAllString(strings.ToLower(text), -1) {
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b string) float64 {
	aset, bset := wordSet(a), wordSet(b)
	if len(aset) == 0 && len(bset) == 0 {
		return 1.0
	}
	inter := 0
	for w := range aset {
		if _, ok := bset[w]; ok {
			inter++
		}
	}
	union := len(aset) + len(bset) - inter
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

func numbers(text string) []float64 {
	var out []float64
	for _, tok := range proposalNumRE.FindAllString(text, -1) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// OutputInstability measures disagreement between two candidate outputs as
// one minus their token Jaccard similarity.
func OutputInstability(a, b string) float64 {
	return clamp01(1.0 - jaccard(a, b))
}

// NumericVariance compares numbers extracted from two candidate outputs
// pairwise. Returns nil when the first output carries no numbers; 1.0 when it
// does but the second carries none.
func NumericVariance(a, b string) *float64 {
	numsA := numbers(a)
	if len(numsA) == 0 {
		return nil
	}
	numsB := numbers(b)
	n := len(numsA)
	if len(numsB) < n {
		n = len(numsB)
	}
	if n == 0 {
		v := 1.0
		return &v
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Abs(numsA[i]-numsB[i]) / math.Max(proposalEpsilon, math.Abs(numsA[i]))
	}
	v := clamp01(sum / float64(n))
	return &v
}

// PromptDrift returns 1.0 when the prompt hash differs from the stored
// baseline, 0.0 when it matches, and nil when no baseline exists yet.
func PromptDrift(prompt, baselineHash string) *float64 {
	if baselineHash == "" {
		return nil
	}
	v := 1.0
	if canonicalize.PromptHash(prompt) == baselineHash {
		v = 0.0
	}
	return &v
}

// Score computes the weighted composite over present signals, renormalizing
// the weights so absent signals contribute nothing.
func Score(signals map[string]*float64, weights map[string]float64) float64 {
	if weights == nil {
		weights = DefaultScoreWeights()
	}
	totalWeight := 0.0
	weightedSum := 0.0
	for name, weight := range weights {
		value := signals[name]
		if value == nil {
			continue
		}
		weightedSum += clamp01(*value) * weight
		totalWeight += weight
	}
	if totalWeight == 0.0 {
		return 0.0
	}
	return clamp01(weightedSum / totalWeight)
}

// Generator produces a candidate model output for a prompt at a temperature.
// Production integrations supply real model calls; GenerateCandidate is the
// deterministic local stub.
type Generator func(prompt string, temperature float64) string

// GenerateCandidate is a deterministic demo generator with mild variability
// for temperature > 0.
func GenerateCandidate(prompt string, temperature float64) string {
	base := fmt.Sprintf("Plan: transfer funds safely for prompt [%s]", prompt)
	if temperature <= 0 {
		return base + ". Amount validated: 100."
	}
	return base + ". Amount validated: 101 maybe pending review."
}
