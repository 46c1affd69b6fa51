// Package risk computes per-call risk signals and their weighted composite
// for policy decisions. All signal functions are pure; a nil result means the
// signal is absent, not zero.
package risk

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

var (
	wordRE = regexp.MustCompile(`[a-z0-9_]+`)
	numRE  = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)
)

const epsilon = 1e-9

// Clamp01 clamps x into [0, 1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	if text == "" {
		return out
	}
	for _, tok := range wordRE.FindAllString(canonicalize.Normalize(text), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// jaccard over token sets; two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func extractNumbers(text string) []float64 {
	if text == "" {
		return nil
	}
	var out []float64
	for _, tok := range numRE.FindAllString(text, -1) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func ptr(v float64) *float64 { return &v }

// GroundingRisk is 1 minus the token Jaccard similarity between answer and
// retrieved context. Absent when no context was retrieved.
func GroundingRisk(answer, retrievedContext string) *float64 {
	if retrievedContext == "" {
		return nil
	}
	return ptr(Clamp01(1.0 - jaccard(tokenize(answer), tokenize(retrievedContext))))
}

// SelfConsistencyRisk is 1 minus the token Jaccard similarity between the
// primary and secondary answers. Absent without a secondary answer.
func SelfConsistencyRisk(answer, secondaryAnswer string) *float64 {
	if secondaryAnswer == "" {
		return nil
	}
	return ptr(Clamp01(1.0 - jaccard(tokenize(answer), tokenize(secondaryAnswer))))
}

// NumericInstabilityRisk measures relative divergence of numbers between the
// primary and secondary answers, or the normalized spread within the primary
// when no secondary is available. Absent when the primary has no numbers.
func NumericInstabilityRisk(answer, secondaryAnswer string) *float64 {
	primary := extractNumbers(answer)
	if len(primary) == 0 {
		return nil
	}

	if secondaryAnswer != "" {
		secondary := extractNumbers(secondaryAnswer)
		n := len(primary)
		if len(secondary) < n {
			n = len(secondary)
		}
		if n == 0 {
			return ptr(1.0)
		}
		diffs := make([]float64, n)
		for i := 0; i < n; i++ {
			diffs[i] = math.Abs(primary[i]-secondary[i]) / math.Max(epsilon, math.Abs(primary[i]))
		}
		return ptr(Clamp01(mean(diffs)))
	}

	if len(primary) < 2 {
		return ptr(0.0)
	}
	lo, hi := primary[0], primary[0]
	for _, v := range primary[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	spread := (hi - lo) / math.Max(epsilon, math.Abs(mean(primary)))
	return ptr(Clamp01(spread))
}

var (
	failureMarkers  = []string{"fail", "error", "declined", "denied", "timeout"}
	successMarkers  = []string{"success", "completed", "done", "sent", "processed"}
	hedgingMarkers  = []string{"maybe", "not sure", "possibly", "might"}
	absoluteMarkers = []string{"always", "definitely", "guaranteed", "never"}
)

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ToolMismatchRisk is 1 when the tool summary reports failure while the
// answer claims success, else 0. Zero without a tool summary.
func ToolMismatchRisk(answer, toolResultSummary string) float64 {
	if toolResultSummary == "" {
		return 0.0
	}
	toolFailed := containsAny(canonicalize.Normalize(toolResultSummary), failureMarkers)
	answerClaimsSuccess := containsAny(canonicalize.Normalize(answer), successMarkers)
	if toolFailed && answerClaimsSuccess {
		return 1.0
	}
	return 0.0
}

// DriftRisk is 1 when the current prompt hash differs from the previously
// observed one, 0 when equal or when there is no previous hash.
func DriftRisk(previousPromptHash, currentPromptHash string) float64 {
	if previousPromptHash == "" {
		return 0.0
	}
	if previousPromptHash != currentPromptHash {
		return 1.0
	}
	return 0.0
}

// VerifierRisk converts heuristic answer-quality deductions into a risk.
// The goodness score starts at 1.0 and loses 0.2 for hedging language,
// 0.15 for absolute claims and 0.25 for low grounding.
func VerifierRisk(answer string, lowGrounding bool) float64 {
	text := canonicalize.Normalize(answer)
	score := 1.0
	if containsAny(text, hedgingMarkers) {
		score -= 0.2
	}
	if containsAny(text, absoluteMarkers) {
		score -= 0.15
	}
	if lowGrounding {
		score -= 0.25
	}
	return Clamp01(1.0 - Clamp01(score))
}
