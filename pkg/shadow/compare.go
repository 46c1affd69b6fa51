// Package shadow runs fire-and-forget comparison of a primary answer against
// a shadow answer, recording disagreement metrics on a child span.
package shadow

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	wordRE = regexp.MustCompile(`[a-z0-9_]+`)
	numRE  = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)
)

const epsilon = 1e-9

func tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordRE.FindAllString(strings.ToLower(text), -1) {
		out[w] = struct{}{}
	}
	return out
}

func numbers(text string) []float64 {
	var out []float64
	for _, tok := range numRE.FindAllString(text, -1) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// DisagreementScore is one minus the token Jaccard similarity between the
// primary and shadow answers. Two empty answers agree perfectly.
func DisagreementScore(primary, shadow string) float64 {
	a, b := tokens(primary), tokens(shadow)
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0.0
	}
	return 1.0 - float64(inter)/float64(union)
}

// NumericVariance is the mean relative difference over pairwise-aligned
// numbers in the two answers. No aligned pairs means no variance.
func NumericVariance(primary, shadow string) float64 {
	a, b := numbers(primary), numbers(shadow)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0.0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Abs(a[i]-b[i]) / math.Max(epsilon, math.Abs(a[i]))
	}
	return math.Max(0.0, math.Min(1.0, sum/float64(n)))
}
