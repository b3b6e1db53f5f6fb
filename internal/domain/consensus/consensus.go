// Package consensus defines the domain model for multi-source response
// validation: independent generation-source results, the derived validation
// verdict, and the fixed scoring heuristics that are part of the
// compatibility surface.
package consensus

import (
	"regexp"
	"strconv"
	"strings"
)

// HallucinationRisk buckets a validation score into a coarse risk class.
type HallucinationRisk string

const (
	HallucinationLow    HallucinationRisk = "low"
	HallucinationMedium HallucinationRisk = "medium"
	HallucinationHigh   HallucinationRisk = "high"
)

// SourceResult is one generation source's answer to a consensus query,
// together with the source's fixed a-priori reliability weight.
// Immutable once obtained.
type SourceResult struct {
	Name     string  `json:"name"`
	Response string  `json:"response"`
	Weight   float64 `json:"weight"`
}

// ValidationResult is the verdict from comparing a candidate answer against
// a set of independent source results.
type ValidationResult struct {
	Score             float64           `json:"score"` // [0,1]
	Reasoning         string            `json:"reasoning"`
	Agreements        []string          `json:"agreements"`
	Disagreements     []string          `json:"disagreements"`
	HallucinationRisk HallucinationRisk `json:"hallucination_risk"`
	Sources           []string          `json:"sources"`
}

// BucketScore maps a validation score to a hallucination-risk bucket.
// The thresholds are a compatibility contract: >=0.8 low, >=0.5 medium,
// else high.
func BucketScore(score float64) HallucinationRisk {
	switch {
	case score >= 0.8:
		return HallucinationLow
	case score >= 0.5:
		return HallucinationMedium
	default:
		return HallucinationHigh
	}
}

// Agreement and disagreement notes are count-based, not content-based.
const (
	AgreementNote    = "Multiple sources provide consistent information"
	DisagreementNote = "Limited consensus data available for comparison"
)

// Agreements returns the agreement notes for a consensus set: one note
// when two or more sources responded, none otherwise.
func Agreements(set []SourceResult) []string {
	if len(set) >= 2 {
		return []string{AgreementNote}
	}
	return nil
}

// Disagreements returns the disagreement notes for a consensus set: a
// limited-data note when fewer than two sources responded.
func Disagreements(set []SourceResult) []string {
	if len(set) < 2 {
		return []string{DisagreementNote}
	}
	return nil
}

// MeanWeight returns the arithmetic mean of the sources' a-priori weights,
// or 0 when the list is empty.
func MeanWeight(sources []SourceResult) float64 {
	if len(sources) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range sources {
		sum += s.Weight
	}
	return sum / float64(len(sources))
}

// scorePatterns, in priority order, match a numeric score embedded in
// free-text analysis. The grouping captures "0.82", ".9", "8" etc.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`validation score[:\s]*([0-9]*\.?[0-9]+)`),
	regexp.MustCompile(`score[:\s]*([0-9]*\.?[0-9]+)`),
	regexp.MustCompile(`confidence[:\s]*([0-9]*\.?[0-9]+)`),
}

// ExtractScore pulls a 0-1 validation score out of free-text analysis.
// A value above 1 is treated as a 0-10 rating and divided by 10. If no
// pattern matches, the score defaults to 0.6 (medium confidence).
//
// This heuristic is intentionally fragile; do not strengthen its semantics
// without treating it as a behavior change.
func ExtractScore(analysis string) float64 {
	lower := strings.ToLower(analysis)
	for _, pat := range scorePatterns {
		m := pat.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if score > 1.0 {
			score = score / 10.0
		}
		return clamp01(score)
	}
	return 0.6
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
