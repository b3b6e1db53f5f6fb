// Package risk implements rule-based risk classification, confidence
// blending, and the approve/reject/review recommendation table.
//
// All keyword tables are injected at construction time so deployments can
// vary them and tests can use fixture data; nothing here is module-level
// state.
package risk

import "strings"

// Tier is a coarse classification of an action's potential harm.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Recommendation is the gate verdict for a validated response or action.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReject  Recommendation = "reject"
	RecommendReview  Recommendation = "review"
)

// Assessment describes the risk of a single action or response.
// Computed synchronously; immutable.
type Assessment struct {
	Tier            Tier   `json:"tier"`
	Impact          string `json:"impact"`
	Reversible      bool   `json:"reversible"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// Keywords holds the free-text risk keyword sets and the responder IDs
// whose actions are always at least medium risk.
type Keywords struct {
	High             []string `yaml:"high"`
	Medium           []string `yaml:"medium"`
	SystemResponders []string `yaml:"system_responders"`
}

// DefaultKeywords returns the stock keyword tables.
func DefaultKeywords() Keywords {
	return Keywords{
		High:             []string{"delete", "format", "remove", "destroy", "irreversible", "permanent"},
		Medium:           []string{"modify", "change", "alter", "update", "install"},
		SystemResponders: []string{"sysops"},
	}
}

// Engine evaluates risk tiers and recommendations from injected tables.
type Engine struct {
	keywords  Keywords
	approveAt float64
	rejectAt  float64
}

// NewEngine creates an Engine with the given keyword configuration.
// Empty tables fall back to DefaultKeywords. Recommendation thresholds
// default to 0.8 (approve) and 0.4 (reject); see SetThresholds.
func NewEngine(kw Keywords) *Engine {
	if len(kw.High) == 0 && len(kw.Medium) == 0 {
		kw = DefaultKeywords()
	}
	return &Engine{keywords: kw, approveAt: 0.8, rejectAt: 0.4}
}

// SetThresholds overrides the confidence cut points used by Recommend.
// Values outside (0,1] or an approve threshold at or below the reject
// threshold are ignored.
func (e *Engine) SetThresholds(approveAt, rejectAt float64) {
	if approveAt <= rejectAt || approveAt > 1 || rejectAt <= 0 {
		return
	}
	e.approveAt = approveAt
	e.rejectAt = rejectAt
}

// AssessRisk scans text case-insensitively against the keyword sets.
// Any high-risk term forces TierHigh; otherwise a medium-risk term or a
// system-operations actor yields TierMedium; otherwise TierLow.
func (e *Engine) AssessRisk(text, actorID string) Assessment {
	lower := strings.ToLower(text)

	for _, term := range e.keywords.High {
		if strings.Contains(lower, term) {
			return Assessment{
				Tier:            TierHigh,
				Impact:          "Potentially destructive or irreversible operation",
				Reversible:      false,
				ExpectedOutcome: "Requires human review before execution",
			}
		}
	}

	for _, term := range e.keywords.Medium {
		if strings.Contains(lower, term) {
			return Assessment{
				Tier:            TierMedium,
				Impact:          "Limited system or data modification",
				Reversible:      true,
				ExpectedOutcome: "Modification proceeds under standard safeguards",
			}
		}
	}

	for _, id := range e.keywords.SystemResponders {
		if actorID == id {
			return Assessment{
				Tier:            TierMedium,
				Impact:          "System-operations action, elevated by actor",
				Reversible:      true,
				ExpectedOutcome: "Action reviewed due to system-level origin",
			}
		}
	}

	return Assessment{
		Tier:            TierLow,
		Impact:          "No system modification expected",
		Reversible:      true,
		ExpectedOutcome: "Informational response",
	}
}

// ComputeConfidence blends a validation score with source coverage and mean
// source reliability: 50% score, 30% coverage (sourceCount/3), 20% mean
// weight. The result is clamped to [0,1].
func (e *Engine) ComputeConfidence(validationScore float64, sourceCount int, meanWeight float64) float64 {
	coverage := float64(sourceCount) / 3.0
	confidence := validationScore*0.5 + coverage*0.3 + meanWeight*0.2
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Recommend maps {confidence, risk tier, hallucination risk} to a verdict.
// Evaluation order is part of the contract (thresholds shown at their
// defaults):
//
//  1. confidence >= 0.8 and tier low     -> approve
//  2. confidence < 0.4 or hallucination high -> reject
//  3. tier high or critical              -> review
//  4. otherwise                          -> review
//
// A low-confidence high-risk item rejects before the tier rule can soften
// it to review.
func (e *Engine) Recommend(confidence float64, tier Tier, hallucination string) Recommendation {
	switch {
	case confidence >= e.approveAt && tier == TierLow:
		return RecommendApprove
	case confidence < e.rejectAt || hallucination == "high":
		return RecommendReject
	case tier == TierHigh || tier == TierCritical:
		return RecommendReview
	default:
		return RecommendReview
	}
}
