package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	cvotel "github.com/convoke-ai/convoke/internal/adapter/otel"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/consensus"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/broadcast"
	"github.com/convoke-ai/convoke/internal/port/generation"
	"github.com/convoke-ai/convoke/internal/resilience"
)

// ConsensusService builds a consensus set by fanning a query out to every
// configured generation source, then validates candidate text against
// that set with a single validator call.
type ConsensusService struct {
	sources     []generation.Source
	pool        *resilience.Pool
	hub         broadcast.Broadcaster
	risks       *risk.Engine
	callTimeout time.Duration
	log         *slog.Logger
}

// NewConsensusService creates a ConsensusService.
func NewConsensusService(sources []generation.Source, pool *resilience.Pool, hub broadcast.Broadcaster, risks *risk.Engine, callTimeout time.Duration, log *slog.Logger) *ConsensusService {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &ConsensusService{
		sources:     sources,
		pool:        pool,
		hub:         hub,
		risks:       risks,
		callTimeout: callTimeout,
		log:         log.With("component", "consensus"),
	}
}

// BuildConsensus issues the same query to every source concurrently and
// returns the results that arrived. Failed sources are logged and
// skipped; zero sources responding yields an empty set, not an error.
// Consensus queries always run online, whatever mode the surrounding
// conversation is in.
func (s *ConsensusService) BuildConsensus(ctx context.Context, query string) []consensus.SourceResult {
	results := make([]consensus.SourceResult, len(s.sources))
	ok := make([]bool, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.pool.Run(ctx, func() error {
				callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
				defer cancel()

				callCtx, span := cvotel.StartSourceSpan(callCtx, src.Name())
				defer span.End()

				resp, err := src.Generate(callCtx, []generation.Message{
					{Role: "user", Content: query},
				}, generation.ModeOnline)
				if err != nil {
					span.SetAttributes(attribute.Bool("source.failed", true))
					return err
				}
				results[i] = consensus.SourceResult{
					Name:     src.Name(),
					Response: resp,
					Weight:   src.Weight(),
				}
				ok[i] = true
				return nil
			})
			if err != nil {
				s.log.Warn("consensus source failed", "source", src.Name(), "error", err)
			}
		}()
	}
	wg.Wait()

	out := make([]consensus.SourceResult, 0, len(s.sources))
	for i, r := range results {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out
}

// Validate asks the validator source to compare candidate text against
// the consensus set and mines the analysis for a 0-1 score. It degrades
// instead of failing: an empty set or a failed validator call yields a
// neutral 0.5 verdict. The agreement and disagreement notes are
// count-based over the set.
func (s *ConsensusService) Validate(ctx context.Context, candidate string, set []consensus.SourceResult, responderID string) *consensus.ValidationResult {
	result := s.validate(ctx, candidate, set, responderID)

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, broadcast.EventValidationComplete, map[string]any{
			"score":        result.Score,
			"risk":         string(result.HallucinationRisk),
			"source_count": len(result.Sources),
		})
	}
	return result
}

func (s *ConsensusService) validate(ctx context.Context, candidate string, set []consensus.SourceResult, responderID string) *consensus.ValidationResult {
	if len(set) == 0 {
		s.log.Warn("no consensus sources responded, returning neutral verdict")
		return &consensus.ValidationResult{
			Score:             0.5,
			Reasoning:         "No consensus could be built; verdict is neutral.",
			Disagreements:     consensus.Disagreements(set),
			HallucinationRisk: consensus.HallucinationMedium,
			Sources:           []string{},
		}
	}

	names := make([]string, 0, len(set))
	for _, r := range set {
		names = append(names, r.Name)
	}

	analysis, err := s.validatorAnalysis(ctx, candidate, set, responderID)
	if err != nil {
		s.log.Warn("validation analysis failed, returning neutral verdict", "error", err)
		return &consensus.ValidationResult{
			Score:             0.5,
			Reasoning:         fmt.Sprintf("Validation analysis failed: %v", err),
			Agreements:        consensus.Agreements(set),
			Disagreements:     consensus.Disagreements(set),
			HallucinationRisk: consensus.HallucinationMedium,
			Sources:           names,
		}
	}

	score := consensus.ExtractScore(analysis)
	return &consensus.ValidationResult{
		Score:             score,
		Reasoning:         analysis,
		Agreements:        consensus.Agreements(set),
		Disagreements:     consensus.Disagreements(set),
		HallucinationRisk: consensus.BucketScore(score),
		Sources:           names,
	}
}

// ValidateResponse builds the consensus for a query and validates the
// candidate answer against it in one pass. When candidate is empty the
// query text itself is the claim under review.
func (s *ConsensusService) ValidateResponse(ctx context.Context, query, candidate, responderID string) *consensus.ValidationResult {
	set := s.BuildConsensus(ctx, query)
	if candidate == "" {
		candidate = query
	}
	return s.Validate(ctx, candidate, set, responderID)
}

// AssessTrust runs a validation pass over an approval description and
// folds the outcome into a trust verdict for the given risk tier.
func (s *ConsensusService) AssessTrust(ctx context.Context, description string, tier risk.Tier) (*approval.TrustAssessment, error) {
	result := s.ValidateResponse(ctx, description, "", "approval")

	confidence := s.Confidence(result)
	verdict := s.risks.Recommend(confidence, tier, string(result.HallucinationRisk))

	return &approval.TrustAssessment{
		Verdict:    string(verdict),
		Confidence: confidence,
		Reasoning:  result.Reasoning,
	}, nil
}

// Confidence computes the blended confidence for a validation result.
func (s *ConsensusService) Confidence(result *consensus.ValidationResult) float64 {
	var sources []consensus.SourceResult
	for _, src := range s.sources {
		for _, name := range result.Sources {
			if src.Name() == name {
				sources = append(sources, consensus.SourceResult{Name: name, Weight: src.Weight()})
			}
		}
	}
	return s.risks.ComputeConfidence(result.Score, len(result.Sources), consensus.MeanWeight(sources))
}

// validatorAnalysis sends the comparison prompt to the validator source
// (the highest-weight configured source) with a single bounded call.
func (s *ConsensusService) validatorAnalysis(ctx context.Context, candidate string, set []consensus.SourceResult, responderID string) (string, error) {
	validator := s.validatorSource()
	if validator == nil {
		return "", fmt.Errorf("no validator source configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	callCtx, span := cvotel.StartSourceSpan(callCtx, validator.Name())
	defer span.End()

	return validator.Generate(callCtx, []generation.Message{
		{Role: "user", Content: validationPrompt(candidate, set, responderID)},
	}, generation.ModeOnline)
}

// validatorSource returns the highest-weight configured source, or nil.
func (s *ConsensusService) validatorSource() generation.Source {
	var best generation.Source
	for _, src := range s.sources {
		if best == nil || src.Weight() > best.Weight() {
			best = src
		}
	}
	return best
}

// validationPrompt builds the comparison prompt: the candidate text, who
// produced it, and the numbered consensus sources.
func validationPrompt(candidate string, set []consensus.SourceResult, responderID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this response against multiple consensus sources.\n\n")
	if responderID != "" {
		fmt.Fprintf(&b, "Response (from %s):\n%s\n\n", responderID, candidate)
	} else {
		fmt.Fprintf(&b, "Response:\n%s\n\n", candidate)
	}
	b.WriteString("Consensus sources:\n")
	for i, r := range set {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Name, truncate(r.Response, 300))
	}
	b.WriteString(`
Evaluate factual accuracy, completeness and consistency with the sources,
and any hallucination risk. Respond with your analysis and end with a line
"Validation score: X" where X is between 0 and 1.`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
