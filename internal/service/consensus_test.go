package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/convoke-ai/convoke/internal/domain/consensus"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/generation"
	"github.com/convoke-ai/convoke/internal/resilience"
)

func newConsensus(sources ...generation.Source) *ConsensusService {
	return NewConsensusService(sources, resilience.NewPool(4), nil,
		risk.NewEngine(risk.DefaultKeywords()), 5*time.Second, slog.Default())
}

func TestValidateNoSourcesIsNeutral(t *testing.T) {
	s := newConsensus()

	result := s.ValidateResponse(context.Background(), "is the sky blue", "yes", "analyst")
	if result.Score != 0.5 {
		t.Errorf("Score = %v, want neutral 0.5", result.Score)
	}
	if result.HallucinationRisk != consensus.HallucinationMedium {
		t.Errorf("HallucinationRisk = %s, want medium", result.HallucinationRisk)
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", result.Sources)
	}
	if len(result.Disagreements) != 1 || result.Disagreements[0] != consensus.DisagreementNote {
		t.Errorf("Disagreements = %v, want [%q]", result.Disagreements, consensus.DisagreementNote)
	}
}

func TestValidateAllSourcesFailIsNeutral(t *testing.T) {
	s := newConsensus(
		&fixedSource{name: "a", weight: 0.9, err: errors.New("down")},
		&fixedSource{name: "b", weight: 0.8, err: errors.New("down")},
	)

	result := s.ValidateResponse(context.Background(), "q", "a", "analyst")
	if result.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5", result.Score)
	}
}

func TestBuildConsensusSkipsFailedSources(t *testing.T) {
	s := newConsensus(
		&fixedSource{name: "up", weight: 0.9, reply: "the sky is blue"},
		&fixedSource{name: "down", weight: 0.8, err: errors.New("timeout")},
	)

	set := s.BuildConsensus(context.Background(), "what color is the sky")
	if len(set) != 1 || set[0].Name != "up" {
		t.Fatalf("set = %v, want one result from up", set)
	}
	if set[0].Weight != 0.9 {
		t.Errorf("Weight = %v, want 0.9", set[0].Weight)
	}
}

func TestValidateScoresFromSingleValidatorCall(t *testing.T) {
	primary := &fixedSource{name: "primary", weight: 0.9, reply: "Consistent with the sources. Validation score: 0.9"}
	secondary := &fixedSource{name: "secondary", weight: 0.85, reply: "the capital of France is Paris"}
	s := newConsensus(primary, secondary)

	result := s.ValidateResponse(context.Background(), "capital of France?", "Paris", "archivist")

	if math.Abs(result.Score-0.9) > 1e-9 {
		t.Errorf("Score = %v, want score mined from the validator analysis", result.Score)
	}
	// The validator verdict comes from one extra call to the
	// highest-weight source; the other sources only answer the query.
	if primary.calls() != 2 {
		t.Errorf("primary calls = %d, want 2 (consensus + validation)", primary.calls())
	}
	if secondary.calls() != 1 {
		t.Errorf("secondary calls = %d, want 1 (consensus only)", secondary.calls())
	}
	if len(result.Sources) != 2 {
		t.Errorf("Sources = %v, want 2", result.Sources)
	}
}

func TestValidatorPromptCarriesCandidateAndResponder(t *testing.T) {
	primary := &fixedSource{name: "primary", weight: 0.9, reply: "Validation score: 0.8"}
	s := newConsensus(primary)

	s.ValidateResponse(context.Background(), "capital of France?", "Paris", "archivist")

	prompt := primary.lastPrompt()
	if !strings.Contains(prompt, "Paris") {
		t.Errorf("validator prompt missing candidate: %q", prompt)
	}
	if !strings.Contains(prompt, "archivist") {
		t.Errorf("validator prompt missing responder id: %q", prompt)
	}
	if !strings.Contains(prompt, "1. primary:") {
		t.Errorf("validator prompt missing numbered sources: %q", prompt)
	}
}

func TestNotesAreCountBasedNotScoreBased(t *testing.T) {
	// Two sources responded, so the agreement note applies even when the
	// validator verdict itself is poor.
	s := newConsensus(
		&fixedSource{name: "primary", weight: 0.9, reply: "Contradicts the sources. Validation score: 0.3"},
		&fixedSource{name: "secondary", weight: 0.85, reply: "unrelated answer"},
	)

	result := s.ValidateResponse(context.Background(), "q", "a", "analyst")
	if len(result.Agreements) != 1 || result.Agreements[0] != consensus.AgreementNote {
		t.Errorf("Agreements = %v, want [%q]", result.Agreements, consensus.AgreementNote)
	}
	if len(result.Disagreements) != 0 {
		t.Errorf("Disagreements = %v, want none with two sources", result.Disagreements)
	}
}

func TestSingleSourceGetsLimitedDataNote(t *testing.T) {
	// One source, and its analysis carries no score pattern: the score
	// falls back to the extraction default and the limited-data note is
	// present because the set is too small, not because of the score.
	s := newConsensus(
		&fixedSource{name: "only", weight: 0.9, reply: "plausible but unverifiable"},
	)

	result := s.ValidateResponse(context.Background(), "q", "a", "analyst")
	if math.Abs(result.Score-0.6) > 1e-9 {
		t.Errorf("Score = %v, want extraction default 0.6", result.Score)
	}
	if len(result.Agreements) != 0 {
		t.Errorf("Agreements = %v, want none with one source", result.Agreements)
	}
	if len(result.Disagreements) != 1 || result.Disagreements[0] != consensus.DisagreementNote {
		t.Errorf("Disagreements = %v, want [%q]", result.Disagreements, consensus.DisagreementNote)
	}
}

func TestValidatorCallFailureIsNeutral(t *testing.T) {
	// The consensus set exists but the validator call itself fails.
	validator := &fixedSource{name: "validator", weight: 0.9, err: errors.New("down")}
	s := newConsensus(validator)

	set := []consensus.SourceResult{
		{Name: "a", Response: "blue", Weight: 0.9},
		{Name: "b", Response: "blue", Weight: 0.8},
	}
	result := s.Validate(context.Background(), "the sky is blue", set, "analyst")

	if result.Score != 0.5 {
		t.Errorf("Score = %v, want neutral 0.5 on validator failure", result.Score)
	}
	if len(result.Agreements) != 1 {
		t.Errorf("Agreements = %v, want the count-based note to survive the failure", result.Agreements)
	}
	if len(result.Sources) != 2 {
		t.Errorf("Sources = %v, want both set members", result.Sources)
	}
}

func TestValidateBroadcasts(t *testing.T) {
	hub := &recordingHub{}
	s := NewConsensusService(
		[]generation.Source{&fixedSource{name: "a", weight: 0.9, reply: "Validation score: 0.9"}},
		resilience.NewPool(2), hub, risk.NewEngine(risk.DefaultKeywords()), time.Second, slog.Default())

	s.ValidateResponse(context.Background(), "q", "a", "analyst")
	if !hub.has("validation.completed") {
		t.Errorf("events = %v, want validation.completed", hub.events)
	}
}

func TestConfidenceBlend(t *testing.T) {
	s := newConsensus(
		&fixedSource{name: "primary", weight: 0.9},
		&fixedSource{name: "secondary", weight: 0.85},
		&fixedSource{name: "tertiary", weight: 0.75},
	)

	result := &consensus.ValidationResult{
		Score:   0.9,
		Sources: []string{"primary", "secondary", "tertiary"},
	}
	// 0.9*0.5 + (3/3)*0.3 + mean(0.9,0.85,0.75)*0.2
	want := 0.9*0.5 + 0.3 + (0.9+0.85+0.75)/3*0.2
	if got := s.Confidence(result); math.Abs(got-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", got, want)
	}
}

func TestAssessTrust(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		tier    risk.Tier
		verdict string
	}{
		{"strong support low tier", "Validation score: 1.0", risk.TierLow, "approve"},
		{"weak support", "Validation score: 0.1", risk.TierHigh, "reject"},
		{"good support high tier", "Validation score: 1.0", risk.TierHigh, "review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newConsensus(
				&fixedSource{name: "primary", weight: 0.9, reply: tt.reply},
				&fixedSource{name: "secondary", weight: 0.85, reply: tt.reply},
				&fixedSource{name: "tertiary", weight: 0.75, reply: tt.reply},
			)

			trust, err := s.AssessTrust(context.Background(), "delete the archive", tt.tier)
			if err != nil {
				t.Fatalf("AssessTrust: %v", err)
			}
			if trust.Verdict != tt.verdict {
				t.Errorf("Verdict = %q, want %q (confidence %v)", trust.Verdict, tt.verdict, trust.Confidence)
			}
		})
	}
}
