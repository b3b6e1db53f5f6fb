package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/internal/domain/consensus"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
)

// ConsensusValidator builds a consensus set for a query and validates a
// candidate claim against it. Implemented by the consensus service.
type ConsensusValidator interface {
	ValidateResponse(ctx context.Context, query, candidate, responderID string) *consensus.ValidationResult
}

// Validator is the consensus responder: it answers validation and
// cross-checking requests by running the claim through every configured
// source and summarizing the aggregate verdict.
type Validator struct {
	validator ConsensusValidator
	log       *slog.Logger
}

// NewValidator creates the consensus responder.
func NewValidator(v ConsensusValidator, log *slog.Logger) *Validator {
	return &Validator{validator: v, log: log.With("responder", "validator")}
}

// ID returns the responder identifier.
func (v *Validator) ID() string { return "validator" }

// Respond validates the latest user claim against all sources.
func (v *Validator) Respond(ctx context.Context, state *conversation.State) (*conversation.ResponderResult, error) {
	claim := state.LastUserMessage()

	result := &conversation.ResponderResult{
		Metadata: map[string]any{"responder": "validator"},
	}

	verdict := v.validator.ValidateResponse(ctx, claim, "", v.ID())

	result.Response = formatVerdict(verdict)
	result.Metadata["validation"] = verdict
	return result, nil
}

// formatVerdict renders a ValidationResult as a short human-readable
// summary.
func formatVerdict(v *consensus.ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cross-checked against %d sources. Validation score: %.2f (hallucination risk: %s).",
		len(v.Sources), v.Score, v.HallucinationRisk)
	if len(v.Agreements) > 0 {
		b.WriteString("\nAgreements: " + strings.Join(v.Agreements, "; "))
	}
	if len(v.Disagreements) > 0 {
		b.WriteString("\nDisagreements: " + strings.Join(v.Disagreements, "; "))
	}
	if v.Reasoning != "" {
		b.WriteString("\n" + v.Reasoning)
	}
	return b.String()
}
