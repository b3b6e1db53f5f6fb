// Package responder implements the built-in specialist responders.
package responder

import (
	"context"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/internal/domain/conversation"
	"github.com/convoke-ai/convoke/internal/domain/intent"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/generation"
)

// Persona is an LLM-backed responder with a fixed system prompt. The
// coordinator, archivist and analyst responders are all personas; they
// differ only in prompt and ID.
type Persona struct {
	id     string
	prompt string
	source generation.Source
	risks  *risk.Engine
	log    *slog.Logger
}

// NewPersona creates a persona responder.
func NewPersona(id, prompt string, source generation.Source, risks *risk.Engine, log *slog.Logger) *Persona {
	return &Persona{
		id:     id,
		prompt: prompt,
		source: source,
		risks:  risks,
		log:    log.With("responder", id),
	}
}

// ID returns the responder identifier.
func (p *Persona) ID() string { return p.id }

// Respond generates a reply to the latest user turn. Generation failures
// are folded into the result's metadata; the pipeline contract is that a
// responder always yields something usable.
func (p *Persona) Respond(ctx context.Context, state *conversation.State) (*conversation.ResponderResult, error) {
	message := state.LastUserMessage()

	result := &conversation.ResponderResult{
		Metadata: map[string]any{"responder": p.id},
	}

	reply, err := p.source.Generate(ctx, buildMessages(p.prompt, state.Turns), string(state.Mode))
	if err != nil {
		p.log.Error("generation failed", "error", err)
		result.Response = "I ran into a problem generating a response. Please try again."
		result.Metadata["error"] = true
		result.Metadata["error_detail"] = err.Error()
		return result, nil
	}
	result.Response = reply

	assessment := p.risks.AssessRisk(message, p.id)
	result.Metadata["risk_tier"] = string(assessment.Tier)
	if assessment.Tier == risk.TierHigh || assessment.Tier == risk.TierCritical {
		result.RequiresApproval = true
		result.Approval = &conversation.ApprovalPayload{
			ActionType:  actionTypeFor(state.Intent),
			Description: summarize(message),
			Payload: map[string]any{
				"message":  message,
				"response": reply,
			},
			RiskTier: string(assessment.Tier),
		}
	}
	return result, nil
}

// buildMessages converts conversation turns into a chat request, prefixed
// by the persona's system prompt.
func buildMessages(prompt string, turns []conversation.Turn) []generation.Message {
	messages := make([]generation.Message, 0, len(turns)+1)
	messages = append(messages, generation.Message{Role: "system", Content: prompt})
	for _, t := range turns {
		role := t.Role
		if role != "user" && role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, generation.Message{Role: role, Content: t.Content})
	}
	return messages
}

// actionTypeFor maps an intent to the action type recorded on approval
// requests raised by persona responders.
func actionTypeFor(label string) string {
	switch label {
	case intent.LabelEmail:
		return "send_email"
	case intent.LabelCalendar:
		return "create_event"
	case intent.LabelTaskManagement:
		return "create_task"
	default:
		if label == "" {
			return "general_action"
		}
		return label
	}
}

// summarize trims a message down to a short approval description.
func summarize(message string) string {
	const maxLen = 140
	message = strings.TrimSpace(message)
	if len(message) <= maxLen {
		return message
	}
	return message[:maxLen-3] + "..."
}
