package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cvotel "github.com/convoke-ai/convoke/internal/adapter/otel"
	"github.com/convoke-ai/convoke/internal/domain"
	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
	"github.com/convoke-ai/convoke/internal/domain/intent"
	"github.com/convoke-ai/convoke/internal/domain/risk"
	"github.com/convoke-ai/convoke/internal/port/broadcast"
	"github.com/convoke-ai/convoke/internal/port/classifier"
	"github.com/convoke-ai/convoke/internal/port/database"
	"github.com/convoke-ai/convoke/internal/port/responder"
)

// ChatRequest is one inbound user message.
type ChatRequest struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message"`
	Mode      conversation.Mode `json:"mode,omitempty"`
}

// PipelineConfig carries the tunables of the message pipeline.
type PipelineConfig struct {
	DefaultResponder    string
	HistoryWindow       int
	DisclosureThreshold float64
	StageTimeout        time.Duration // per-stage deadline, 0 disables
}

// Pipeline runs each message through the fixed stage sequence: intent
// detection, routing, responder processing, then either approval gating
// or consensus validation, then finalization. It never returns an error:
// every failure path degrades into a usable Response with error metadata.
type Pipeline struct {
	classify   classifier.Classifier
	responders *responder.Registry
	routing    intent.RoutingTable
	validated  map[string]bool // intents that always trigger consensus validation
	sessions   database.SessionStore
	approvals  *ApprovalService
	consensus  *ConsensusService
	hub        broadcast.Broadcaster
	cfg        PipelineConfig
	log        *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(classify classifier.Classifier, responders *responder.Registry, routing intent.RoutingTable, sessions database.SessionStore, approvals *ApprovalService, consensus *ConsensusService, hub broadcast.Broadcaster, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	if cfg.DefaultResponder == "" {
		cfg.DefaultResponder = routing.Default
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 5
	}
	if cfg.DisclosureThreshold <= 0 {
		cfg.DisclosureThreshold = 0.7
	}
	return &Pipeline{
		classify:   classify,
		responders: responders,
		routing:    routing,
		validated:  intent.AlwaysValidate(),
		sessions:   sessions,
		approvals:  approvals,
		consensus:  consensus,
		hub:        hub,
		cfg:        cfg,
		log:        log.With("component", "pipeline"),
	}
}

// Process runs one message through the pipeline. The returned Response is
// never nil and the method never panics.
func (p *Pipeline) Process(ctx context.Context, req ChatRequest) (resp *conversation.Response) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline panic", "session", req.SessionID, "panic", r)
			resp = p.degraded(req, fmt.Sprintf("panic: %v", r))
		}
	}()

	state := p.loadState(ctx, req)
	state.Turns = append(state.Turns, conversation.Turn{
		Role:      "user",
		Content:   req.Message,
		Timestamp: time.Now(),
	})

	p.detectIntent(ctx, state, req.Message)
	p.route(state)

	result := p.respond(ctx, state)

	resp = p.buildResponse(state, result)
	gated := result.RequiresApproval && result.Approval != nil
	if gated {
		p.gate(ctx, state, result, resp)
	}
	// Gated responses are still validated: the approval decision deserves
	// the same cross-source scrutiny as an ungated answer.
	if gated || p.validated[state.Intent] {
		p.attachValidation(ctx, state, result, resp)
	}

	p.finalize(ctx, state, resp)
	return resp
}

// stage wraps one pipeline stage in a span and, when configured, a
// per-stage deadline.
func (p *Pipeline) stage(ctx context.Context, name string) (context.Context, func()) {
	cancel := func() {}
	if p.cfg.StageTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
	}
	ctx, span := cvotel.StartStageSpan(ctx, name)
	return ctx, func() {
		span.End()
		cancel()
	}
}

// loadState resumes the session if one exists, otherwise starts fresh.
func (p *Pipeline) loadState(ctx context.Context, req ChatRequest) *conversation.State {
	if p.sessions != nil {
		state, err := p.sessions.GetSession(ctx, req.SessionID)
		if err == nil {
			if req.Mode != "" {
				state.Mode = req.Mode
			}
			return state
		}
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Warn("session load failed, starting fresh", "session", req.SessionID, "error", err)
		}
	}
	return conversation.NewState(req.SessionID, req.UserID, req.Mode)
}

// detectIntent classifies the message, falling back to general on error.
func (p *Pipeline) detectIntent(ctx context.Context, state *conversation.State, message string) {
	ctx, done := p.stage(ctx, "detect_intent")
	defer done()

	history := p.recentUserTurns(state)

	c, err := p.classify.Classify(ctx, message, history)
	if err != nil || c == nil {
		p.log.Warn("intent classification failed", "session", state.SessionID, "error", err)
		state.Intent = intent.LabelGeneral
		state.Context["intent_confidence"] = 0.0
		return
	}
	state.Intent = c.Label
	state.Context["intent_confidence"] = c.Confidence
}

// route binds the responder for the detected intent.
func (p *Pipeline) route(state *conversation.State) {
	state.ResponderID = p.routing.ResponderFor(state.Intent)
	if _, ok := p.responders.Get(state.ResponderID); !ok {
		p.log.Warn("responder not registered, using default",
			"responder", state.ResponderID, "default", p.cfg.DefaultResponder)
		state.ResponderID = p.cfg.DefaultResponder
	}
}

// respond runs the bound responder. Responder errors degrade into an
// apologetic result rather than aborting the pipeline.
func (p *Pipeline) respond(ctx context.Context, state *conversation.State) *conversation.ResponderResult {
	ctx, done := p.stage(ctx, "respond")
	defer done()

	r, ok := p.responders.Get(state.ResponderID)
	if !ok {
		p.log.Error("no responder available", "responder", state.ResponderID)
		return &conversation.ResponderResult{
			Response: "I can't handle that request right now.",
			Metadata: map[string]any{"error": true, "error_detail": "responder unavailable"},
		}
	}

	result, err := r.Respond(ctx, state)
	if err != nil || result == nil {
		p.log.Error("responder failed", "responder", state.ResponderID, "error", err)
		detail := "responder returned no result"
		if err != nil {
			detail = err.Error()
		}
		return &conversation.ResponderResult{
			Response: "Something went wrong while handling that. Please try again.",
			Metadata: map[string]any{"error": true, "error_detail": detail},
		}
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	return result
}

// gate materializes the responder's approval payload into a stored
// approval request and stamps its ID onto resp. If creation fails, the
// user still gets the responder's message, marked degraded.
func (p *Pipeline) gate(ctx context.Context, state *conversation.State, result *conversation.ResponderResult, resp *conversation.Response) {
	ctx, done := p.stage(ctx, "request_approval")
	defer done()

	payload, err := json.Marshal(result.Approval.Payload)
	if err != nil {
		payload = json.RawMessage("{}")
	}

	created, err := p.approvals.Create(ctx, approval.CreateRequest{
		UserID:      state.UserID,
		ResponderID: state.ResponderID,
		ActionType:  result.Approval.ActionType,
		Description: result.Approval.Description,
		Payload:     payload,
		RiskTier:    risk.Tier(result.Approval.RiskTier),
	})
	if err != nil {
		p.log.Error("approval creation failed", "session", state.SessionID, "error", err)
		resp.Metadata["error"] = true
		resp.Metadata["error_detail"] = "approval could not be recorded"
		return
	}

	state.RequiresApproval = true
	state.Approval = result.Approval

	resp.RequiresApproval = true
	resp.ApprovalID = created.ID
	resp.Metadata["approval_status"] = string(created.Status)
	resp.Metadata["approval_expires_at"] = created.ExpiresAt
	if created.Trust != nil {
		resp.Metadata["trust_verdict"] = created.Trust.Verdict
		resp.Metadata["trust_confidence"] = created.Trust.Confidence
	}
}

// attachValidation cross-checks the responder's answer against the
// consensus sources and appends a confidence disclosure when the blended
// confidence is low.
func (p *Pipeline) attachValidation(ctx context.Context, state *conversation.State, result *conversation.ResponderResult, resp *conversation.Response) {
	if p.consensus == nil {
		return
	}
	// The validator responder already ran consensus; don't run it twice.
	if _, done := result.Metadata["validation"]; done {
		return
	}

	ctx, done := p.stage(ctx, "validate")
	defer done()

	verdict := p.consensus.ValidateResponse(ctx, state.LastUserMessage(), result.Response, state.ResponderID)

	confidence := p.consensus.Confidence(verdict)
	resp.Metadata["validation_score"] = verdict.Score
	resp.Metadata["hallucination_risk"] = string(verdict.HallucinationRisk)
	resp.Metadata["confidence"] = confidence

	if confidence < p.cfg.DisclosureThreshold {
		resp.Message += fmt.Sprintf(
			"\n\nNote: cross-source confidence in this answer is limited (%.0f%%). Treat it as a starting point, not a verified fact.",
			confidence*100)
	}
}

// buildResponse assembles the outward Response from the responder result.
func (p *Pipeline) buildResponse(state *conversation.State, result *conversation.ResponderResult) *conversation.Response {
	metadata := make(map[string]any, len(result.Metadata)+1)
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	if c, ok := state.Context["intent_confidence"]; ok {
		metadata["intent_confidence"] = c
	}
	return &conversation.Response{
		Message:     result.Response,
		ResponderID: state.ResponderID,
		SessionID:   state.SessionID,
		Intent:      state.Intent,
		Metadata:    metadata,
	}
}

// finalize persists the session and broadcasts the pipeline event.
// Failures here are logged; the response has already been built.
func (p *Pipeline) finalize(ctx context.Context, state *conversation.State, resp *conversation.Response) {
	state.Turns = append(state.Turns, conversation.Turn{
		Role:      "assistant",
		Content:   resp.Message,
		Timestamp: time.Now(),
	})

	if p.sessions != nil {
		if err := p.sessions.PutSession(ctx, state); err != nil {
			p.log.Warn("session save failed", "session", state.SessionID, "error", err)
		}
	}

	if p.hub != nil {
		degraded, _ := resp.Metadata["error"].(bool)
		p.hub.BroadcastEvent(ctx, broadcast.EventPipelineFinalized, map[string]any{
			"session_id":   state.SessionID,
			"responder_id": state.ResponderID,
			"intent":       state.Intent,
			"degraded":     degraded,
		})
	}
}

// degraded is the terminal fallback for pipeline panics.
func (p *Pipeline) degraded(req ChatRequest, detail string) *conversation.Response {
	return &conversation.Response{
		Message:     "I hit an internal error processing that message. Please try again.",
		ResponderID: p.cfg.DefaultResponder,
		SessionID:   req.SessionID,
		Intent:      intent.LabelGeneral,
		Metadata: map[string]any{
			"error":        true,
			"error_detail": detail,
		},
	}
}

// recentUserTurns returns up to HistoryWindow prior user messages,
// oldest first, excluding the turn just appended.
func (p *Pipeline) recentUserTurns(state *conversation.State) []string {
	var history []string
	for _, t := range state.Turns[:len(state.Turns)-1] {
		if t.Role == "user" {
			history = append(history, t.Content)
		}
	}
	if len(history) > p.cfg.HistoryWindow {
		history = history[len(history)-p.cfg.HistoryWindow:]
	}
	return history
}
