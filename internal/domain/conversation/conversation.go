// Package conversation defines the domain model for the conversation
// pipeline: per-request state, turn records, responder output, and the
// finalized response returned to the caller.
package conversation

import (
	"time"
)

// Mode selects which generation capability tier a request runs under.
type Mode string

const (
	// ModeOnline uses the full remote generation stack.
	ModeOnline Mode = "online"
	// ModeOffline restricts generation to locally hosted models.
	ModeOffline Mode = "offline"
)

// Turn is a single message in the conversation history.
type Turn struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ApprovalPayload is the structured action a responder wants gated behind
// human approval. It is materialized into an approval.Request by the
// pipeline; until then it lives on the State.
type ApprovalPayload struct {
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload"`
	RiskTier    string         `json:"risk_tier"`
}

// State is the mutable per-request state threaded through the pipeline
// stages. One State exists per inbound request; it is keyed by SessionID
// for multi-turn resumption.
type State struct {
	SessionID        string           `json:"session_id"`
	UserID           string           `json:"user_id"`
	Turns            []Turn           `json:"turns"`
	ResponderID      string           `json:"responder_id"` // empty until routing binds one
	Intent           string           `json:"intent"`
	Mode             Mode             `json:"mode"`
	Context          map[string]any   `json:"context"` // intermediate stage results
	RequiresApproval bool             `json:"requires_approval"`
	Approval         *ApprovalPayload `json:"approval,omitempty"` // set iff RequiresApproval
	Metadata         map[string]any   `json:"metadata"`
}

// NewState creates a State for a fresh turn.
func NewState(sessionID, userID string, mode Mode) *State {
	if mode == "" {
		mode = ModeOnline
	}
	return &State{
		SessionID: sessionID,
		UserID:    userID,
		Mode:      mode,
		Context:   make(map[string]any),
		Metadata:  make(map[string]any),
	}
}

// LastUserMessage returns the content of the most recent user turn, or ""
// if no user turn exists.
func (s *State) LastUserMessage() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == "user" {
			return s.Turns[i].Content
		}
	}
	return ""
}

// Response is the finalized result of one pipeline run. The pipeline always
// produces a Response, even on internal failure (degraded fallback).
type Response struct {
	Message          string         `json:"message"`
	ResponderID      string         `json:"responder_id"`
	SessionID        string         `json:"session_id"`
	Intent           string         `json:"intent"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalID       string         `json:"approval_id,omitempty"`
	Metadata         map[string]any `json:"metadata"`
}

// ResponderResult is what a responder returns from processing a turn.
// Responders never propagate errors past this boundary; failures are folded
// into Metadata under "error".
type ResponderResult struct {
	Response         string           `json:"response"`
	RequiresApproval bool             `json:"requires_approval"`
	Approval         *ApprovalPayload `json:"approval,omitempty"`
	Metadata         map[string]any   `json:"metadata"`
}
