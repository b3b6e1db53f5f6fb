// Package approval defines the domain model for time-bounded approval
// requests: a pending action gated behind a human decision, optionally
// annotated with an automated trust assessment.
package approval

import (
	"encoding/json"
	"time"

	"github.com/convoke-ai/convoke/internal/domain/risk"
)

// Status is the lifecycle state of an approval request.
// pending -> {approved, rejected, expired}; terminal states never change.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Default TTLs per action type. System commands expire quickly because a
// stale command approval is more dangerous than a stale email draft.
const (
	DefaultTTL       = 24 * time.Hour
	SystemCommandTTL = time.Hour

	// ActionExecuteCommand is the action type used by the system-operations
	// responder for literal command execution.
	ActionExecuteCommand = "execute_command"

	// SweepReason is the standard decision reason recorded by the expiry sweep.
	SweepReason = "Auto-expired due to timeout"
)

// TTLFor returns the expiry window for an action type.
func TTLFor(actionType string) time.Duration {
	if actionType == ActionExecuteCommand {
		return SystemCommandTTL
	}
	return DefaultTTL
}

// TrustAssessment is the automated multi-source verdict attached to
// high/critical-risk requests at creation time.
type TrustAssessment struct {
	Verdict    string  `json:"verdict"` // approve | reject | review
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Request is a persisted, time-bounded record gating execution of a
// sensitive action.
type Request struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	ResponderID    string           `json:"responder_id"`
	ActionType     string           `json:"action_type"`
	Description    string           `json:"description"`
	Payload        json.RawMessage  `json:"payload"`
	RiskTier       risk.Tier        `json:"risk_tier"`
	Status         Status           `json:"status"`
	Trust          *TrustAssessment `json:"trust,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
	DecisionReason string           `json:"decision_reason,omitempty"`
}

// Expired reports whether the request is past its expiry time.
func (r *Request) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// CreateRequest carries the fields needed to open a new approval request.
type CreateRequest struct {
	UserID      string          `json:"user_id"`
	ResponderID string          `json:"responder_id"`
	ActionType  string          `json:"action_type"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload"`
	RiskTier    risk.Tier       `json:"risk_tier"`
	TTL         time.Duration   `json:"-"` // zero = TTLFor(ActionType)
}

// DecisionFields are the mutable fields written by a terminal transition.
type DecisionFields struct {
	Status    Status
	DecidedAt time.Time
	Reason    string
}

// ListFilter narrows approval queries.
type ListFilter struct {
	ResponderID string
	ActionType  string
	RiskTier    risk.Tier
	Status      Status
	Since       time.Time
	Limit       int
}

// Stats summarizes approval activity over a window.
type Stats struct {
	Total            int            `json:"total"`
	Pending          int            `json:"pending"`
	ByStatus         map[string]int `json:"by_status"`
	ByResponder      map[string]int `json:"by_responder"`
	ByRiskTier       map[string]int `json:"by_risk_tier"`
	AvgDecisionHours float64        `json:"avg_decision_hours"`
	PeriodDays       int            `json:"period_days"`
}
