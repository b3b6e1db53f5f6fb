// Package database defines the persistence port (interface).
package database

import (
	"context"
	"time"

	"github.com/convoke-ai/convoke/internal/domain/approval"
	"github.com/convoke-ai/convoke/internal/domain/conversation"
)

// ApprovalStore is the port interface for approval request persistence.
type ApprovalStore interface {
	// CreateApproval inserts a new approval request.
	CreateApproval(ctx context.Context, req *approval.Request) error

	// GetApproval returns the approval request with the given ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetApproval(ctx context.Context, id string) (*approval.Request, error)

	// DecideApproval transitions a pending approval to the given decision.
	// The update is conditional on the current status being pending; it
	// returns domain.ErrInvalidState when the row exists but is no longer
	// pending, and domain.ErrNotFound when it does not exist.
	DecideApproval(ctx context.Context, id string, fields approval.DecisionFields) (*approval.Request, error)

	// ListApprovals returns approval requests matching the filter,
	// newest first.
	ListApprovals(ctx context.Context, filter approval.ListFilter) ([]*approval.Request, error)

	// SweepExpired marks every pending approval whose deadline has passed
	// as expired and returns the updated rows.
	SweepExpired(ctx context.Context, now time.Time, reason string) ([]*approval.Request, error)

	// ApprovalStats returns aggregate counts per status.
	ApprovalStats(ctx context.Context) (*approval.Stats, error)
}

// SessionStore is the port interface for conversation state persistence.
type SessionStore interface {
	// GetSession returns the conversation state for the session ID.
	// Returns domain.ErrNotFound if no state has been saved yet.
	GetSession(ctx context.Context, sessionID string) (*conversation.State, error)

	// PutSession saves the conversation state, replacing any previous one.
	PutSession(ctx context.Context, state *conversation.State) error

	// DeleteSession removes the conversation state for the session ID.
	DeleteSession(ctx context.Context, sessionID string) error
}

// Store is the combined persistence port implemented by the postgres adapter.
type Store interface {
	ApprovalStore
	SessionStore

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close()
}
