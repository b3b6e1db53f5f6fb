// Package responder defines the responder port (interface) and its registry.
package responder

import (
	"context"

	"github.com/convoke-ai/convoke/internal/domain/conversation"
)

// Responder is the port interface for a specialist agent that handles
// conversation turns routed to it.
type Responder interface {
	// ID returns the unique identifier for this responder (e.g. "sysops").
	ID() string

	// Respond processes the conversation state and produces a result.
	// Implementations must not mutate state.Turns.
	Respond(ctx context.Context, state *conversation.State) (*conversation.ResponderResult, error)
}
