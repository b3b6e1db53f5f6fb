// Package generation defines the text generation port (interface).
package generation

import "context"

// Message is a single chat message sent to a generation source.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generation modes. Online uses the full remote model stack; offline
// restricts a call to locally hosted models.
const (
	ModeOnline  = "online"
	ModeOffline = "offline"
)

// Source is the port interface for a single text generation backend.
// Each consensus source and each responder persona talks to an LLM
// through this interface.
type Source interface {
	// Name returns the unique identifier for this source (e.g. "primary").
	Name() string

	// Weight returns the reliability weight used when aggregating
	// consensus results, in [0, 1].
	Weight() float64

	// Generate produces a completion for the given messages under the
	// given mode (ModeOnline or ModeOffline).
	Generate(ctx context.Context, messages []Message, mode string) (string, error)
}
