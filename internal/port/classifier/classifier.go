// Package classifier defines the intent classification port (interface).
package classifier

import (
	"context"

	"github.com/convoke-ai/convoke/internal/domain/intent"
)

// Classifier is the port interface for mapping a user message to an
// intent classification.
type Classifier interface {
	// Classify determines the intent of the message given the recent
	// conversation history (oldest first, may be empty).
	Classify(ctx context.Context, message string, history []string) (*intent.Classification, error)
}
