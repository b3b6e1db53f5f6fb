package litellm

import (
	"context"

	"github.com/convoke-ai/convoke/internal/config"
	"github.com/convoke-ai/convoke/internal/port/generation"
)

// ModelSource adapts one LiteLLM model into a generation.Source for
// consensus validation.
type ModelSource struct {
	client *Client
	name   string
	model  string
	weight float64
}

// NewModelSource creates a Source that generates through the given model.
func NewModelSource(client *Client, cfg config.Source) *ModelSource {
	return &ModelSource{
		client: client,
		name:   cfg.Name,
		model:  cfg.Model,
		weight: cfg.Weight,
	}
}

// Name returns the source identifier.
func (s *ModelSource) Name() string { return s.name }

// Weight returns the source's consensus aggregation weight.
func (s *ModelSource) Weight() float64 { return s.weight }

// Generate produces a completion through the LiteLLM proxy. Offline mode
// pins the call to the client's default model, the one local deployments
// route to a self-hosted backend.
func (s *ModelSource) Generate(ctx context.Context, messages []generation.Message, mode string) (string, error) {
	model := s.model
	if mode == generation.ModeOffline {
		model = s.client.DefaultModel()
	}
	return s.client.ChatCompletion(ctx, model, messages)
}

// Sources builds a generation.Source per configured consensus source,
// all sharing the same client and breaker.
func Sources(client *Client, cfgs []config.Source) []generation.Source {
	out := make([]generation.Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, NewModelSource(client, cfg))
	}
	return out
}
