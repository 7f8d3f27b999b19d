package orchestration

import (
	"context"
	"fmt"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/config"
)

// GenerationClient is a generation backend. Generate returns the raw reply,
// whose shape is unconstrained.
type GenerationClient interface {
	Generate(ctx context.Context, payload codegen.Payload) (string, error)
	Name() string
}

// NewClient builds the backend named by cfg.DefaultBackend
func NewClient(cfg config.ModelConfig) (GenerationClient, error) {
	switch cfg.DefaultBackend {
	case config.BackendOpenAI:
		return NewOpenAIClient(cfg.OpenAI), nil
	case config.BackendLocal:
		return NewOllamaClient(cfg.Local)
	case config.BackendOffline:
		return NewOfflineClient(), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.DefaultBackend)
	}
}
