package orchestration

import (
	"context"
	"log/slog"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/config"
)

// OfflineClient answers from the bundled script templates without a model
type OfflineClient struct{}

// NewOfflineClient creates the template backend
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

func (c *OfflineClient) Name() string {
	return config.BackendOffline
}

// Generate returns the best-matching template as a structured reply, or an
// outline of the code for explain requests
func (c *OfflineClient) Generate(ctx context.Context, payload codegen.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if payload.Task == codegen.TaskExplain {
		return codegen.Outline(payload.Code), nil
	}
	t := codegen.MatchTemplate(payload.UserMessage)
	slog.Debug("Answering from offline template", "template", t.Key)
	return t.Reply(), nil
}
