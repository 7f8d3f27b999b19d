package orchestration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/config"
)

// OllamaClient generates with a locally served model
type OllamaClient struct {
	client      *ollama.Client
	model       string
	temperature float64
	tracer      trace.Tracer
}

// NewOllamaClient creates a client for the endpoint in cfg. An empty endpoint
// falls back to OLLAMA_HOST.
func NewOllamaClient(cfg config.LocalConfig) (*OllamaClient, error) {
	var client *ollama.Client
	if cfg.Endpoint == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid local model endpoint %q: %w", cfg.Endpoint, err)
		}
		client = ollama.NewClient(base, http.DefaultClient)
	}

	return &OllamaClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		tracer:      otel.Tracer("generation-client"),
	}, nil
}

func (c *OllamaClient) Name() string {
	return config.BackendLocal
}

// Generate runs one non-streaming chat request
func (c *OllamaClient) Generate(ctx context.Context, payload codegen.Payload) (string, error) {
	ctx, span := c.tracer.Start(ctx, "local_model.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.model),
		attribute.String("task", string(payload.Task)),
	)

	msgs := payload.Messages()
	ollamaMessages := make([]ollama.Message, len(msgs))
	for i, msg := range msgs {
		ollamaMessages[i] = ollama.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    c.model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": c.temperature,
		},
	}

	var reply strings.Builder
	respFunc := func(res ollama.ChatResponse) error {
		reply.WriteString(res.Message.Content)
		return nil
	}

	if err := c.client.Chat(ctx, req, respFunc); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return reply.String(), nil
}
