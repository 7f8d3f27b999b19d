package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/config"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	tracer      trace.Tracer
	breaker     *gobreaker.CircuitBreaker
}

// chatCompletionRequest is the body of POST /chat/completions
type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []codegen.Message `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the subset of the reply the client reads
type chatCompletionResponse struct {
	Choices []struct {
		Message codegen.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client from the openai model settings
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
		slog.Warn("No generation base URL configured, using default", "base_url", baseURL)
	}

	settings := gobreaker.Settings{
		Name:        "generation-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &OpenAIClient{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{},
		tracer:      otel.Tracer("generation-client"),
		breaker:     gobreaker.NewCircuitBreaker(settings),
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *OpenAIClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

func (c *OpenAIClient) Name() string {
	return config.BackendOpenAI
}

// Generate sends the payload as a system and user message and returns the reply text
func (c *OpenAIClient) Generate(ctx context.Context, payload codegen.Payload) (string, error) {
	ctx, span := c.tracer.Start(ctx, "generation_service.chat_completion")
	defer span.End()

	span.SetAttributes(
		attribute.String("model", c.model),
		attribute.String("task", string(payload.Task)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, payload)
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to call generation service: %w", err)
	}

	reply := result.(string)
	span.SetAttributes(attribute.Int("reply_length", len(reply)))
	return reply, nil
}

// complete performs the actual HTTP request
func (c *OpenAIClient) complete(ctx context.Context, payload codegen.Payload) (string, error) {
	jsonData, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    payload.Messages(),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// Inject trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("generation service returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("generation service error: %s", completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("generation service returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

// IsHealthy reports whether the circuit breaker currently admits requests
func (c *OpenAIClient) IsHealthy(ctx context.Context) bool {
	_, span := c.tracer.Start(ctx, "generation_service.health_check")
	defer span.End()

	healthy := c.breaker.State() != gobreaker.StateOpen
	span.SetAttributes(attribute.Bool("healthy", healthy))
	return healthy
}
