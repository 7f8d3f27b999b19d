// Package cli is the copilotctl command line client of the copilot API.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bizmatters/cad-copilot/internal/gateway"
	"github.com/bizmatters/cad-copilot/internal/models"
)

// APIError is a non-2xx reply of the copilot API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Client calls the copilot HTTP API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. The timeout bounds
// whole requests, so it must cover an execute request's retries.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp)
	return resp, err
}

// Chat asks for generated code
func (c *Client) Chat(ctx context.Context, message string) (models.GenerationResult, error) {
	var result models.GenerationResult
	err := c.do(ctx, http.MethodPost, "/api/chat", gateway.ChatRequest{UserMessage: message}, &result)
	return result, err
}

// Execute runs code in the attached document
func (c *Client) Execute(ctx context.Context, code string) (models.ExecutionOutcome, error) {
	var outcome models.ExecutionOutcome
	err := c.do(ctx, http.MethodPost, "/api/execute", gateway.CodeRequest{Code: code}, &outcome)
	return outcome, err
}

// Explain asks what code does
func (c *Client) Explain(ctx context.Context, code string) (string, error) {
	var resp gateway.ExplainResponse
	err := c.do(ctx, http.MethodPost, "/api/explain", gateway.CodeRequest{Code: code}, &resp)
	return resp.Explanation, err
}

// Context captures the active document
func (c *Client) Context(ctx context.Context) (models.ContextSnapshot, error) {
	var snap models.ContextSnapshot
	err := c.do(ctx, http.MethodGet, "/api/context", nil, &snap)
	return snap, err
}

// Runs lists recent runs; limit <= 0 uses the server default
func (c *Client) Runs(ctx context.Context, limit int) ([]models.RunRecord, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var runs []models.RunRecord
	err := c.do(ctx, http.MethodGet, path, nil, &runs)
	return runs, err
}

// HostURL is the websocket address an add-in attaches to
func (c *Client) HostURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/host/connect")
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
