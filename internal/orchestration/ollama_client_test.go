package orchestration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/config"
)

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "neural-chat", req["model"])
		assert.Equal(t, false, req["stream"])
		msgs, ok := req["messages"].([]any)
		require.True(t, ok)
		assert.Len(t, msgs, 2)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"neural-chat","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"# Bracket\n- sketch"},"done":true}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.LocalConfig{Model: "neural-chat", Endpoint: server.URL, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, config.BackendLocal, client.Name())

	reply, err := client.Generate(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "# Bracket\n- sketch", reply)
}

func TestOllamaClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"neural-chat\" not found"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.LocalConfig{Model: "neural-chat", Endpoint: server.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama chat failed")
}

func TestOllamaClient_InvalidEndpoint(t *testing.T) {
	_, err := NewOllamaClient(config.LocalConfig{Endpoint: "://bad"})
	assert.Error(t, err)
}
