package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bizmatters/cad-copilot/internal/auth"
	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/diagnostics"
	"github.com/bizmatters/cad-copilot/internal/executor"
	"github.com/bizmatters/cad-copilot/internal/gateway"
	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/internal/orchestration"
	"github.com/bizmatters/cad-copilot/internal/project"
	"github.com/bizmatters/cad-copilot/internal/snapshot"
	"github.com/bizmatters/cad-copilot/internal/store"
)

// Stack is the full service wired the way cmd/api wires it, with the offline
// backend, a SQLite store and no add-in attached yet.
type Stack struct {
	Server      *httptest.Server
	Store       *store.SQLiteStore
	Bridge      *host.Bridge
	JWT         *auth.JWTManager
	ProjectRoot string
}

// NewStack starts the service on an httptest server
func NewStack(t *testing.T) *Stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := NewTestSQLite(t)
	jm := auth.NewJWTManagerWithKey("integration-test-key")
	bridge := host.NewBridge()
	root := t.TempDir()

	orch := orchestration.NewOrchestrator(orchestration.Components{
		Snapshots: snapshot.NewBuilder(bridge),
		Assembler: codegen.NewAssembler(codegen.AssemblerOptions{}),
		Client:    orchestration.NewOfflineClient(),
		Runner:    executor.New(bridge, executor.Options{Timeout: 5 * time.Second, CaptureOutput: true}),
		Diagnoser: diagnostics.NewEngine(),
		Recorder:  st,
	}, orchestration.Options{GenerationTimeout: 5 * time.Second, MaxAttempts: 3})

	h := gateway.NewHandler(orch, st, jm, project.NewScanner(root, 10), time.Hour)
	router := gateway.NewRouter(h, gateway.NewHostConnector(bridge, jm), jm)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &Stack{Server: server, Store: st, Bridge: bridge, JWT: jm, ProjectRoot: root}
}

// AttachHost connects mem as the CAD add-in, authenticating with token.
// It returns once the bridge reports the session attached.
func (s *Stack) AttachHost(t *testing.T, mem *host.MemoryHost, token string) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/api/host/connect?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to attach host: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = host.NewDispatcher(mem, conn).Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Bridge.Attached() {
		if time.Now().After(deadline) {
			t.Fatal("host did not attach")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Login exchanges credentials for a token
func (s *Stack) Login(t *testing.T, fixture TestOperator) string {
	t.Helper()
	var resp models.LoginResponse
	status := s.Do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
		Email:    fixture.Email,
		Password: fixture.Password,
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("login for %s returned %d", fixture.Email, status)
	}
	return resp.Token
}

// Do sends a JSON request and decodes a JSON reply into out when out is non-nil
func (s *Stack) Do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s reply: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
