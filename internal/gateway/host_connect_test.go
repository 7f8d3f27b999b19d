package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
)

func TestHostConnector_Rejects(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/host/connect", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/host/connect?token=garbage", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("operator role only", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/host/connect", env.token(t, models.RoleOperator), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestHostConnector_Upgrades(t *testing.T) {
	env := newTestEnv(t)
	env.session.served = make(chan struct{})

	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/host/connect?token=" + env.token(t, models.RoleHost)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	select {
	case <-env.session.served:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not served")
	}
}

func TestHostConnector_BridgeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	bridge := host.NewBridge()
	h := NewHandler(env.pipeline, env.store, env.jwt, nil, time.Hour)
	router := NewRouter(h, NewHostConnector(bridge, env.jwt), env.jwt)

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/host/connect"
	header := http.Header{"Authorization": []string{"Bearer " + env.token(t, models.RoleHost)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)

	mem := host.NewMemoryHost()
	mem.Document.Name = "Gearbox"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = host.NewDispatcher(mem, conn).Serve(ctx) }()

	require.Eventually(t, bridge.Attached, 2*time.Second, 10*time.Millisecond)

	doc, err := bridge.ActiveDocument(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Gearbox", doc.Name)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
