package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/cad-copilot/internal/auth"
	"github.com/bizmatters/cad-copilot/internal/models"
)

// HostSession accepts the add-in's connection and serves it until it closes
type HostSession interface {
	Serve(ctx context.Context, conn *websocket.Conn) error
	Attached() bool
}

// HostConnector handles the WebSocket endpoint the CAD add-in dials
type HostConnector struct {
	session    HostSession
	jwtManager *auth.JWTManager
	tracer     trace.Tracer
	upgrader   websocket.Upgrader
}

// NewHostConnector creates the add-in endpoint
func NewHostConnector(session HostSession, jwtManager *auth.JWTManager) *HostConnector {
	return &HostConnector{
		session:    session,
		jwtManager: jwtManager,
		tracer:     otel.Tracer("host-connector"),
		upgrader: websocket.Upgrader{
			// the add-in is a desktop client and sends no browser Origin
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Connect handles WebSocket /api/host/connect
// @Summary Attach a CAD add-in
// @Description WebSocket endpoint the CAD add-in dials; the session carries JSON-RPC document calls
// @Tags host
// @Param token query string false "JWT with the host role"
// @Param Authorization header string false "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /host/connect [get]
func (h *HostConnector) Connect(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "host_connector.connect")
	defer span.End()

	claims, err := h.validateToken(c)
	if err != nil {
		span.RecordError(err)
		slog.Warn("Host token validation failed", "error", err)
		respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Unauthorized")
		return
	}
	span.SetAttributes(attribute.String("operator.id", claims.OperatorID))

	if !claims.HasRole(models.RoleHost) {
		span.SetAttributes(attribute.Bool("access_denied", true))
		slog.Warn("Host connection without host role", "operator_id", claims.OperatorID)
		respondError(c, http.StatusForbidden, models.ErrCodeForbidden, "Forbidden")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		slog.Error("Failed to upgrade host connection", "error", err)
		return
	}

	slog.Info("CAD add-in attached", "operator_id", claims.OperatorID, "remote", c.ClientIP())
	if err := h.session.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		slog.Info("CAD add-in detached", "operator_id", claims.OperatorID, "reason", err)
		return
	}
	slog.Info("CAD add-in detached", "operator_id", claims.OperatorID)
}

// validateToken reads the JWT from the token query parameter or the
// Authorization header
func (h *HostConnector) validateToken(c *gin.Context) (*auth.Claims, error) {
	token := auth.RequestToken(c)
	if token == "" {
		return nil, errors.New("missing JWT token")
	}
	return h.jwtManager.ValidateToken(c.Request.Context(), token)
}

// IsHealthy reports whether an add-in is attached
func (h *HostConnector) IsHealthy() bool {
	return h.session.Attached()
}
