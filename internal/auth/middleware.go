package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/cad-copilot/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth
const (
	OperatorIDKey = "operator_id"
	EmailKey      = "email"
	RolesKey      = "roles"
	ClaimsKey     = "claims"
)

// BearerToken extracts the token from "Authorization: Bearer <token>"
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequestToken reads the bearer token, falling back to the token query
// parameter for clients that cannot set headers on a WebSocket upgrade
func RequestToken(c *gin.Context) string {
	if token := BearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return c.Query("token")
}

// RequireAuth is a Gin middleware that validates JWT tokens
func RequireAuth(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token := RequestToken(c)
		if token == "" {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Missing or invalid authorization header",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			slog.Warn("Invalid token", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Invalid or expired token",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("operator.id", claims.OperatorID),
		)

		c.Set(OperatorIDKey, claims.OperatorID)
		c.Set(EmailKey, claims.Email)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		slog.Debug("Operator authenticated",
			"operator_id", claims.OperatorID,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.Next()
	}
}

// RequireRole is a Gin middleware that checks the authenticated caller has role.
// It must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role")
		defer span.End()

		span.SetAttributes(attribute.String("required.role", role))

		value, exists := c.Get(ClaimsKey)
		claims, ok := value.(*Claims)
		if !exists || !ok {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Error: "Caller roles not found",
				Code:  models.ErrCodeForbidden,
			})
			return
		}

		if !claims.HasRole(role) {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			slog.Warn("Insufficient permissions", "operator_id", claims.OperatorID, "required_role", role)
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Error: "Insufficient permissions",
				Code:  models.ErrCodeForbidden,
			})
			return
		}

		span.SetAttributes(attribute.Bool("auth.role_authorized", true))
		c.Next()
	}
}
