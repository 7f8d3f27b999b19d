package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewJWTManager(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := NewJWTManager()
	assert.ErrorIs(t, err, ErrMissingSecret)

	t.Setenv("JWT_SECRET", "s3cret")
	jm, err := NewJWTManager()
	require.NoError(t, err)
	assert.Equal(t, "HS256", jm.algorithm)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	jm := NewJWTManagerWithKey("test-key")
	ctx := context.Background()

	token, expiresAt, err := jm.GenerateToken(ctx, "op-1", "dana@example.com", []string{models.RoleOperator}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := jm.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, "dana@example.com", claims.Email)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.True(t, claims.HasRole(models.RoleOperator))
	assert.False(t, claims.HasRole(models.RoleHost))

	refreshed, _, err := jm.RefreshToken(ctx, token, time.Minute)
	require.NoError(t, err)
	again, err := jm.ValidateToken(ctx, refreshed)
	require.NoError(t, err)
	assert.Equal(t, "op-1", again.OperatorID)
}

func TestJWTManager_Rejects(t *testing.T) {
	jm := NewJWTManagerWithKey("test-key")
	ctx := context.Background()

	t.Run("expired", func(t *testing.T) {
		token, _, err := jm.GenerateToken(ctx, "op-1", "a@b.c", nil, -time.Minute)
		require.NoError(t, err)
		_, err = jm.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		token, _, err := NewJWTManagerWithKey("other").GenerateToken(ctx, "op-1", "a@b.c", nil, time.Hour)
		require.NoError(t, err)
		_, err = jm.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := &Claims{OperatorID: "op-1", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
		require.NoError(t, err)
		_, err = jm.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jm.ValidateToken(ctx, "not.a.token")
		assert.Error(t, err)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("Bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken("Bear"))
	assert.Empty(t, BearerToken(""))
}

func newRouter(jm *JWTManager, role string) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{RequireAuth(jm)}
	if role != "" {
		handlers = append(handlers, RequireRole(role))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(OperatorIDKey))
	})
	r.GET("/protected", handlers...)
	return r
}

func TestRequireAuth(t *testing.T) {
	jm := NewJWTManagerWithKey("test-key")
	token, _, err := jm.GenerateToken(context.Background(), "op-9", "a@b.c", []string{models.RoleOperator}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "bearer header", target: "/protected", header: "Bearer " + token, wantStatus: http.StatusOK, wantBody: "op-9"},
		{name: "query token", target: "/protected?token=" + token, wantStatus: http.StatusOK, wantBody: "op-9"},
		{name: "missing", target: "/protected", wantStatus: http.StatusUnauthorized},
		{name: "invalid", target: "/protected", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	router := newRouter(jm, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), models.ErrCodeUnauthorized)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	jm := NewJWTManagerWithKey("test-key")
	ctx := context.Background()
	operatorToken, _, _ := jm.GenerateToken(ctx, "op-1", "a@b.c", []string{models.RoleOperator}, time.Hour)
	hostToken, _, _ := jm.GenerateToken(ctx, "host-1", "h@b.c", []string{models.RoleHost}, time.Hour)

	router := newRouter(jm, models.RoleHost)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeForbidden)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+hostToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "host-1", w.Body.String())
}
