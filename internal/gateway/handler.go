// Package gateway exposes the copilot pipeline over HTTP and accepts the CAD
// add-in's WebSocket session.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/cad-copilot/internal/auth"
	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/internal/orchestration"
	"github.com/bizmatters/cad-copilot/internal/project"
	"github.com/bizmatters/cad-copilot/internal/store"
)

// Pipeline is the orchestrator surface the handlers drive
type Pipeline interface {
	HandleMessage(ctx context.Context, userMessage string) (models.GenerationResult, error)
	Execute(ctx context.Context, code string) (models.ExecutionOutcome, error)
	Explain(ctx context.Context, code string) (string, error)
	Snapshot(ctx context.Context) (models.ContextSnapshot, error)
}

// Store is the persistence the handlers read
type Store interface {
	FindOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	pipeline   Pipeline
	store      Store
	jwtManager *auth.JWTManager
	scanner    *project.Scanner
	tokenTTL   time.Duration
	maxLines   int
}

// NewHandler creates a new gateway handler
func NewHandler(pipeline Pipeline, st Store, jwtManager *auth.JWTManager, scanner *project.Scanner, tokenTTL time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{
		pipeline:   pipeline,
		store:      st,
		jwtManager: jwtManager,
		scanner:    scanner,
		tokenTTL:   tokenTTL,
		maxLines:   100,
	}
}

// SetMaxReadLines bounds project file previews
func (h *Handler) SetMaxReadLines(n int) {
	if n > 0 {
		h.maxLines = n
	}
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	UserMessage string `json:"user_message" binding:"required"`
}

// CodeRequest is the body of POST /api/execute and POST /api/explain
type CodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ExplainResponse is the reply of POST /api/explain
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// FileResponse is the reply of GET /api/project/file
type FileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}

// requestContext carries the authenticated operator into the pipeline
func requestContext(c *gin.Context) context.Context {
	return orchestration.WithOperator(c.Request.Context(), c.GetString(auth.OperatorIDKey))
}

// pipelineError maps a pipeline error to a response
func pipelineError(c *gin.Context, err error) {
	if errors.Is(err, orchestration.ErrBusy) {
		respondError(c, http.StatusConflict, models.ErrCodeBusy, err.Error())
		return
	}
	slog.Error("Pipeline request failed", "path", c.Request.URL.Path, "error", err)
	respondError(c, http.StatusBadGateway, models.ErrCodeInternalError, err.Error())
}

// Login godoc
// @Summary Operator login
// @Description Authenticate an operator and return a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "Invalid request")
		return
	}

	op, err := h.store.FindOperatorByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Operator lookup failed", "email", req.Email, "error", err)
		} else {
			slog.Warn("Operator not found", "email", req.Email)
		}
		respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.HashedPassword), []byte(req.Password)); err != nil {
		slog.Warn("Invalid password", "email", req.Email)
		respondError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password")
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(c.Request.Context(), op.ID, op.Email, op.Roles, h.tokenTTL)
	if err != nil {
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Operator:  op.ToOperatorInfo(),
	})
}

// Chat godoc
// @Summary Generate CAD code
// @Description Capture the document context, ask the generation backend and parse its reply
// @Tags copilot
// @Accept json
// @Produce json
// @Param request body ChatRequest true "User request"
// @Success 200 {object} models.GenerationResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /chat [post]
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "user_message is required")
		return
	}

	result, err := h.pipeline.HandleMessage(requestContext(c), req.UserMessage)
	if err != nil {
		pipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Execute godoc
// @Summary Execute code in the active document
// @Description Run code inside one undoable transaction, retrying with diagnosed corrections
// @Tags copilot
// @Accept json
// @Produce json
// @Param request body CodeRequest true "Code to run"
// @Success 200 {object} models.ExecutionOutcome
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /execute [post]
func (h *Handler) Execute(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "code is required")
		return
	}

	outcome, err := h.pipeline.Execute(requestContext(c), req.Code)
	if err != nil {
		pipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Explain godoc
// @Summary Explain code
// @Description Ask the generation backend what a script does
// @Tags copilot
// @Accept json
// @Produce json
// @Param request body CodeRequest true "Code to explain"
// @Success 200 {object} ExplainResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /explain [post]
func (h *Handler) Explain(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "code is required")
		return
	}

	text, err := h.pipeline.Explain(requestContext(c), req.Code)
	if err != nil {
		pipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExplainResponse{Explanation: text})
}

// Context godoc
// @Summary Current document context
// @Description Capture a snapshot of the active document
// @Tags copilot
// @Produce json
// @Success 200 {object} models.ContextSnapshot
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /context [get]
func (h *Handler) Context(c *gin.Context) {
	snap, err := h.pipeline.Snapshot(requestContext(c))
	if err != nil {
		pipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Runs godoc
// @Summary Recent runs
// @Description List recorded generation and execution runs, newest first
// @Tags history
// @Produce json
// @Param limit query int false "Maximum number of runs" default(50)
// @Success 200 {array} models.RunRecord
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /runs [get]
func (h *Handler) Runs(c *gin.Context) {
	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to list runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}

// ProjectFiles godoc
// @Summary Project files
// @Description List files in the project folder by category
// @Tags project
// @Produce json
// @Success 200 {object} models.ProjectFiles
// @Security BearerAuth
// @Router /project/files [get]
func (h *Handler) ProjectFiles(c *gin.Context) {
	files, err := h.scanner.Scan()
	if err != nil {
		slog.Error("Failed to scan project", "error", err)
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to scan project")
		return
	}
	c.JSON(http.StatusOK, files)
}

// ProjectFile godoc
// @Summary Read a project file
// @Description Return the first lines of a project file
// @Tags project
// @Produce json
// @Param path query string true "Path relative to the project root"
// @Success 200 {object} FileResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /project/file [get]
func (h *Handler) ProjectFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "path is required")
		return
	}

	content, err := h.scanner.ReadFile(path, h.maxLines)
	if err != nil {
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, FileResponse{Path: path, Content: content})
}

// ProjectTools godoc
// @Summary Tool library
// @Description Load a CAM tool library from the project folder
// @Tags project
// @Produce json
// @Param path query string true "Tool library path relative to the project root"
// @Success 200 {array} models.Tool
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /project/tools [get]
func (h *Handler) ProjectTools(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, "path is required")
		return
	}
	c.JSON(http.StatusOK, h.scanner.ToolLibrary(path))
}
