package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/gateway"
	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/tests/helpers"
)

// TestPipelineIntegration drives the service end to end: an in-memory add-in
// attaches over the websocket and an operator generates, runs and reviews code.
func TestPipelineIntegration(t *testing.T) {
	stack := helpers.NewStack(t)
	helpers.CreateTestOperator(t, stack.Store, helpers.DefaultTestOperator)
	helpers.CreateTestOperator(t, stack.Store, helpers.DefaultHostOperator)

	operatorToken := stack.Login(t, helpers.DefaultTestOperator)
	hostToken := stack.Login(t, helpers.DefaultHostOperator)

	t.Run("Not Ready Without Add-in", func(t *testing.T) {
		status := stack.Do(t, http.MethodGet, "/ready", "", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	mem := host.NewMemoryHost()
	mem.Document.Name = "Bracket Study"
	mem.SetParameter("Width", "40", "mm")
	stack.AttachHost(t, mem, hostToken)

	t.Run("Ready With Add-in", func(t *testing.T) {
		status := stack.Do(t, http.MethodGet, "/ready", "", nil, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("Context Reflects Active Document", func(t *testing.T) {
		var snap models.ContextSnapshot
		status := stack.Do(t, http.MethodGet, "/api/context", operatorToken, nil, &snap)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, snap.Document)
		assert.Equal(t, "Bracket Study", snap.Document.Name)
		assert.Equal(t, []models.Parameter{{Name: "Width", Value: "40", Unit: "mm"}}, snap.Parameters)
		assert.Nil(t, snap.CaptureError)
	})

	var generated models.GenerationResult
	t.Run("Chat Uses Offline Template", func(t *testing.T) {
		status := stack.Do(t, http.MethodPost, "/api/chat", operatorToken,
			gateway.ChatRequest{UserMessage: "Create a parametric bracket"}, &generated)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Parametric Bracket", generated.Title)
		assert.Equal(t, models.ParseModeStructured, generated.ParseMode)
		assert.Contains(t, generated.Code, "BracketBase")
		assert.Nil(t, generated.Error)
	})

	t.Run("Execute Generated Code", func(t *testing.T) {
		var outcome models.ExecutionOutcome
		status := stack.Do(t, http.MethodPost, "/api/execute", operatorToken,
			gateway.CodeRequest{Code: generated.Code}, &outcome)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, outcome.Result.Success)
		assert.Equal(t, "Created BracketBase\n", outcome.Result.Output)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Nil(t, outcome.Diagnosis)
	})

	t.Run("Committed Changes Persist", func(t *testing.T) {
		var outcome models.ExecutionOutcome
		status := stack.Do(t, http.MethodPost, "/api/execute", operatorToken,
			gateway.CodeRequest{Code: helpers.ParameterScript}, &outcome)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, outcome.Result.Success)
		assert.Equal(t, "width set\n", outcome.Result.Output)
	})

	t.Run("Failed Run Rolls Back And Is Diagnosed", func(t *testing.T) {
		var outcome models.ExecutionOutcome
		status := stack.Do(t, http.MethodPost, "/api/execute", operatorToken,
			gateway.CodeRequest{Code: helpers.FailingScript}, &outcome)
		require.Equal(t, http.StatusOK, status)

		assert.False(t, outcome.Result.Success)
		require.NotNil(t, outcome.Result.Error)
		assert.Equal(t, "AttributeError: 'NoneType' object has no attribute 'sketches'", *outcome.Result.Error)
		require.NotNil(t, outcome.Diagnosis)
		assert.Equal(t, models.CategoryNullReference, outcome.Diagnosis.Category)
		assert.Nil(t, outcome.Diagnosis.CorrectedCode)
		assert.Equal(t, 1, outcome.Attempts)

		var snap models.ContextSnapshot
		require.Equal(t, http.StatusOK, stack.Do(t, http.MethodGet, "/api/context", operatorToken, nil, &snap))
		assert.Equal(t, []models.Parameter{{Name: "Width", Value: "40", Unit: "mm"}}, snap.Parameters)
	})

	t.Run("Explain Outlines Code", func(t *testing.T) {
		var resp gateway.ExplainResponse
		status := stack.Do(t, http.MethodPost, "/api/explain", operatorToken,
			gateway.CodeRequest{Code: "# make a plate\nx = 1"}, &resp)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, strings.HasPrefix(resp.Explanation, "The script has 2 lines"))
		assert.Contains(t, resp.Explanation, "- make a plate")
	})

	t.Run("Runs Are Recorded Newest First", func(t *testing.T) {
		var runs []models.RunRecord
		status := stack.Do(t, http.MethodGet, "/api/runs", operatorToken, nil, &runs)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, runs, 4)

		assert.Equal(t, models.RunKindExecution, runs[0].Kind)
		assert.False(t, runs[0].Success)
		require.NotNil(t, runs[0].Category)
		assert.Equal(t, string(models.CategoryNullReference), *runs[0].Category)

		last := runs[len(runs)-1]
		assert.Equal(t, models.RunKindGeneration, last.Kind)
		assert.Equal(t, "Create a parametric bracket", last.UserMessage)
		assert.Equal(t, "Parametric Bracket", last.Title)
		for _, run := range runs {
			assert.NotEmpty(t, run.OperatorID)
		}
	})
}

func TestRoleSeparation(t *testing.T) {
	stack := helpers.NewStack(t)
	helpers.CreateTestOperator(t, stack.Store, helpers.DefaultTestOperator)
	helpers.CreateTestOperator(t, stack.Store, helpers.DefaultHostOperator)

	operatorToken := stack.Login(t, helpers.DefaultTestOperator)
	hostToken := stack.Login(t, helpers.DefaultHostOperator)

	t.Run("Host Token Cannot Drive Pipeline", func(t *testing.T) {
		status := stack.Do(t, http.MethodPost, "/api/chat", hostToken,
			gateway.ChatRequest{UserMessage: "bracket"}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("Operator Token Cannot Attach", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(stack.Server.URL, "http") + "/api/host/connect?token=" + operatorToken
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.False(t, stack.Bridge.Attached())
	})

	t.Run("Wrong Password", func(t *testing.T) {
		status := stack.Do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{
			Email:    helpers.DefaultTestOperator.Email,
			Password: "not-the-password",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
