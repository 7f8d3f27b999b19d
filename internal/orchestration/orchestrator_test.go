package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/diagnostics"
	"github.com/bizmatters/cad-copilot/internal/executor"
	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/bizmatters/cad-copilot/internal/snapshot"
)

// MockClient returns a canned reply or blocks until released
type MockClient struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{}
	started  chan struct{}
	once     sync.Once
	payloads []codegen.Payload
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Generate(ctx context.Context, payload codegen.Payload) (string, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.reply, m.err
}

// MockRunner replays results and counts runs
type MockRunner struct {
	mu      sync.Mutex
	results []models.ExecutionResult
	codes   []string
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (m *MockRunner) Run(ctx context.Context, code string) models.ExecutionResult {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	i := len(m.codes) - 1
	m.mu.Unlock()
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		<-m.block
	}
	if i >= len(m.results) {
		return m.results[len(m.results)-1]
	}
	return m.results[i]
}

func (m *MockRunner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

// MockDiagnoser always offers a correction when fix is set
type MockDiagnoser struct {
	fix   *string
	calls int
}

func (m *MockDiagnoser) Analyze(errorText, code string) models.Diagnosis {
	m.calls++
	return models.Diagnosis{Category: models.CategoryUnknown, LikelyFixes: []string{"x"}, CorrectedCode: m.fix}
}

// MockRecorder keeps recorded runs
type MockRecorder struct {
	mu   sync.Mutex
	runs []models.RunRecord
	err  error
}

func (m *MockRecorder) RecordRun(ctx context.Context, run *models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return m.err
}

type staticCapturer struct{ snap models.ContextSnapshot }

func (s staticCapturer) Capture(ctx context.Context) models.ContextSnapshot { return s.snap }

func failed(msg string) models.ExecutionResult {
	return models.ExecutionResult{Success: false, Error: &msg}
}

func succeeded(out string) models.ExecutionResult {
	return models.ExecutionResult{Success: true, Output: out}
}

func ptr(s string) *string { return &s }

func newTestOrchestrator(client GenerationClient, runner Runner, diag Diagnoser, rec RunRecorder) *Orchestrator {
	c := Components{
		Snapshots: staticCapturer{snap: models.EmptySnapshot()},
		Client:    client,
		Runner:    runner,
		Diagnoser: diag,
	}
	if rec != nil {
		c.Recorder = rec
	}
	return NewOrchestrator(c, Options{GenerationTimeout: time.Second, MaxAttempts: 3})
}

func TestHandleMessage_Structured(t *testing.T) {
	client := &MockClient{reply: `{"title":"T","plan":["a","b"],"code":"x=1","notes":"n"}`}
	rec := &MockRecorder{}
	o := newTestOrchestrator(client, &MockRunner{}, &MockDiagnoser{}, rec)

	ctx := WithOperator(context.Background(), "op-7")
	result, err := o.HandleMessage(ctx, "make a bracket")
	require.NoError(t, err)

	assert.Equal(t, "T", result.Title)
	assert.Equal(t, []string{"a", "b"}, result.Plan)
	assert.Equal(t, "x=1", result.Code)
	assert.Equal(t, "n", result.Notes)
	assert.Equal(t, models.ParseModeStructured, result.ParseMode)
	assert.Nil(t, result.Error)

	require.Len(t, client.payloads, 1)
	assert.Equal(t, "make a bracket", client.payloads[0].UserMessage)
	assert.Equal(t, models.NoActiveDocument, client.payloads[0].Context)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, models.RunKindGeneration, rec.runs[0].Kind)
	assert.Equal(t, "op-7", rec.runs[0].OperatorID)
	assert.True(t, rec.runs[0].Success)
}

func TestHandleMessage_BackendFault(t *testing.T) {
	client := &MockClient{err: errors.New("connection refused")}
	runner := &MockRunner{}
	o := newTestOrchestrator(client, runner, &MockDiagnoser{}, &MockRecorder{err: errors.New("disk full")})

	result, err := o.HandleMessage(context.Background(), "make a bracket")
	require.NoError(t, err)

	require.NotNil(t, result.Error)
	assert.Equal(t, "generation failed: connection refused", *result.Error)
	assert.Equal(t, models.ErrorTitle, result.Title)
	assert.Empty(t, result.Code)
	assert.Empty(t, result.Plan)
	assert.Zero(t, runner.calls())
}

func TestHandleMessage_Timeout(t *testing.T) {
	mem := host.NewMemoryHost()
	client := &MockClient{block: make(chan struct{})}
	o := NewOrchestrator(Components{
		Snapshots: snapshot.NewBuilder(mem),
		Client:    client,
		Runner:    executor.New(mem, executor.Options{Timeout: time.Second}),
		Diagnoser: diagnostics.NewEngine(),
	}, Options{GenerationTimeout: 20 * time.Millisecond})

	result, err := o.HandleMessage(context.Background(), "make a bracket")
	require.NoError(t, err)

	require.NotNil(t, result.Error)
	assert.Equal(t, "generation timed out after 20ms", *result.Error)
	assert.Empty(t, result.Code)
	assert.Empty(t, mem.Undo)
	assert.Zero(t, mem.Rollbacks)
}

func TestHandleMessage_PlaintextReply(t *testing.T) {
	o := newTestOrchestrator(&MockClient{reply: "I cannot help with that."}, &MockRunner{}, &MockDiagnoser{}, nil)

	result, err := o.HandleMessage(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, models.ParseModePlaintext, result.ParseMode)
	assert.Nil(t, result.Error)
}

func TestExecute_SuccessFirstTry(t *testing.T) {
	runner := &MockRunner{results: []models.ExecutionResult{succeeded("done\n")}}
	diag := &MockDiagnoser{fix: ptr("fixed()")}
	o := newTestOrchestrator(&MockClient{}, runner, diag, nil)

	outcome, err := o.Execute(context.Background(), "code()")
	require.NoError(t, err)

	assert.True(t, outcome.Result.Success)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Nil(t, outcome.Diagnosis)
	assert.Zero(t, diag.calls)
}

func TestExecute_NoCorrectionStops(t *testing.T) {
	runner := &MockRunner{results: []models.ExecutionResult{failed("TypeError: bad")}}
	rec := &MockRecorder{}
	o := newTestOrchestrator(&MockClient{}, runner, diagnostics.NewEngine(), rec)

	outcome, err := o.Execute(context.Background(), "code()")
	require.NoError(t, err)

	assert.False(t, outcome.Result.Success)
	assert.Equal(t, 1, outcome.Attempts)
	require.NotNil(t, outcome.Diagnosis)
	assert.Equal(t, models.CategoryTypeMismatch, outcome.Diagnosis.Category)
	assert.Equal(t, 1, runner.calls())

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "type_mismatch", *rec.runs[0].Category)
	assert.Nil(t, rec.runs[0].Patch)
}

func TestExecute_DiagnosesErrorMessageNotTrace(t *testing.T) {
	msg := "ValueError: thickness must be positive"
	trace := "Traceback (most recent call last):\n  File \"<generated>\", line 4, in <module>\n    if body is None:\n" + msg
	runner := &MockRunner{results: []models.ExecutionResult{{Error: &msg, StackTrace: &trace}}}
	o := newTestOrchestrator(&MockClient{}, runner, diagnostics.NewEngine(), nil)

	outcome, err := o.Execute(context.Background(), "code()")
	require.NoError(t, err)

	require.NotNil(t, outcome.Diagnosis)
	assert.Equal(t, models.CategoryUnknown, outcome.Diagnosis.Category)
	assert.Equal(t, []string{diagnostics.FixInspectTrace}, outcome.Diagnosis.LikelyFixes)
	require.NotNil(t, outcome.Result.StackTrace)
	assert.Contains(t, *outcome.Result.StackTrace, "if body is None:")
}

func TestExecute_RetryBound(t *testing.T) {
	runner := &MockRunner{results: []models.ExecutionResult{failed("boom")}}
	diag := &MockDiagnoser{fix: ptr("fixed()")}
	o := newTestOrchestrator(&MockClient{}, runner, diag, nil)

	outcome, err := o.Execute(context.Background(), "code()")
	require.NoError(t, err)

	assert.False(t, outcome.Result.Success)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, runner.calls())
	assert.Equal(t, []string{"code()", "fixed()", "fixed()"}, runner.codes)
}

func TestExecute_CorrectionSucceeds(t *testing.T) {
	runner := &MockRunner{results: []models.ExecutionResult{failed("NoneType"), succeeded("ok\n")}}
	rec := &MockRecorder{}
	o := newTestOrchestrator(&MockClient{}, runner, &MockDiagnoser{fix: ptr("fixed()\n")}, rec)

	outcome, err := o.Execute(context.Background(), "broken()\n")
	require.NoError(t, err)

	assert.True(t, outcome.Result.Success)
	assert.Equal(t, 2, outcome.Attempts)
	require.NotNil(t, outcome.Diagnosis, "diagnosis of the last failure is kept")

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.True(t, run.Success)
	assert.Equal(t, "broken()\n", run.Code)
	require.NotNil(t, run.Patch)
	patched, err := codegen.ApplyPatch("broken()\n", *run.Patch)
	require.NoError(t, err)
	assert.Equal(t, "fixed()\n", patched)
}

func TestExecute_BusyRejection(t *testing.T) {
	runner := &MockRunner{
		results: []models.ExecutionResult{succeeded("")},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	o := newTestOrchestrator(&MockClient{reply: "x"}, runner, &MockDiagnoser{}, nil)

	done := make(chan models.ExecutionOutcome)
	go func() {
		outcome, _ := o.Execute(context.Background(), "first()")
		done <- outcome
	}()
	<-runner.started

	_, err := o.Execute(context.Background(), "second()")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = o.HandleMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = o.Explain(context.Background(), "x")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = o.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(runner.block)
	first := <-done
	assert.True(t, first.Result.Success)
	assert.Equal(t, []string{"first()"}, runner.codes)

	// the slot is free again
	_, err = o.Execute(context.Background(), "third()")
	assert.NoError(t, err)
}

func TestExecute_MemoryHost(t *testing.T) {
	mem := host.NewMemoryHost()
	o := NewOrchestrator(Components{
		Snapshots: snapshot.NewBuilder(mem),
		Client:    NewOfflineClient(),
		Runner:    executor.New(mem, executor.Options{Timeout: time.Second, CaptureOutput: true}),
		Diagnoser: diagnostics.NewEngine(),
	}, Options{})

	outcome, err := o.Execute(context.Background(), "raise AttributeError(\"'Sketch' object has no attribute 'lines'\")")
	require.NoError(t, err)

	assert.False(t, outcome.Result.Success)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, models.CategoryMissingAttribute, outcome.Diagnosis.Category)
	assert.Equal(t, 1, mem.Rollbacks)
}

func TestExplain(t *testing.T) {
	client := &MockClient{reply: "  It drills three holes.\n"}
	o := newTestOrchestrator(client, &MockRunner{}, &MockDiagnoser{}, nil)

	text, err := o.Explain(context.Background(), "holes()")
	require.NoError(t, err)
	assert.Equal(t, "It drills three holes.", text)
	require.Len(t, client.payloads, 1)
	assert.Equal(t, codegen.TaskExplain, client.payloads[0].Task)

	client.err = errors.New("unreachable")
	_, err = o.Explain(context.Background(), "holes()")
	assert.ErrorContains(t, err, "unreachable")
}

func TestSnapshot(t *testing.T) {
	mem := host.NewMemoryHost()
	o := NewOrchestrator(Components{Snapshots: snapshot.NewBuilder(mem), Client: NewOfflineClient()}, Options{})

	snap, err := o.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Document)
	assert.Equal(t, "Untitled", snap.Document.Name)
	assert.Equal(t, "offline", o.Backend())
}

func TestOperatorContext(t *testing.T) {
	assert.Empty(t, OperatorFrom(context.Background()))
	assert.Equal(t, "op", OperatorFrom(WithOperator(context.Background(), "op")))
}
