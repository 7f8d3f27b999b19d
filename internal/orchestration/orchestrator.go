// Package orchestration drives the copilot pipeline: context capture, prompt
// assembly, generation, parsing, and transactional execution with bounded
// diagnose-and-retry.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/cad-copilot/internal/codegen"
	"github.com/bizmatters/cad-copilot/internal/metrics"
	"github.com/bizmatters/cad-copilot/internal/models"
)

// ErrBusy is returned when a request arrives while another holds the document
var ErrBusy = errors.New("another request is in progress for this document")

// DefaultMaxAttempts is one run plus two corrections
const DefaultMaxAttempts = 3

const recordTimeout = 5 * time.Second

// ContextCapturer produces the document snapshot for a request
type ContextCapturer interface {
	Capture(ctx context.Context) models.ContextSnapshot
}

// Runner executes code inside one transaction
type Runner interface {
	Run(ctx context.Context, code string) models.ExecutionResult
}

// Diagnoser classifies an execution failure
type Diagnoser interface {
	Analyze(errorText, code string) models.Diagnosis
}

// RunRecorder persists completed calls
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.RunRecord) error
}

// Components are the collaborators an Orchestrator is built from.
// Recorder and Metrics are optional.
type Components struct {
	Snapshots ContextCapturer
	Assembler *codegen.Assembler
	Client    GenerationClient
	Runner    Runner
	Diagnoser Diagnoser
	Recorder  RunRecorder
	Metrics   *metrics.PipelineMetrics
}

// Options bound the pipeline
type Options struct {
	// GenerationTimeout bounds each generation call; zero means the executor default
	GenerationTimeout time.Duration
	// MaxAttempts is the total number of runs per execute request
	MaxAttempts int
}

// Orchestrator serialises requests against one document. Build it once at
// startup and share it between handlers.
type Orchestrator struct {
	snapshots   ContextCapturer
	assembler   *codegen.Assembler
	client      GenerationClient
	runner      Runner
	diagnoser   Diagnoser
	recorder    RunRecorder
	metrics     *metrics.PipelineMetrics
	tracer      trace.Tracer
	slot        chan struct{}
	genTimeout  time.Duration
	maxAttempts int
}

// NewOrchestrator creates an orchestrator from its collaborators
func NewOrchestrator(c Components, opts Options) *Orchestrator {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	assembler := c.Assembler
	if assembler == nil {
		assembler = codegen.NewAssembler(codegen.AssemblerOptions{})
	}
	return &Orchestrator{
		snapshots:   c.Snapshots,
		assembler:   assembler,
		client:      c.Client,
		runner:      c.Runner,
		diagnoser:   c.Diagnoser,
		recorder:    c.Recorder,
		metrics:     c.Metrics,
		tracer:      otel.Tracer("orchestrator"),
		slot:        make(chan struct{}, 1),
		genTimeout:  opts.GenerationTimeout,
		maxAttempts: opts.MaxAttempts,
	}
}

// Backend names the generation backend in use
func (o *Orchestrator) Backend() string {
	return o.client.Name()
}

// acquire takes the document slot without waiting
func (o *Orchestrator) acquire(ctx context.Context, kind string) error {
	select {
	case o.slot <- struct{}{}:
		if o.metrics != nil {
			o.metrics.RecordRequestStarted(ctx, kind)
		}
		return nil
	default:
		if o.metrics != nil {
			o.metrics.RecordBusyRejection(ctx, kind)
		}
		slog.Warn("Rejected request, document busy", "kind", kind)
		return ErrBusy
	}
}

func (o *Orchestrator) release(ctx context.Context, kind string) {
	<-o.slot
	if o.metrics != nil {
		o.metrics.RecordRequestFinished(ctx, kind)
	}
}

// Snapshot captures the current document context under the slot
func (o *Orchestrator) Snapshot(ctx context.Context) (models.ContextSnapshot, error) {
	if err := o.acquire(ctx, "context"); err != nil {
		return models.ContextSnapshot{}, err
	}
	defer o.release(ctx, "context")
	return o.snapshots.Capture(ctx), nil
}

// HandleMessage turns a user request into generated code. Stage faults come
// back inside the result; the only error is ErrBusy.
func (o *Orchestrator) HandleMessage(ctx context.Context, userMessage string) (models.GenerationResult, error) {
	if err := o.acquire(ctx, "generate"); err != nil {
		return models.GenerationResult{}, err
	}
	defer o.release(ctx, "generate")

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle_message")
	defer span.End()
	span.SetAttributes(attribute.String("backend", o.client.Name()))

	start := time.Now()
	result := o.generate(ctx, userMessage)
	elapsed := time.Since(start)

	failed := result.Error != nil
	if failed {
		span.SetAttributes(attribute.String("error", *result.Error))
		slog.Warn("Generation failed", "backend", o.client.Name(), "error", *result.Error)
	} else {
		slog.Info("Generated code", "backend", o.client.Name(), "parse_mode", result.ParseMode, "title", result.Title)
	}
	if o.metrics != nil {
		o.metrics.RecordGeneration(ctx, o.client.Name(), string(result.ParseMode), failed, elapsed)
	}

	o.record(ctx, &models.RunRecord{
		Kind:        models.RunKindGeneration,
		OperatorID:  OperatorFrom(ctx),
		UserMessage: userMessage,
		Title:       result.Title,
		Code:        result.Code,
		Success:     !failed,
		Error:       result.Error,
		DurationMS:  elapsed.Milliseconds(),
	})
	return result, nil
}

// generate runs capture, assembly, the generation call and parsing
func (o *Orchestrator) generate(ctx context.Context, userMessage string) (result models.GenerationResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in generation pipeline", "panic", r)
			result = models.ErrorResult(fmt.Sprintf("internal error: %v", r))
		}
	}()

	snap := o.snapshots.Capture(ctx)
	payload := o.assembler.Build(userMessage, snap)
	if len(payload.Dropped) > 0 {
		slog.Info("Trimmed context to fit prompt budget", "dropped", payload.Dropped)
	}

	raw, err := o.callBackend(ctx, payload)
	if err != nil {
		return models.ErrorResult(err.Error())
	}
	return codegen.Parse(raw)
}

// callBackend bounds one generation call by the generation timeout
func (o *Orchestrator) callBackend(ctx context.Context, payload codegen.Payload) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()

	raw, err := o.client.Generate(genCtx, payload)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generation timed out after %s", o.genTimeout)
		}
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return raw, nil
}

// Execute runs code, diagnosing failures and re-running corrected code until
// it succeeds, no correction is offered, or the attempt budget is spent.
func (o *Orchestrator) Execute(ctx context.Context, code string) (models.ExecutionOutcome, error) {
	if err := o.acquire(ctx, "execute"); err != nil {
		return models.ExecutionOutcome{}, err
	}
	defer o.release(ctx, "execute")

	ctx, span := o.tracer.Start(ctx, "orchestrator.execute")
	defer span.End()

	start := time.Now()
	state := models.RetryState{MaxAttempts: o.maxAttempts}
	current := code
	var (
		result    models.ExecutionResult
		diagnosis *models.Diagnosis
		patch     *string
	)

	for {
		state.AttemptCount++
		result = o.runner.Run(ctx, current)
		if o.metrics != nil {
			o.metrics.RecordAttempt(ctx, state.AttemptCount, result.Success, result.ExecutionTime)
		}
		if result.Success {
			break
		}

		state.LastError = result.Error
		d := o.diagnoser.Analyze(deref(result.Error), current)
		diagnosis = &d
		slog.Warn("Execution attempt failed",
			"attempt", state.AttemptCount,
			"max_attempts", state.MaxAttempts,
			"category", d.Category,
			"error", deref(result.Error),
		)

		if d.CorrectedCode == nil || state.Exhausted() || ctx.Err() != nil {
			break
		}
		p := codegen.Patch(current, *d.CorrectedCode)
		patch = &p
		current = *d.CorrectedCode
	}

	span.SetAttributes(
		attribute.Int("attempts", state.AttemptCount),
		attribute.Bool("success", result.Success),
	)

	var category *string
	if diagnosis != nil {
		c := string(diagnosis.Category)
		category = &c
	}
	if o.metrics != nil {
		o.metrics.RecordExecution(ctx, result.Success, deref(category), state.AttemptCount)
	}
	o.record(ctx, &models.RunRecord{
		Kind:       models.RunKindExecution,
		OperatorID: OperatorFrom(ctx),
		Code:       code,
		Success:    result.Success,
		Error:      result.Error,
		Attempts:   state.AttemptCount,
		Category:   category,
		Patch:      patch,
		DurationMS: time.Since(start).Milliseconds(),
	})

	return models.ExecutionOutcome{
		Result:    result,
		Diagnosis: diagnosis,
		Attempts:  state.AttemptCount,
	}, nil
}

// Explain asks the generation backend to describe code
func (o *Orchestrator) Explain(ctx context.Context, code string) (string, error) {
	if err := o.acquire(ctx, "explain"); err != nil {
		return "", err
	}
	defer o.release(ctx, "explain")

	ctx, span := o.tracer.Start(ctx, "orchestrator.explain")
	defer span.End()

	raw, err := o.callBackend(ctx, codegen.ExplainPayload(code))
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// record persists a run; failures are logged only
func (o *Orchestrator) record(ctx context.Context, run *models.RunRecord) {
	if o.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := o.recorder.RecordRun(recordCtx, run); err != nil {
		slog.Error("Failed to record run", "kind", run.Kind, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type operatorKey struct{}

// WithOperator tags ctx with the operator making the request
func WithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operatorID)
}

// OperatorFrom returns the operator set by WithOperator, or ""
func OperatorFrom(ctx context.Context) string {
	id, _ := ctx.Value(operatorKey{}).(string)
	return id
}
