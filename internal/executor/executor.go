// Package executor runs generated code against the active document inside
// a single undoable action.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bizmatters/cad-copilot/internal/host"
	"github.com/bizmatters/cad-copilot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("transactional-executor")

// TransactionName is the name of the undo step each run creates
const TransactionName = "AI Generated Code"

// DefaultTimeout bounds one run when no timeout is configured
const DefaultTimeout = 60 * time.Second

// DefaultHostCallTimeout bounds the document check, begin, commit and
// rollback calls around a run
const DefaultHostCallTimeout = 10 * time.Second

// State is the transaction state of one run
type State string

const (
	StateIdle            State = "idle"
	StateTransactionOpen State = "transaction_open"
	StateCommitted       State = "committed"
	StateRolledBack      State = "rolled_back"
	// StateUntransacted marks a run whose transaction could not be opened
	StateUntransacted State = "untransacted"
)

// Report is a run's result plus the state its transaction ended in
type Report struct {
	Result models.ExecutionResult
	State  State
}

// Options configure an Executor
type Options struct {
	Timeout         time.Duration
	HostCallTimeout time.Duration
	CaptureOutput   bool
	Bindings        []string
}

// Executor runs code through a host
type Executor struct {
	host   host.Host
	opts   Options
	tracer trace.Tracer
}

// New creates an executor. Zero timeouts use their defaults and empty
// bindings use host.DefaultBindings.
func New(h host.Host, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HostCallTimeout <= 0 {
		opts.HostCallTimeout = DefaultHostCallTimeout
	}
	if len(opts.Bindings) == 0 {
		opts.Bindings = host.DefaultBindings
	}
	return &Executor{host: h, opts: opts, tracer: tracer}
}

// Run executes code and returns its result
func (e *Executor) Run(ctx context.Context, code string) models.ExecutionResult {
	return e.Execute(ctx, code).Result
}

// Execute runs code in one transaction. Exactly one of commit or rollback
// happens for every transaction it opens. Output capture is restored on
// every exit path.
func (e *Executor) Execute(ctx context.Context, code string) Report {
	ctx, span := e.tracer.Start(ctx, "executor.run")
	defer span.End()

	report := Report{State: StateIdle}

	docCtx, docCancel := context.WithTimeout(ctx, e.opts.HostCallTimeout)
	_, err := e.host.ActiveDocument(docCtx)
	docCancel()
	if err != nil {
		msg := models.NoActiveDocument
		if !errors.Is(err, host.ErrNoDocument) {
			msg = hostFailure(err)
		}
		report.Result = models.ExecutionResult{Error: &msg}
		span.SetAttributes(attribute.String("executor.state", string(report.State)))
		return report
	}

	beginCtx, beginCancel := context.WithTimeout(ctx, e.opts.HostCallTimeout)
	tx, err := e.host.Begin(beginCtx, TransactionName)
	beginCancel()
	if errors.Is(err, context.DeadlineExceeded) {
		// an unresponsive host may still open the action later, so nothing runs
		msg := hostFailure(err)
		report.Result = models.ExecutionResult{Error: &msg}
		span.SetAttributes(attribute.String("executor.state", string(report.State)))
		return report
	}
	if err != nil {
		slog.Warn("could not open transaction, running without undo step", "error", err)
		report.State = StateUntransacted
	} else {
		report.State = StateTransactionOpen
	}

	stdout, stderr, elapsed, fault := e.runCaptured(ctx, code)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.HostCallTimeout)
	defer cancel()

	res := models.ExecutionResult{ExecutionTime: elapsed}
	if e.opts.CaptureOutput {
		res.Output = stdout.String()
	}

	if fault != nil {
		msg, stack := describe(fault)
		res.Error = &msg
		res.StackTrace = &stack
		if tx != nil {
			if err := tx.Rollback(closeCtx); err != nil {
				slog.Error("rollback failed", "error", err)
			}
			report.State = StateRolledBack
		}
		span.RecordError(fault)
	} else {
		res.Success = true
		if tx != nil {
			report.State = StateCommitted
			if err := tx.Commit(closeCtx); err != nil {
				// the host owns the action once commit was attempted; no rollback follows
				msg := fmt.Sprintf("commit failed: %v", err)
				res.Success = false
				res.Error = &msg
			}
		}
		if res.Success && e.opts.CaptureOutput && stderr.Len() > 0 {
			advisory := stderr.String()
			res.Error = &advisory
		}
	}

	report.Result = res
	span.SetAttributes(
		attribute.String("executor.state", string(report.State)),
		attribute.Bool("executor.success", res.Success),
		attribute.Int64("executor.duration_ms", elapsed.Milliseconds()),
	)
	return report
}

// runCaptured installs attempt-scoped output buffers and runs the code under
// the run timeout. A panic in the host adapter is returned as a fault.
func (e *Executor) runCaptured(ctx context.Context, code string) (stdout, stderr *bytes.Buffer, elapsed time.Duration, fault error) {
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	restore := e.host.Redirect(stdout, stderr)
	defer restore()

	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			fault = &panicFault{value: r, stack: string(debug.Stack())}
		}
	}()

	fault = e.host.Run(runCtx, code, e.opts.Bindings)
	if fault != nil && errors.Is(fault, context.DeadlineExceeded) && ctx.Err() == nil {
		fault = fmt.Errorf("execution timed out after %s: %w", e.opts.Timeout, fault)
	}
	return stdout, stderr, elapsed, fault
}

func hostFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("CAD host did not respond: %v", err)
	}
	return err.Error()
}

type panicFault struct {
	value any
	stack string
}

func (p *panicFault) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// describe extracts the message and trace of a fault
func describe(err error) (msg, stack string) {
	var se *host.ScriptError
	var pf *panicFault
	switch {
	case errors.As(err, &se):
		stack = se.Trace
		if stack == "" {
			stack = se.Message
		}
		return se.Message, stack
	case errors.As(err, &pf):
		return pf.Error(), pf.stack
	default:
		return err.Error(), err.Error()
	}
}
