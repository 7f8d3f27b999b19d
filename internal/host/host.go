// Package host defines the narrow view of the CAD application the pipeline
// depends on, and the adapters that provide it.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bizmatters/cad-copilot/internal/models"
)

var (
	// ErrHostUnavailable is returned when no CAD add-in is attached.
	ErrHostUnavailable = errors.New("no CAD host attached")
	// ErrNoDocument is returned when the host has no active document.
	ErrNoDocument = errors.New(models.NoActiveDocument)
)

// DefaultBindings are the names exposed to generated code: the application,
// the active document and design, and the host API namespaces.
var DefaultBindings = []string{"app", "doc", "design", "adsk", "core", "fusion", "cam"}

// ContextReader reads the state of the active document.
// ActiveDocument returns ErrNoDocument when nothing is open.
type ContextReader interface {
	ActiveDocument(ctx context.Context) (*models.DocumentInfo, error)
	Selection(ctx context.Context) (models.SelectionInfo, error)
	Parameters(ctx context.Context) ([]models.Parameter, error)
	Components(ctx context.Context) ([]models.ComponentInfo, error)
	Units(ctx context.Context) (string, error)
	Workspace(ctx context.Context) (string, error)
}

// Transaction is one named undoable action on the document
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionOpener opens undoable actions
type TransactionOpener interface {
	Begin(ctx context.Context, name string) (Transaction, error)
}

// CodeRunner runs generated code inside the host with the given binding names.
// Script faults are reported as *ScriptError.
type CodeRunner interface {
	Run(ctx context.Context, code string, bindings []string) error
}

// OutputCapture points the host's script output streams at the given writers.
// The returned func restores the previous targets.
type OutputCapture interface {
	Redirect(stdout, stderr io.Writer) (restore func())
}

// Host is everything the pipeline needs from the CAD application
type Host interface {
	ContextReader
	TransactionOpener
	CodeRunner
	OutputCapture
}

// ScriptError is a fault raised by generated code inside the host
type ScriptError struct {
	Message string
	Trace   string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// RPCError is an error reply from the host that is not a script fault
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("host error %s: %s", e.Code, e.Message)
}

// Error codes carried in RPCError.Code
const (
	CodeNoDocument   = "no_document"
	CodeScriptError  = "script_error"
	CodeUnknown      = "unknown_method"
	CodeInvalidInput = "invalid_params"
	CodeInternal     = "internal"
)

// asError maps a wire error onto the package's error values
func (e *RPCError) asError() error {
	switch e.Code {
	case CodeNoDocument:
		return ErrNoDocument
	case CodeScriptError:
		return &ScriptError{Message: e.Message, Trace: e.Trace}
	default:
		return e
	}
}

// toRPCError is the inverse of asError, used on the add-in side
func toRPCError(err error) *RPCError {
	var se *ScriptError
	var re *RPCError
	switch {
	case errors.Is(err, ErrNoDocument):
		return &RPCError{Code: CodeNoDocument, Message: models.NoActiveDocument}
	case errors.As(err, &se):
		return &RPCError{Code: CodeScriptError, Message: se.Message, Trace: se.Trace}
	case errors.As(err, &re):
		return re
	default:
		return &RPCError{Code: CodeInternal, Message: err.Error()}
	}
}
