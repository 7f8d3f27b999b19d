package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/bizmatters/cad-copilot/internal/models"
)

// Interpreter runs code against a MemoryHost document
type Interpreter func(ctx context.Context, code string, env *ScriptEnv) error

// ScriptEnv is what an Interpreter may touch
type ScriptEnv struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Bindings []string
	Host     *MemoryHost
}

// MemoryHost is an in-memory CAD document. It backs the host simulator and
// tests. Faults maps a method name (as in the bridge protocol) to the error
// that method should return.
type MemoryHost struct {
	mu sync.Mutex

	Document    *models.DocumentInfo
	Sel         models.SelectionInfo
	Params      []models.Parameter
	Comps       []models.ComponentInfo
	UnitSystem  string
	WorkspaceID string

	Faults      map[string]error
	Interpreter Interpreter

	stdout io.Writer
	stderr io.Writer

	// Undo holds the names of committed actions, newest last
	Undo      []string
	Rollbacks int
}

// NewMemoryHost returns a host with one open document and the line interpreter
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		Document: &models.DocumentInfo{
			Name:              "Untitled",
			RootComponentName: "Untitled v1",
		},
		Sel:         models.SelectionInfo{Entities: []models.SelectedEntity{}},
		Params:      []models.Parameter{},
		Comps:       []models.ComponentInfo{},
		UnitSystem:  models.DefaultUnits,
		WorkspaceID: models.DefaultWorkspace,
		Faults:      map[string]error{},
		Interpreter: LineInterpreter,
		stdout:      io.Discard,
		stderr:      io.Discard,
	}
}

func (h *MemoryHost) fault(method string) error {
	if h.Faults == nil {
		return nil
	}
	return h.Faults[method]
}

// SetParameter creates or updates a user parameter
func (h *MemoryHost) SetParameter(name, value, unit string) {
	for i, p := range h.Params {
		if p.Name == name {
			h.Params[i].Value = value
			h.Params[i].Unit = unit
			return
		}
	}
	h.Params = append(h.Params, models.Parameter{Name: name, Value: value, Unit: unit})
}

func (h *MemoryHost) ActiveDocument(ctx context.Context) (*models.DocumentInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodActiveDocument); err != nil {
		return nil, err
	}
	if h.Document == nil {
		return nil, ErrNoDocument
	}
	doc := *h.Document
	return &doc, nil
}

func (h *MemoryHost) Selection(ctx context.Context) (models.SelectionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodSelection); err != nil {
		return models.SelectionInfo{}, err
	}
	sel := models.SelectionInfo{Count: h.Sel.Count, Entities: append([]models.SelectedEntity{}, h.Sel.Entities...)}
	return sel, nil
}

func (h *MemoryHost) Parameters(ctx context.Context) ([]models.Parameter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodParameters); err != nil {
		return nil, err
	}
	return append([]models.Parameter{}, h.Params...), nil
}

func (h *MemoryHost) Components(ctx context.Context) ([]models.ComponentInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodComponents); err != nil {
		return nil, err
	}
	return append([]models.ComponentInfo{}, h.Comps...), nil
}

func (h *MemoryHost) Units(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodUnits); err != nil {
		return "", err
	}
	return h.UnitSystem, nil
}

func (h *MemoryHost) Workspace(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodWorkspace); err != nil {
		return "", err
	}
	return h.WorkspaceID, nil
}

// Begin snapshots the parameter table; Rollback restores it
func (h *MemoryHost) Begin(ctx context.Context, name string) (Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(MethodBegin); err != nil {
		return nil, err
	}
	if h.Document == nil {
		return nil, ErrNoDocument
	}
	return &memoryTransaction{
		host:   h,
		name:   name,
		params: append([]models.Parameter{}, h.Params...),
	}, nil
}

type memoryTransaction struct {
	host   *MemoryHost
	name   string
	params []models.Parameter
	closed bool
}

var errTransactionClosed = errors.New("transaction already closed")

func (t *memoryTransaction) Commit(ctx context.Context) error {
	t.host.mu.Lock()
	defer t.host.mu.Unlock()
	if t.closed {
		return errTransactionClosed
	}
	if err := t.host.fault(MethodCommit); err != nil {
		return err
	}
	t.closed = true
	t.host.Undo = append(t.host.Undo, t.name)
	return nil
}

func (t *memoryTransaction) Rollback(ctx context.Context) error {
	t.host.mu.Lock()
	defer t.host.mu.Unlock()
	if t.closed {
		return errTransactionClosed
	}
	t.closed = true
	t.host.Params = t.params
	t.host.Rollbacks++
	return nil
}

// Run hands code to the interpreter. The host lock is not held while the
// interpreter runs so it can call back into the document.
func (h *MemoryHost) Run(ctx context.Context, code string, bindings []string) error {
	h.mu.Lock()
	if err := h.fault(MethodRun); err != nil {
		h.mu.Unlock()
		return err
	}
	env := &ScriptEnv{Stdout: h.stdout, Stderr: h.stderr, Bindings: bindings, Host: h}
	interp := h.Interpreter
	h.mu.Unlock()

	if interp == nil {
		return &ScriptError{Message: "no interpreter configured"}
	}
	return interp(ctx, code, env)
}

func (h *MemoryHost) Redirect(stdout, stderr io.Writer) func() {
	h.mu.Lock()
	prevOut, prevErr := h.stdout, h.stderr
	h.stdout, h.stderr = stdout, stderr
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.stdout, h.stderr = prevOut, prevErr
		h.mu.Unlock()
	}
}

var (
	printCall = regexp.MustCompile(`^print\((?:f?["'](.*)["'])?\)$`)
	setParam  = regexp.MustCompile(`^set_parameter\(\s*["']([^"']+)["']\s*,\s*["']([^"']*)["']\s*(?:,\s*["']([^"']*)["']\s*)?\)$`)
	raiseCall = regexp.MustCompile(`^raise\s+(\w+)(?:\((?:["'](.*)["'])?\))?$`)
	warnCall  = regexp.MustCompile(`^warn\(\s*["'](.*)["']\s*\)$`)
)

// LineInterpreter understands a handful of statements, one per line:
// print("text"), warn("text") to stderr, set_parameter("name", "value", "unit")
// and raise Name("message"). Indented lines sit inside blocks it cannot
// evaluate and are skipped along with everything else it does not know.
func LineInterpreter(ctx context.Context, code string, env *ScriptEnv) error {
	for n, raw := range strings.Split(code, "\n") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t") {
			continue
		}
		line := strings.TrimSpace(raw)
		switch {
		case printCall.MatchString(line):
			m := printCall.FindStringSubmatch(line)
			fmt.Fprintln(env.Stdout, m[1])
		case warnCall.MatchString(line):
			m := warnCall.FindStringSubmatch(line)
			fmt.Fprintln(env.Stderr, m[1])
		case setParam.MatchString(line):
			m := setParam.FindStringSubmatch(line)
			env.Host.mu.Lock()
			env.Host.SetParameter(m[1], m[2], m[3])
			env.Host.mu.Unlock()
		case raiseCall.MatchString(line):
			m := raiseCall.FindStringSubmatch(line)
			msg := m[1]
			if m[2] != "" {
				msg = m[1] + ": " + m[2]
			}
			return &ScriptError{
				Message: msg,
				Trace:   fmt.Sprintf("Traceback (most recent call last):\n  File \"<generated>\", line %d, in <module>\n%s", n+1, msg),
			}
		}
	}
	return nil
}
