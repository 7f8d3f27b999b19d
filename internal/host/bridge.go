package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bizmatters/cad-copilot/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var bridgeTracer = otel.Tracer("host-bridge")

// CancelGrace bounds how long a cancelled run may take to report back
// before the call gives up on it
const CancelGrace = 5 * time.Second

// Bridge implements Host by forwarding calls to the CAD add-in attached over
// a websocket. Only one add-in session is active at a time; attaching a new
// one closes the previous.
type Bridge struct {
	mu      sync.Mutex
	session *session
	tracer  trace.Tracer

	cancelGrace time.Duration

	outMu  sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewBridge creates a bridge with no add-in attached
func NewBridge() *Bridge {
	return &Bridge{
		tracer:      bridgeTracer,
		cancelGrace: CancelGrace,
		stdout:      io.Discard,
		stderr:      io.Discard,
	}
}

// Attached reports whether an add-in session is live
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil
}

// Serve runs the add-in session on conn until the connection closes or ctx
// is cancelled. It blocks, so callers run it from the websocket handler.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn) error {
	s := &session{
		id:      uuid.New().String(),
		conn:    conn,
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	previous := b.session
	b.session = s
	b.mu.Unlock()

	if previous != nil {
		slog.Warn("replacing attached CAD host session", "previous_session", previous.id, "session", s.id)
		previous.close()
	}
	slog.Info("CAD host attached", "session", s.id)

	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	err := b.readLoop(s)

	s.close()
	b.mu.Lock()
	if b.session == s {
		b.session = nil
	}
	b.mu.Unlock()
	slog.Info("CAD host detached", "session", s.id, "error", err)
	return err
}

func (b *Bridge) readLoop(s *session) error {
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			return fmt.Errorf("failed to read from CAD host: %w", err)
		}

		if msg.ID == "" {
			b.handleNotification(msg)
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.pendingMu.Unlock()
		if !ok {
			slog.Warn("reply for unknown call", "session", s.id, "id", msg.ID)
			continue
		}
		ch <- msg
	}
}

func (b *Bridge) handleNotification(msg Message) {
	if msg.Method != NotifyOutput {
		slog.Debug("ignoring host notification", "method", msg.Method)
		return
	}
	var out outputParams
	if err := json.Unmarshal(msg.Params, &out); err != nil {
		slog.Warn("malformed output notification", "error", err)
		return
	}
	b.writeOutput(out.Stream, out.Text)
}

func (b *Bridge) writeOutput(stream, text string) {
	if text == "" {
		return
	}
	b.outMu.Lock()
	defer b.outMu.Unlock()
	w := b.stdout
	if stream == "stderr" {
		w = b.stderr
	}
	_, _ = io.WriteString(w, text)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *session) write(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// call sends one request and waits for its reply. out may be nil.
func (b *Bridge) call(ctx context.Context, method string, params, out any) error {
	ctx, span := b.tracer.Start(ctx, "host_bridge.call")
	defer span.End()
	span.SetAttributes(attribute.String("host.method", method))

	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return ErrHostUnavailable
	}

	req := Message{ID: uuid.New().String(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		req.Params = raw
	}

	reply := make(chan Message, 1)
	s.pendingMu.Lock()
	s.pending[req.ID] = reply
	s.pendingMu.Unlock()
	forget := func() {
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
	}

	if err := s.write(req); err != nil {
		forget()
		span.RecordError(err)
		return fmt.Errorf("failed to send %s to CAD host: %w", method, err)
	}

	select {
	case msg := <-reply:
		if msg.Error != nil {
			return msg.Error.asError()
		}
		if out != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		if method == MethodRun {
			cancel := Message{Method: MethodCancel}
			cancel.Params, _ = json.Marshal(cancelParams{ID: req.ID})
			if err := s.write(cancel); err == nil {
				b.awaitCancelled(s, req.ID, reply)
			}
		}
		forget()
		return ctx.Err()
	case <-s.done:
		forget()
		return ErrHostUnavailable
	}
}

// awaitCancelled waits for a cancelled run to reply so its late output still
// lands in the caller's buffers and the transaction is not closed under it
func (b *Bridge) awaitCancelled(s *session, id string, reply <-chan Message) {
	timer := time.NewTimer(b.cancelGrace)
	defer timer.Stop()
	select {
	case <-reply:
	case <-s.done:
	case <-timer.C:
		slog.Warn("cancelled script still running on CAD host", "session", s.id, "id", id, "grace", b.cancelGrace)
	}
}

// ActiveDocument implements ContextReader
func (b *Bridge) ActiveDocument(ctx context.Context) (*models.DocumentInfo, error) {
	var doc models.DocumentInfo
	if err := b.call(ctx, MethodActiveDocument, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Selection implements ContextReader
func (b *Bridge) Selection(ctx context.Context) (models.SelectionInfo, error) {
	var sel models.SelectionInfo
	err := b.call(ctx, MethodSelection, nil, &sel)
	return sel, err
}

// Parameters implements ContextReader
func (b *Bridge) Parameters(ctx context.Context) ([]models.Parameter, error) {
	var params []models.Parameter
	err := b.call(ctx, MethodParameters, nil, &params)
	return params, err
}

// Components implements ContextReader
func (b *Bridge) Components(ctx context.Context) ([]models.ComponentInfo, error) {
	var comps []models.ComponentInfo
	err := b.call(ctx, MethodComponents, nil, &comps)
	return comps, err
}

// Units implements ContextReader
func (b *Bridge) Units(ctx context.Context) (string, error) {
	var v valueResult
	err := b.call(ctx, MethodUnits, nil, &v)
	return v.Value, err
}

// Workspace implements ContextReader
func (b *Bridge) Workspace(ctx context.Context) (string, error) {
	var v valueResult
	err := b.call(ctx, MethodWorkspace, nil, &v)
	return v.Value, err
}

// Begin implements TransactionOpener
func (b *Bridge) Begin(ctx context.Context, name string) (Transaction, error) {
	var res beginResult
	if err := b.call(ctx, MethodBegin, beginParams{Name: name}, &res); err != nil {
		return nil, err
	}
	return &remoteTransaction{bridge: b, id: res.TransactionID}, nil
}

type remoteTransaction struct {
	bridge *Bridge
	id     string
}

func (t *remoteTransaction) Commit(ctx context.Context) error {
	return t.bridge.call(ctx, MethodCommit, transactionParams{TransactionID: t.id}, nil)
}

func (t *remoteTransaction) Rollback(ctx context.Context) error {
	return t.bridge.call(ctx, MethodRollback, transactionParams{TransactionID: t.id}, nil)
}

// Run implements CodeRunner
func (b *Bridge) Run(ctx context.Context, code string, bindings []string) error {
	var res runResult
	err := b.call(ctx, MethodRun, runParams{Code: code, Bindings: bindings}, &res)
	b.writeOutput("stdout", res.Stdout)
	b.writeOutput("stderr", res.Stderr)
	return err
}

// Redirect implements OutputCapture
func (b *Bridge) Redirect(stdout, stderr io.Writer) func() {
	b.outMu.Lock()
	prevOut, prevErr := b.stdout, b.stderr
	b.stdout, b.stderr = stdout, stderr
	b.outMu.Unlock()

	return func() {
		b.outMu.Lock()
		b.stdout, b.stderr = prevOut, prevErr
		b.outMu.Unlock()
	}
}
