package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Dispatcher is the add-in side of the bridge protocol: it reads requests
// from the orchestrator and answers them from a local Host. The CAD add-in
// and the host simulator both speak through it.
type Dispatcher struct {
	host Host
	conn *websocket.Conn

	writeMu sync.Mutex

	runsMu sync.Mutex
	runs   map[string]*activeRun

	txMu   sync.Mutex
	txs    map[string]Transaction
	nextTx int
}

// NewDispatcher binds a local host to an orchestrator connection
func NewDispatcher(h Host, conn *websocket.Conn) *Dispatcher {
	return &Dispatcher{
		host: h,
		conn: conn,
		runs: make(map[string]*activeRun),
		txs:  make(map[string]Transaction),
	}
}

// activeRun is a script still executing on the local host
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Serve answers requests until the connection closes or ctx is cancelled.
// Script runs are handled on their own goroutine so a cancel request can
// reach them; everything else is answered in order. Commit and rollback wait
// for running scripts to return, since a script may ignore cancellation.
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.conn.Close()
	}()

	for {
		var msg Message
		if err := d.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read from orchestrator: %w", err)
		}

		switch {
		case msg.Method == MethodCancel:
			var p cancelParams
			if err := json.Unmarshal(msg.Params, &p); err == nil {
				d.cancelRun(p.ID)
			}
		case msg.Method == MethodRun:
			runCtx, cancel := context.WithCancel(ctx)
			run := &activeRun{cancel: cancel, done: make(chan struct{})}
			d.runsMu.Lock()
			d.runs[msg.ID] = run
			d.runsMu.Unlock()
			go func(msg Message) {
				defer d.finishRun(msg.ID, run)
				d.reply(msg.ID, d.handleRun(runCtx, msg))
			}(msg)
		case msg.ID != "":
			d.reply(msg.ID, d.handle(ctx, msg))
		}
	}
}

func (d *Dispatcher) cancelRun(id string) {
	d.runsMu.Lock()
	run, ok := d.runs[id]
	d.runsMu.Unlock()
	if ok {
		run.cancel()
	}
}

func (d *Dispatcher) finishRun(id string, run *activeRun) {
	d.runsMu.Lock()
	delete(d.runs, id)
	d.runsMu.Unlock()
	run.cancel()
	close(run.done)
}

// awaitRuns blocks until every script running now has returned
func (d *Dispatcher) awaitRuns(ctx context.Context) error {
	d.runsMu.Lock()
	pending := make([]chan struct{}, 0, len(d.runs))
	for _, run := range d.runs {
		pending = append(pending, run.done)
	}
	d.runsMu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Dispatcher) write(msg Message) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.conn.WriteJSON(msg)
}

type outcome struct {
	result any
	err    error
}

func (d *Dispatcher) reply(id string, o outcome) {
	msg := Message{ID: id}
	if o.err != nil {
		msg.Error = toRPCError(o.err)
	} else if o.result != nil {
		raw, err := json.Marshal(o.result)
		if err != nil {
			msg.Error = &RPCError{Code: CodeInternal, Message: err.Error()}
		} else {
			msg.Result = raw
		}
	}
	if err := d.write(msg); err != nil {
		slog.Warn("failed to reply to orchestrator", "id", id, "error", err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg Message) outcome {
	switch msg.Method {
	case MethodActiveDocument:
		doc, err := d.host.ActiveDocument(ctx)
		return outcome{doc, err}
	case MethodSelection:
		sel, err := d.host.Selection(ctx)
		return outcome{sel, err}
	case MethodParameters:
		params, err := d.host.Parameters(ctx)
		return outcome{params, err}
	case MethodComponents:
		comps, err := d.host.Components(ctx)
		return outcome{comps, err}
	case MethodUnits:
		v, err := d.host.Units(ctx)
		return outcome{valueResult{Value: v}, err}
	case MethodWorkspace:
		v, err := d.host.Workspace(ctx)
		return outcome{valueResult{Value: v}, err}
	case MethodBegin:
		var p beginParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return outcome{err: &RPCError{Code: CodeInvalidInput, Message: err.Error()}}
		}
		tx, err := d.host.Begin(ctx, p.Name)
		if err != nil {
			return outcome{err: err}
		}
		d.txMu.Lock()
		d.nextTx++
		id := fmt.Sprintf("tx-%d", d.nextTx)
		d.txs[id] = tx
		d.txMu.Unlock()
		return outcome{result: beginResult{TransactionID: id}}
	case MethodCommit, MethodRollback:
		var p transactionParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return outcome{err: &RPCError{Code: CodeInvalidInput, Message: err.Error()}}
		}
		d.txMu.Lock()
		tx, ok := d.txs[p.TransactionID]
		delete(d.txs, p.TransactionID)
		d.txMu.Unlock()
		if !ok {
			return outcome{err: &RPCError{Code: CodeInvalidInput, Message: "unknown transaction " + p.TransactionID}}
		}
		if err := d.awaitRuns(ctx); err != nil {
			return outcome{err: err}
		}
		if msg.Method == MethodCommit {
			return outcome{err: tx.Commit(ctx)}
		}
		return outcome{err: tx.Rollback(ctx)}
	default:
		return outcome{err: &RPCError{Code: CodeUnknown, Message: "unknown method " + msg.Method}}
	}
}

// handleRun streams script output back as notifications while the script runs
func (d *Dispatcher) handleRun(ctx context.Context, msg Message) outcome {
	var p runParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		return outcome{err: &RPCError{Code: CodeInvalidInput, Message: err.Error()}}
	}

	restore := d.host.Redirect(&notifyWriter{d: d, stream: "stdout"}, &notifyWriter{d: d, stream: "stderr"})
	defer restore()

	return outcome{err: d.host.Run(ctx, p.Code, p.Bindings)}
}

type notifyWriter struct {
	d      *Dispatcher
	stream string
}

var _ io.Writer = (*notifyWriter)(nil)

func (w *notifyWriter) Write(p []byte) (int, error) {
	params, err := json.Marshal(outputParams{Stream: w.stream, Text: string(p)})
	if err != nil {
		return 0, err
	}
	if err := w.d.write(Message{Method: NotifyOutput, Params: params}); err != nil {
		return 0, err
	}
	return len(p), nil
}
