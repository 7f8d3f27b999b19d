package host

import "encoding/json"

// Message is the envelope exchanged with the CAD add-in over the websocket.
// Requests carry ID and Method, replies carry ID with Result or Error, and
// notifications carry Method without ID.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Methods understood by the add-in
const (
	MethodActiveDocument = "document.active"
	MethodSelection      = "document.selection"
	MethodParameters     = "document.parameters"
	MethodComponents     = "document.components"
	MethodUnits          = "document.units"
	MethodWorkspace      = "document.workspace"
	MethodBegin          = "transaction.begin"
	MethodCommit         = "transaction.commit"
	MethodRollback       = "transaction.rollback"
	MethodRun            = "script.run"
	MethodCancel         = "script.cancel"

	// NotifyOutput is sent by the add-in while a script runs
	NotifyOutput = "script.output"
)

type beginParams struct {
	Name string `json:"name"`
}

type beginResult struct {
	TransactionID string `json:"transaction_id"`
}

type transactionParams struct {
	TransactionID string `json:"transaction_id"`
}

type runParams struct {
	Code     string   `json:"code"`
	Bindings []string `json:"bindings"`
}

// runResult lets hosts that buffer output return it with the reply
type runResult struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

type outputParams struct {
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

type cancelParams struct {
	ID string `json:"id"`
}

type valueResult struct {
	Value string `json:"value"`
}
