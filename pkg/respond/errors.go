// Package respond implements the ResponseHandler (spec §4.8): the FIFO
// of pending stream observers that response messages are dispatched
// against, the server-error taxonomy correction, and GQL-status
// diagnostic-record defaulting for V5.7+ connections.
package respond

import "fmt"

// ProtocolError is raised when the server sends something that
// violates the wire protocol itself — an observer receiving a RECORD
// it never expected, a response tag no version defines, a dispatch
// with no observer queued. It is always fatal: the connection cannot
// recover and must be closed.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bolt: protocol error: %s", e.Reason)
}

// ServerError wraps a FAILURE response's {code, message} metadata
// (spec §7), plus the GQL-status fields a ≥V5.7 server's FAILURE may
// carry (spec §4.8): GQLStatus/Description alongside the diagnostic
// record, and a recursively-enriched Cause for a nested `cause` entry.
// It is recoverable: the connection issues RESET and may continue to
// be used.
type ServerError struct {
	Code             string
	Message          string
	DiagnosticRecord map[string]any
	GQLStatus        string
	Description      string
	Cause            *ServerError
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bolt: server error %s: %s", e.Code, e.Message)
}

// Unwrap exposes a nested cause so errors.Is/As can walk the GQL cause
// chain (spec §4.8).
func (e *ServerError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// IsRetriable reports whether the server classified this error as
// transient, which by Neo4j convention means a retry of the same
// operation may succeed.
func (e *ServerError) IsRetriable() bool {
	return len(e.Code) >= len("Neo.TransientError") && e.Code[:len("Neo.TransientError")] == "Neo.TransientError"
}

// TransportError is raised when the underlying connection itself
// fails (read/write error, closed socket, handshake failure). It is
// always fatal and is broadcast to every observer still queued on the
// connection, since no further responses will ever arrive for them.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bolt: transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// reclassified maps server error codes the spec requires the driver to
// correct before surfacing to the application (§7): certain transaction
// errors the server reports as TransientError are, from the driver's
// point of view, client-caused and non-retriable.
var reclassified = map[string]string{
	"Neo.TransientError.Transaction.Terminated":        "Neo.ClientError.Transaction.Terminated",
	"Neo.TransientError.Transaction.LockClientStopped": "Neo.ClientError.Transaction.LockClientStopped",
}

func reclassifyCode(code string) string {
	if rewritten, ok := reclassified[code]; ok {
		return rewritten
	}
	return code
}

// defaultDiagnosticRecord fills in the GQL status diagnostic-record
// keys the spec requires whenever the server's FAILURE metadata is
// missing them (§4.8, available from V5.7): OPERATION, OPERATION_CODE,
// and CURRENT_SCHEMA always default even on legacy FAILURE payloads
// that never populated them.
func defaultDiagnosticRecord(record map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range record {
		out[k] = v
	}
	if _, ok := out["OPERATION"]; !ok {
		out["OPERATION"] = ""
	}
	if _, ok := out["OPERATION_CODE"]; !ok {
		out["OPERATION_CODE"] = "0"
	}
	if _, ok := out["CURRENT_SCHEMA"]; !ok {
		out["CURRENT_SCHEMA"] = "/"
	}
	return out
}

// newServerError builds a ServerError from FAILURE metadata, applying
// the GQL enrichment of spec §4.8 when gqlCapable: neo4j_code (if
// present) is copied into code ahead of the legacy code field,
// gql_status/description are captured, the diagnostic record is
// defaulted, and a nested cause entry is recursively enriched the same
// way.
func newServerError(meta map[string]any, gqlCapable bool) *ServerError {
	code, _ := meta["code"].(string)
	if gqlCapable {
		if neo4jCode, ok := meta["neo4j_code"].(string); ok {
			code = neo4jCode
		}
	}
	message, _ := meta["message"].(string)
	se := &ServerError{Code: reclassifyCode(code), Message: message}
	if gqlCapable {
		se.GQLStatus, _ = meta["gql_status"].(string)
		se.Description, _ = meta["description"].(string)
		record, _ := meta["diagnostic_record"].(map[string]any)
		se.DiagnosticRecord = defaultDiagnosticRecord(record)
		if causeMeta, ok := meta["cause"].(map[string]any); ok {
			se.Cause = newServerError(causeMeta, gqlCapable)
		}
	}
	return se
}
