package bolt

import (
	"errors"
	"fmt"

	"github.com/orneryd/nornic-bolt-go/pkg/messages"
	"github.com/orneryd/nornic-bolt-go/pkg/respond"
)

// Sentinel errors for the taxonomy of spec §7. Callers match against
// these with errors.Is; *BoltError additionally carries the Neo4j
// code/message/GQL fields a server FAILURE returned, via Unwrap.
var (
	ErrProtocol   = errors.New("bolt: protocol error")
	ErrCapability = errors.New("bolt: capability error")
	ErrServer     = errors.New("bolt: server error")
	ErrTransport  = errors.New("bolt: transport error")
	ErrPool       = errors.New("bolt: pool error")
)

// BoltError wraps one of the sentinel errors with the server-supplied
// detail (code/message, and the GQL status/diagnostic-record fields a
// ≥V5.7 server's FAILURE carries, spec §4.8).
type BoltError struct {
	sentinel    error
	Code        string
	Message     string
	GQL         map[string]any
	GQLStatus   string
	Description string
}

func (e *BoltError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *BoltError) Unwrap() error { return e.sentinel }

// classify maps an error surfaced by pkg/respond or pkg/protocol onto
// the taxonomy's sentinels, wrapping it in a *BoltError where server
// detail is available.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var protoErr *respond.ProtocolError
	if errors.As(err, &protoErr) {
		return &BoltError{sentinel: ErrProtocol, Message: protoErr.Error()}
	}
	var capErr *messages.CapabilityError
	if errors.As(err, &capErr) {
		return &BoltError{sentinel: ErrCapability, Message: capErr.Error()}
	}
	var srvErr *respond.ServerError
	if errors.As(err, &srvErr) {
		return &BoltError{
			sentinel:    ErrServer,
			Code:        srvErr.Code,
			Message:     srvErr.Message,
			GQL:         srvErr.DiagnosticRecord,
			GQLStatus:   srvErr.GQLStatus,
			Description: srvErr.Description,
		}
	}
	var transportErr *respond.TransportError
	if errors.As(err, &transportErr) {
		return &BoltError{sentinel: ErrTransport, Message: err.Error()}
	}
	return err
}
