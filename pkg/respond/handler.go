package respond

import (
	"sync"

	"github.com/orneryd/nornic-bolt-go/pkg/stream"
)

// Response message signatures (spec §4.6).
const (
	TagSuccess byte = 0x70
	TagRecord  byte = 0x71
	TagIgnored byte = 0x7E
	TagFailure byte = 0x7F
)

// ResponseHandler is the FIFO of pending stream observers a connection
// dispatches decoded response messages against (spec §4.8). Every
// request that expects a response pushes its observer with Enqueue
// before the request is written; Dispatch then routes each incoming
// RECORD/SUCCESS/FAILURE/IGNORED to the observer at the front of the
// queue, popping it on any terminal event.
type ResponseHandler struct {
	mu                sync.Mutex
	queue             []stream.Observer
	gqlCapable        bool
	onQueueSizeChange func(size int)
}

// NewResponseHandler creates a ResponseHandler. gqlCapable should be
// true once the negotiated protocol version is ≥5.7, enabling GQL
// diagnostic-record defaulting on FAILURE. onQueueSizeChange, if
// non-nil, is called after every Enqueue/pop with the new queue depth
// — the connection uses this to drive idle-connection accounting.
func NewResponseHandler(gqlCapable bool, onQueueSizeChange func(size int)) *ResponseHandler {
	return &ResponseHandler{gqlCapable: gqlCapable, onQueueSizeChange: onQueueSizeChange}
}

// Enqueue pushes an observer to the back of the pending queue.
func (h *ResponseHandler) Enqueue(o stream.Observer) {
	h.mu.Lock()
	h.queue = append(h.queue, o)
	size := len(h.queue)
	h.mu.Unlock()
	h.notify(size)
}

// QueueLen reports how many observers are still awaiting a response.
func (h *ResponseHandler) QueueLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Dispatch routes one decoded response message to the observer at the
// front of the queue. fields is the structure's unpacked field list:
// for SUCCESS/FAILURE, fields[0] is the metadata dict; for RECORD,
// fields is the record's value list; IGNORED carries no fields.
//
// A RECORD or IGNORED with no observer queued, or a RECORD delivered
// to an observer whose own protocol rejects it, is a *ProtocolError
// and the caller must treat the connection as broken.
func (h *ResponseHandler) Dispatch(tag byte, fields []any) error {
	switch tag {
	case TagRecord:
		o, ok := h.front()
		if !ok {
			return &ProtocolError{Reason: "RECORD received with no pending observer"}
		}
		if err := o.OnNext(stream.Record{Values: fields}); err != nil {
			return &ProtocolError{Reason: err.Error()}
		}
		return nil

	case TagSuccess:
		o, ok := h.pop()
		if !ok {
			return &ProtocolError{Reason: "SUCCESS received with no pending observer"}
		}
		meta, _ := metaOf(fields)
		if err := o.OnCompleted(meta); err != nil {
			return &ProtocolError{Reason: err.Error()}
		}
		return nil

	case TagFailure:
		o, ok := h.pop()
		if !ok {
			return &ProtocolError{Reason: "FAILURE received with no pending observer"}
		}
		meta, _ := metaOf(fields)
		o.OnError(newServerError(meta, h.gqlCapable))
		return nil

	case TagIgnored:
		o, ok := h.pop()
		if !ok {
			return &ProtocolError{Reason: "IGNORED received with no pending observer"}
		}
		o.OnError(&ProtocolError{Reason: "request ignored by server"})
		return nil

	default:
		return &ProtocolError{Reason: "unrecognized response signature"}
	}
}

// BrokenConnection delivers a fatal *TransportError to every observer
// still queued and empties the queue — once the underlying channel is
// gone, no response will ever arrive for them (spec §7).
func (h *ResponseHandler) BrokenConnection(cause error) {
	h.mu.Lock()
	pending := h.queue
	h.queue = nil
	h.mu.Unlock()

	err := &TransportError{Cause: cause}
	for _, o := range pending {
		o.OnError(err)
	}
	h.notify(0)
}

func (h *ResponseHandler) front() (stream.Observer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil, false
	}
	return h.queue[0], true
}

func (h *ResponseHandler) pop() (stream.Observer, bool) {
	h.mu.Lock()
	if len(h.queue) == 0 {
		h.mu.Unlock()
		return nil, false
	}
	o := h.queue[0]
	h.queue = h.queue[1:]
	size := len(h.queue)
	h.mu.Unlock()
	h.notify(size)
	return o, true
}

func (h *ResponseHandler) notify(size int) {
	if h.onQueueSizeChange != nil {
		h.onQueueSizeChange(size)
	}
}

func metaOf(fields []any) (map[string]any, bool) {
	if len(fields) == 0 {
		return map[string]any{}, false
	}
	meta, ok := fields[0].(map[string]any)
	if !ok {
		return map[string]any{}, false
	}
	return meta, true
}
