package stream

import "math"

// FetchAll is the fetch_size sentinel meaning "request every
// remaining record in one PULL" (spec §6.4). At the wire level this
// is the literal PULL/DISCARD n value -1.
const FetchAll int64 = -1

// State is the ResultStreamObserver's lifecycle state (spec §4.7).
type State int

const (
	// StateReadyStreaming is the async-start state: RUN and the
	// first PULL/DISCARD have already been written together, so the
	// stream moves itself to StateStreaming the moment keys arrive.
	StateReadyStreaming State = iota
	// StateReady is the reactive-start state: no PULL/DISCARD has been
	// written yet, and the observer issues the first one itself when
	// RUN's SUCCESS(keys) arrives. A stream paused at a has_more
	// completion also waits here until Resume.
	StateReady
	StateStreaming
	StateSucceeded
	StateFailed
)

// Puller issues the next streaming continuation for a stream. It is
// implemented by the protocol version that created the observer, which
// writes the PULL/DISCARD message on the owning connection. qid
// addresses a specific concurrent stream (spec §4.7's multiplexing);
// it is nil until RUN's SUCCESS resolves one, in which case the
// continuation implicitly targets the most recently run query.
type Puller interface {
	Pull(n int64, qid *int64) error
	Discard(qid *int64) error
}

// Summary is the stream_summary metadata the spec requires on
// completion (§4.7): whether keys were ever reported, whether any
// record actually streamed, and whether a pull/discard was ever
// issued.
type Summary struct {
	HasKeys             bool
	HaveRecordsStreamed bool
	Pulled              bool
}

// ResultStreamObserver is the response observer for a RUN +
// PULL/DISCARD pair (spec §4.7).
type ResultStreamObserver struct {
	state           State
	keys            []string
	qid             *int64
	puller          Puller
	fetchSize       int64
	low, high       int64
	subscriber      Observer
	queued          []Record
	paused          bool
	pendingContinue bool
	cancelled       bool
	summary         Summary
	onComplete      func(meta map[string]any, summary Summary)
	onFail          func(err error)
}

// NewResultStreamObserver creates a ResultStreamObserver. start must
// be StateReadyStreaming or StateReady. subscriber may be nil, in
// which case records accumulate in an internal queue drained via
// Drain/Consumed.
func NewResultStreamObserver(start State, puller Puller, fetchSize int64, subscriber Observer, onComplete func(map[string]any, Summary), onFail func(error)) *ResultStreamObserver {
	low, high := watermarks(fetchSize)
	return &ResultStreamObserver{
		state:      start,
		puller:     puller,
		fetchSize:  fetchSize,
		low:        low,
		high:       high,
		subscriber: subscriber,
		onComplete: onComplete,
		onFail:     onFail,
	}
}

func watermarks(fetchSize int64) (low, high int64) {
	if fetchSize == FetchAll {
		return math.MaxInt64, math.MaxInt64
	}
	return int64(0.3 * float64(fetchSize)), int64(0.7 * float64(fetchSize))
}

// State returns the observer's current lifecycle state.
func (o *ResultStreamObserver) State() State { return o.state }

// Keys returns the field names once known (after the first SUCCESS).
func (o *ResultStreamObserver) Keys() []string { return o.keys }

// Pause marks the stream paused: further has_more completions will
// not trigger a PULL/DISCARD until Resume is called.
func (o *ResultStreamObserver) Pause() { o.paused = true }

// Resume clears the paused flag and, if a has_more completion arrived
// while paused, issues the deferred continuation immediately.
func (o *ResultStreamObserver) Resume() error {
	o.paused = false
	if o.pendingContinue && o.state == StateReady {
		o.pendingContinue = false
		return o.requestNext()
	}
	return nil
}

// Cancel flips a flag so that the next completion issues DISCARD
// instead of PULL. In-flight records may still arrive and are
// delivered normally.
func (o *ResultStreamObserver) Cancel() { o.cancelled = true }

// Consumed drops the first n queued records (queue-based consumption,
// with a nil subscriber). It does not touch the pull state: the 0.3/0.7
// fetch-size watermarks are computed but never consulted, so the queue
// length neither pauses nor resumes pulling.
func (o *ResultStreamObserver) Consumed(n int) {
	if n <= 0 || len(o.queued) == 0 {
		return
	}
	if n > len(o.queued) {
		n = len(o.queued)
	}
	o.queued = o.queued[n:]
}

// Drain returns and clears the internal queue (non-subscriber mode).
func (o *ResultStreamObserver) Drain() []Record {
	q := o.queued
	o.queued = nil
	return q
}

// QueueLen reports how many records are currently queued.
func (o *ResultStreamObserver) QueueLen() int { return len(o.queued) }

// OnKeys satisfies KeysObserver and does nothing; field names reach a
// subscriber that implements KeysObserver when RUN's SUCCESS is absorbed.
func (o *ResultStreamObserver) OnKeys(keys []string) {}

// OnNext delivers one RECORD.
func (o *ResultStreamObserver) OnNext(r Record) error {
	if o.state == StateSucceeded || o.state == StateFailed {
		return nil // terminal; ignore stray records
	}
	r.Keys = o.keys
	o.summary.HaveRecordsStreamed = true
	if o.subscriber != nil {
		return o.subscriber.OnNext(r)
	}
	o.queued = append(o.queued, r)
	return nil
}

// OnCompleted advances the state machine on a SUCCESS.
func (o *ResultStreamObserver) OnCompleted(meta map[string]any) error {
	switch o.state {
	case StateReadyStreaming:
		o.absorbKeys(meta)
		o.state = StateStreaming
		return nil
	case StateReady:
		o.absorbKeys(meta)
		o.state = StateStreaming
		return o.requestNext()
	case StateStreaming:
		hasMore, _ := meta["has_more"].(bool)
		if hasMore {
			o.state = StateReady
			if o.paused {
				o.pendingContinue = true
				return nil
			}
			return o.requestNext()
		}
		o.state = StateSucceeded
		if o.onComplete != nil {
			o.onComplete(meta, o.summary)
		}
		return nil
	default:
		return nil
	}
}

// OnError terminates the stream with a FAILED state; no further
// records are delivered after this call.
func (o *ResultStreamObserver) OnError(err error) {
	if o.state == StateSucceeded || o.state == StateFailed {
		return
	}
	o.state = StateFailed
	if o.onFail != nil {
		o.onFail(err)
	}
}

func (o *ResultStreamObserver) absorbKeys(meta map[string]any) {
	if fields, ok := meta["fields"].([]any); ok {
		keys := make([]string, len(fields))
		for i, f := range fields {
			keys[i], _ = f.(string)
		}
		o.keys = keys
		o.summary.HasKeys = true
		if o.subscriber != nil {
			if ko, ok := o.subscriber.(KeysObserver); ok {
				ko.OnKeys(keys)
			}
		}
	}
	if qid, ok := meta["qid"].(int64); ok {
		o.qid = &qid
	}
}

func (o *ResultStreamObserver) requestNext() error {
	o.state = StateStreaming
	o.summary.Pulled = true
	if o.cancelled {
		return o.puller.Discard(o.qid)
	}
	return o.puller.Pull(o.fetchSize, o.qid)
}
