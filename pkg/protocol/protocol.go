// Package protocol implements the versioned Bolt protocol engine
// (spec §4.10): one Protocol value per negotiated version, exposing
// message-level operations (initialize, logon/logoff, run, pull/
// discard, begin/commit/rollback, reset, route, telemetry,
// prepareToClose) whose shape and capability gates follow from the
// negotiated version via CapabilitiesFor, and the shared write path
// (pack → chunk → enqueue observer → flush) every operation funnels
// through.
package protocol

import (
	"fmt"

	"github.com/orneryd/nornic-bolt-go/pkg/buffer"
	"github.com/orneryd/nornic-bolt-go/pkg/chunking"
	"github.com/orneryd/nornic-bolt-go/pkg/graphtypes"
	"github.com/orneryd/nornic-bolt-go/pkg/handshake"
	"github.com/orneryd/nornic-bolt-go/pkg/messages"
	"github.com/orneryd/nornic-bolt-go/pkg/packstream"
	"github.com/orneryd/nornic-bolt-go/pkg/respond"
	"github.com/orneryd/nornic-bolt-go/pkg/stream"
	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

// DiscardAll is the wire sentinel for "discard every remaining
// record", mirroring stream.FetchAll.
const DiscardAll = stream.FetchAll

// Options configures a Protocol instance beyond what the negotiated
// version alone determines.
type Options struct {
	ElementID     bool // default: atLeast 5.0
	UTCPatch      bool // default: UTCPatchDefault(version)
	IntegerPolicy packstream.IntegerPolicy
	// WarnAmbiguousWallClock, if non-nil, is invoked whenever hydrating
	// a legacy DateTimeZoneID resolves a DST-ambiguous or -nonexistent
	// local wall-clock second (spec §4.5).
	WarnAmbiguousWallClock func(zoneID string, localSecond int64)
}

// Protocol is one negotiated Bolt connection's message engine. It is
// not safe for concurrent use — per spec §5, one connection processes
// messages serially.
type Protocol struct {
	version handshake.Version
	caps    messages.Capabilities
	reg     *structure.Registry
	policy  packstream.IntegerPolicy
	chunker *chunking.Chunker
	handler *respond.ResponseHandler

	broken    bool
	brokenErr error

	notifyFatalError func(error)
}

// New builds a Protocol for the given negotiated version, writing
// chunked wire messages to out. onQueueSizeChange and notifyFatalError
// may be nil.
func New(version handshake.Version, out chunking.Writer, opts Options, onQueueSizeChange func(int), notifyFatalError func(error)) *Protocol {
	caps := CapabilitiesFor(version)
	elementID := opts.ElementID || atLeast(version, 5, 0)
	utcPatch := opts.UTCPatch || UTCPatchDefault(version)

	reg := graphtypes.NewRegistry(graphtypes.Options{
		ElementID:              elementID,
		UTCPatch:               utcPatch,
		WarnAmbiguousWallClock: opts.WarnAmbiguousWallClock,
	})

	return &Protocol{
		version:          version,
		caps:             caps,
		reg:              reg,
		policy:           opts.IntegerPolicy,
		chunker:          chunking.NewChunker(out),
		handler:          respond.NewResponseHandler(caps.GQLErrorEnrichment, onQueueSizeChange),
		notifyFatalError: notifyFatalError,
	}
}

// Version returns the negotiated version as "major.minor".
func (p *Protocol) Version() string { return p.version.String() }

// SupportsReAuth reports whether LOGON/LOGOFF are available for
// credential rotation on a live connection (from V5.1).
func (p *Protocol) SupportsReAuth() bool { return p.caps.SeparateLogon }

// Transformer returns the type-transformer registry this protocol
// version uses to dehydrate/hydrate graph, spatial, and temporal
// values.
func (p *Protocol) Transformer() *structure.Registry { return p.reg }

// IsBroken reports whether a fatal error has already been observed on
// this connection.
func (p *Protocol) IsBroken() bool { return p.broken }

// Dispatch decodes one reassembled wire message (as delivered by the
// dechunker) and routes it through the response handler.
func (p *Protocol) Dispatch(raw []byte) error {
	buf := buffer.Wrap(raw)
	up := packstream.NewUnpacker(buf, p.reg, p.policy)
	fieldCount, tag, err := up.UnpackStructHeader()
	if err != nil {
		p.NotifyFatalError(err)
		return err
	}
	fields := make([]any, fieldCount)
	for i := range fields {
		v, err := up.Unpack()
		if err != nil {
			p.NotifyFatalError(err)
			return err
		}
		fields[i] = v
	}
	if err := p.handler.Dispatch(tag, fields); err != nil {
		p.NotifyFatalError(err)
		return err
	}
	return nil
}

// NotifyFatalError marks the connection broken, broadcasts a
// transport failure to every still-queued observer, and invokes the
// optional fatal-error hook exactly once.
func (p *Protocol) NotifyFatalError(err error) {
	if p.broken {
		return
	}
	p.broken = true
	p.brokenErr = err
	p.handler.BrokenConnection(err)
	if p.notifyFatalError != nil {
		p.notifyFatalError(err)
	}
}

// write is the shared send path every operation funnels through
// (spec §4.10): if broken, fail the observer synchronously without
// touching the channel; otherwise enqueue it, serialize the message,
// emit a boundary, and conditionally flush.
func (p *Protocol) write(msg *structure.Structure, observer stream.Observer, flush bool) error {
	if p.broken {
		if observer != nil {
			observer.OnError(p.brokenErr)
		}
		return p.brokenErr
	}
	if observer != nil {
		p.handler.Enqueue(observer)
	}

	buf := buffer.New(256)
	packer := packstream.NewPacker(buf, p.reg)
	if err := packer.PackStruct(msg); err != nil {
		p.NotifyFatalError(err)
		return err
	}
	p.chunker.Write(buf.Bytes())
	p.chunker.MessageBoundary()
	if flush {
		if err := p.chunker.Flush(); err != nil {
			p.NotifyFatalError(err)
			return err
		}
	}
	return nil
}

// Initialize sends HELLO (and, pre-5.1, embedded auth). observer
// receives the single SUCCESS/FAILURE.
func (p *Protocol) Initialize(opts messages.HelloOptions, observer stream.Observer) error {
	msg, err := messages.Hello(opts, p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(msg, observer, true)
}

// Logon sends LOGON (V5.1+).
func (p *Protocol) Logon(auth map[string]any, observer stream.Observer) error {
	msg, err := messages.Logon(auth, p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(msg, observer, true)
}

// Logoff sends LOGOFF (V5.1+).
func (p *Protocol) Logoff(observer stream.Observer) error {
	msg, err := messages.Logoff(p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(msg, observer, true)
}

// Reset sends RESET, clearing any outstanding failure state.
func (p *Protocol) Reset(observer stream.Observer) error {
	return p.write(messages.Reset(), observer, true)
}

// PrepareToClose sends GOODBYE (V3+) as a courtesy before the channel
// closes; there is no response to wait for.
func (p *Protocol) PrepareToClose() error {
	if !SupportsGoodbye(p.version) {
		return nil
	}
	return p.write(messages.Goodbye(), nil, true)
}

// Begin sends BEGIN with tx-metadata built from opts.
func (p *Protocol) Begin(opts messages.TxMetadataOptions, observer stream.Observer) error {
	meta, err := messages.BuildTxMetadata(opts, p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(messages.Begin(meta), observer, true)
}

// Commit sends COMMIT.
func (p *Protocol) Commit(observer stream.Observer) error {
	return p.write(messages.Commit(), observer, true)
}

// Rollback sends ROLLBACK.
func (p *Protocol) Rollback(observer stream.Observer) error {
	return p.write(messages.Rollback(), observer, true)
}

// Route sends the ROUTE message (V4.3+).
func (p *Protocol) Route(opts messages.RouteOptions, observer stream.Observer) error {
	msg, err := messages.Route(opts, p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(msg, observer, true)
}

// Telemetry sends TELEMETRY (V5.4+).
func (p *Protocol) Telemetry(api int64, observer stream.Observer) error {
	msg, err := messages.Telemetry(api, p.caps, p.Version())
	if err != nil {
		return err
	}
	return p.write(msg, observer, true)
}

// RunOptions configures a Run call.
type RunOptions struct {
	Query     string
	Params    map[string]any
	TxMeta    messages.TxMetadataOptions
	FetchSize int64
	// AutoStream, when true and the version supports reactive pull,
	// writes the first PULL/DISCARD together with RUN so streaming
	// begins without a round trip (ResultStreamObserver starts in
	// StateReadyStreaming); when false, only RUN is written and the
	// observer issues the first PULL/DISCARD itself once RUN's SUCCESS
	// arrives (StateReady).
	AutoStream bool
	Discard    bool // first continuation is DISCARD instead of PULL
}

// Run sends RUN (and, if AutoStream, the first PULL/DISCARD) and
// returns the ResultStreamObserver driving the resulting stream.
func (p *Protocol) Run(opts RunOptions, subscriber stream.Observer, onComplete func(map[string]any, stream.Summary), onFail func(error)) (*stream.ResultStreamObserver, error) {
	var runMsg *structure.Structure
	var err error
	if p.caps.TxConfig {
		meta, mErr := messages.BuildTxMetadata(opts.TxMeta, p.caps, p.Version())
		if mErr != nil {
			return nil, mErr
		}
		runMsg, err = messages.RunWithMetadata(opts.Query, opts.Params, meta)
	} else {
		runMsg, err = messages.RunLegacy(opts.Query, opts.Params)
	}
	if err != nil {
		return nil, err
	}

	start := stream.StateReady
	if opts.AutoStream && SupportsReactivePull(p.version) {
		start = stream.StateReadyStreaming
	} else if !SupportsReactivePull(p.version) {
		// Pre-4.0 versions have no reactive pull at all: PULL_ALL is
		// always issued together with RUN.
		start = stream.StateReadyStreaming
	}

	puller := &reactivePuller{protocol: p, discard: opts.Discard}
	observer := stream.NewResultStreamObserver(start, puller, opts.FetchSize, subscriber, onComplete, onFail)
	puller.observer = observer
	if opts.Discard && start == stream.StateReady {
		// The observer writes this stream's first continuation itself;
		// cancelling makes that continuation a DISCARD.
		observer.Cancel()
	}

	if err := p.write(runMsg, observer, !autoStreamWillFollow(p.version, opts.AutoStream)); err != nil {
		return nil, err
	}

	if start == stream.StateReadyStreaming {
		// No SUCCESS has arrived yet, so the server hasn't told us this
		// stream's qid: these first-continuation writes implicitly
		// target the most recently run query (qid nil), same as every
		// other driver issuing RUN immediately followed by PULL/DISCARD.
		if !SupportsReactivePull(p.version) {
			if err := p.write(messages.PullAll(), observer, true); err != nil {
				return nil, err
			}
		} else if opts.Discard {
			if err := p.write(messages.Discard(opts.FetchSize, nil), observer, true); err != nil {
				return nil, err
			}
		} else {
			if err := p.write(messages.Pull(opts.FetchSize, nil), observer, true); err != nil {
				return nil, err
			}
		}
	}

	return observer, nil
}

func autoStreamWillFollow(v handshake.Version, autoStream bool) bool {
	return autoStream || !SupportsReactivePull(v)
}

// reactivePuller adapts a Protocol into a stream.Puller, re-enqueuing
// the same ResultStreamObserver for each continuation's response. The
// qid addressing a specific concurrent stream (spec §4.7) is supplied
// per-call by the observer, which resolves it from RUN's own SUCCESS
// metadata once that arrives — the puller itself holds no qid state.
type reactivePuller struct {
	protocol *Protocol
	observer *stream.ResultStreamObserver
	discard  bool
}

func (rp *reactivePuller) Pull(n int64, qid *int64) error {
	if !SupportsReactivePull(rp.protocol.version) {
		return fmt.Errorf("protocol %s: reactive PULL unavailable, use PULL_ALL at RUN time", rp.protocol.Version())
	}
	return rp.protocol.write(messages.Pull(n, qid), rp.observer, true)
}

func (rp *reactivePuller) Discard(qid *int64) error {
	if !SupportsReactivePull(rp.protocol.version) {
		return fmt.Errorf("protocol %s: reactive DISCARD unavailable", rp.protocol.Version())
	}
	return rp.protocol.write(messages.Discard(DiscardAll, qid), rp.observer, true)
}
