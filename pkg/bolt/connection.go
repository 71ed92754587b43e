// Package bolt wires the codec and state-machine packages into a
// client-side Connection (spec §3.7): one Channel, one handshake
// result, one *protocol.Protocol, driven by a background read loop
// that feeds the Dechunker and dispatches reassembled messages. A
// Connection is exclusively owned by whichever caller has acquired it
// from the pool; sharing while acquired is forbidden (spec §3.7, §5).
package bolt

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/orneryd/nornic-bolt-go/pkg/chunking"
	"github.com/orneryd/nornic-bolt-go/pkg/handshake"
	"github.com/orneryd/nornic-bolt-go/pkg/messages"
	"github.com/orneryd/nornic-bolt-go/pkg/protocol"
	"github.com/orneryd/nornic-bolt-go/pkg/respond"
	"github.com/orneryd/nornic-bolt-go/pkg/stream"
)

// Logger is the minimal diagnostics hook a Connection accepts,
// matching the teacher's preference for a function-typed callback over
// an injected logging façade. A nil Logger is a no-op.
type Logger func(format string, args ...any)

func (l Logger) logf(format string, args ...any) {
	if l != nil {
		l(format, args...)
	}
}

// Options configures a Connection beyond what negotiation determines.
type Options struct {
	Address       string
	OfferVersions []handshake.Range // highest-preference first; defaults to V5.0..V5.7 and V4.0..V4.4 spans plus V3.0/V2.0 singles
	HandshakeOnly bool              // skip HELLO; the connection is left negotiated but uninitialised
	Protocol      protocol.Options
	Hello         messages.HelloOptions
	Log           Logger
}

// DefaultOfferVersions offers the full range this driver understands,
// highest first, matching spec §6.2's four-slot preamble.
func DefaultOfferVersions() []handshake.Range {
	return []handshake.Range{
		{Major: 5, MinMinor: 0, MaxMinor: 7},
		{Major: 4, MinMinor: 0, MaxMinor: 4},
		handshake.Single(3, 0),
		handshake.Single(2, 0),
	}
}

// Connection is one negotiated, live Bolt connection.
type Connection struct {
	channel  Channel
	version  handshake.Version
	protocol *protocol.Protocol
	dechunk  *chunking.Dechunker
	log      Logger

	mu        sync.Mutex
	observers int // observers queued in the response handler (idle-connection accounting, SPEC_FULL §3)
	closeOnce sync.Once
	readDone  chan struct{}
	onBroken  func(error)
}

// Connect performs the handshake over channel, builds the negotiated
// Protocol, starts the background read loop, and sends HELLO (and, on
// pre-5.1 versions, embedded auth) unless opts.HandshakeOnly is set.
func Connect(ctx context.Context, channel Channel, opts Options) (*Connection, error) {
	offered := opts.OfferVersions
	if len(offered) == 0 {
		offered = DefaultOfferVersions()
	}

	r := bufferedReader(channel)
	hsResult, err := handshake.Perform(channel, r, offered)
	if err != nil {
		return nil, classify(&respond.TransportError{Cause: err})
	}

	c := &Connection{
		channel:  channel,
		version:  hsResult.Version,
		log:      opts.Log,
		readDone: make(chan struct{}),
	}
	protoOpts := opts.Protocol
	if protoOpts.WarnAmbiguousWallClock == nil {
		protoOpts.WarnAmbiguousWallClock = c.warnAmbiguousWallClock
	}
	c.protocol = protocol.New(hsResult.Version, channel, protoOpts, c.onObserverCountChange, c.onFatal)
	c.dechunk = chunking.NewDechunker(func(payload []byte) error {
		return c.protocol.Dispatch(payload)
	})

	go c.readLoop(r, hsResult.Leftover)

	if opts.HandshakeOnly {
		return c, nil
	}

	if _, err := c.helloSync(opts.Hello); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Version returns the negotiated protocol version as "major.minor".
func (c *Connection) Version() string { return c.protocol.Version() }

// SetBrokenHook installs the callback invoked whenever this
// Connection observes a fatal protocol/transport error. The pool uses
// this as its idle observer (spec §4.11, SPEC_FULL §3): a connection
// that breaks while sitting idle is evicted immediately rather than
// waiting to be handed out again.
func (c *Connection) SetBrokenHook(onBroken func()) {
	c.mu.Lock()
	if onBroken == nil {
		c.onBroken = nil
	} else {
		c.onBroken = func(error) { onBroken() }
	}
	c.mu.Unlock()
}

// IsBroken reports whether a fatal protocol/transport error has
// already been observed on this connection; the pool must evict such
// a connection on next release (spec §7).
func (c *Connection) IsBroken() bool { return c.protocol.IsBroken() }

// readLoop feeds bytes from the channel (starting with any leftover
// the handshake's buffered reader already pulled in) to the Dechunker,
// which in turn dispatches each reassembled message to the Protocol.
// This is the one goroutine per Connection that performs blocking
// reads; every other Connection method runs on the caller's own
// goroutine and must not be called concurrently with another method
// on the same Connection (spec §5: one connection, one caller at a
// time).
func (c *Connection) readLoop(r io.Reader, leftover []byte) {
	defer close(c.readDone)

	if len(leftover) > 0 {
		if err := c.dechunk.Feed(leftover); err != nil {
			c.onFatal(err)
			return
		}
	}

	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if feedErr := c.dechunk.Feed(buf[:n]); feedErr != nil {
				c.onFatal(feedErr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.onFatal(&respond.TransportError{Cause: err})
			} else {
				c.onFatal(&respond.TransportError{Cause: io.ErrUnexpectedEOF})
			}
			return
		}
	}
}

func (c *Connection) onFatal(err error) {
	c.log.logf("bolt: connection fatal error: %v", classify(err))
	c.mu.Lock()
	hook := c.onBroken
	c.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

// warnAmbiguousWallClock is the default graphtypes.Options.
// WarnAmbiguousWallClock hook: it surfaces spec §4.5's DST-ambiguity
// warning through this Connection's Logger rather than silently
// resolving the local wall-clock second and moving on.
func (c *Connection) warnAmbiguousWallClock(zoneID string, localSecond int64) {
	c.log.logf("bolt: DateTimeZoneID local second %d in zone %q is DST-ambiguous or nonexistent; resolved via spec §4.5 iterative offset search", localSecond, zoneID)
}

func (c *Connection) onObserverCountChange(n int) {
	c.mu.Lock()
	c.observers = n
	c.mu.Unlock()
}

// ObserverCount reports how many observers are currently queued
// awaiting a response — nonzero while idle means a caller leaked a
// stream without draining it (SPEC_FULL §3's idle-connection
// accounting). The pool does not read this count.
func (c *Connection) ObserverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observers
}

// Close sends GOODBYE (where supported) and closes the underlying
// channel. Safe to call more than once.
func (c *Connection) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		_ = c.protocol.PrepareToClose()
		closeErr = c.channel.Close()
		<-c.readDone
	})
	return closeErr
}

// waitSingle blocks until a SingleResponseObserver-driven call
// resolves, translating the eventual result into a synchronous
// (map[string]any, error) pair. send must enqueue exactly one
// observer built from the two callbacks it's given.
func waitSingle(send func(onSuccess func(map[string]any), onFail func(error)) error) (map[string]any, error) {
	done := make(chan struct{})
	var meta map[string]any
	var callErr error
	onSuccess := func(m map[string]any) { meta = m; close(done) }
	onFail := func(err error) { callErr = classify(err); close(done) }

	if err := send(onSuccess, onFail); err != nil {
		return nil, classify(err)
	}
	<-done
	return meta, callErr
}

func (c *Connection) helloSync(opts messages.HelloOptions) (map[string]any, error) {
	return waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Initialize(opts, stream.NewSingleResponseObserver("HELLO", onSuccess, onFail))
	})
}

// Logon sends LOGON (V5.1+) and blocks for its response.
func (c *Connection) Logon(auth map[string]any) error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Logon(auth, stream.NewSingleResponseObserver("LOGON", onSuccess, onFail))
	})
	return err
}

// Logoff sends LOGOFF (V5.1+) and blocks for its response.
func (c *Connection) Logoff() error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Logoff(stream.NewSingleResponseObserver("LOGOFF", onSuccess, onFail))
	})
	return err
}

// Reset sends RESET and blocks for its response; this is the
// protocol-level recovery path after a ServerError (spec §7).
func (c *Connection) Reset() error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Reset(stream.NewSingleResponseObserver("RESET", onSuccess, onFail))
	})
	return err
}

// Begin sends BEGIN and blocks for its response.
func (c *Connection) Begin(opts messages.TxMetadataOptions) error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Begin(opts, stream.NewSingleResponseObserver("BEGIN", onSuccess, onFail))
	})
	return err
}

// Commit sends COMMIT and blocks for its response.
func (c *Connection) Commit() error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Commit(stream.NewSingleResponseObserver("COMMIT", onSuccess, onFail))
	})
	return err
}

// Rollback sends ROLLBACK and blocks for its response.
func (c *Connection) Rollback() error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Rollback(stream.NewSingleResponseObserver("ROLLBACK", onSuccess, onFail))
	})
	return err
}

// Telemetry sends TELEMETRY (V5.4+) and blocks for its response.
func (c *Connection) Telemetry(api int64) error {
	_, err := waitSingle(func(onSuccess func(map[string]any), onFail func(error)) error {
		return c.protocol.Telemetry(api, stream.NewSingleResponseObserver("TELEMETRY", onSuccess, onFail))
	})
	return err
}

// Route sends ROUTE (V4.3+) and blocks for the parsed routing table.
func (c *Connection) Route(opts messages.RouteOptions) (*stream.RoutingTable, error) {
	done := make(chan struct{})
	var table stream.RoutingTable
	var callErr error
	observer := stream.NewRouteObserverFromMetadata(
		func(t stream.RoutingTable) { table = t; close(done) },
		func(err error) { callErr = classify(err); close(done) },
	)
	if err := c.protocol.Route(opts, observer); err != nil {
		return nil, classify(err)
	}
	<-done
	if callErr != nil {
		return nil, callErr
	}
	return &table, nil
}

// Run starts a query stream (spec §4.7). subscriber receives each
// record; the returned observer lets the caller Pause/Resume/Cancel
// back-pressure and must be driven to completion (onComplete/onFail)
// before the Connection is released back to its pool.
func (c *Connection) Run(opts protocol.RunOptions, subscriber stream.Observer, onComplete func(map[string]any, stream.Summary), onFail func(error)) (*stream.ResultStreamObserver, error) {
	wrappedFail := func(err error) {
		if onFail != nil {
			onFail(classify(err))
		}
	}
	obs, err := c.protocol.Run(opts, subscriber, onComplete, wrappedFail)
	if err != nil {
		return nil, classify(err)
	}
	return obs, nil
}

// RunSync issues a query and blocks until the whole stream is
// consumed, returning every record and the terminal summary metadata.
// Intended for small result sets and diagnostics (cmd/boltprobe);
// production callers with large streams should use Run directly so
// they can apply back-pressure.
func (c *Connection) RunSync(opts protocol.RunOptions) ([]stream.Record, map[string]any, error) {
	opts.AutoStream = true
	var records []stream.Record
	done := make(chan struct{})
	var meta map[string]any
	var callErr error

	collector := recordCollector{append: func(r stream.Record) { records = append(records, r) }}
	_, err := c.Run(opts, collector,
		func(m map[string]any, _ stream.Summary) { meta = m; close(done) },
		func(err error) { callErr = err; close(done) },
	)
	if err != nil {
		return nil, nil, err
	}
	<-done
	if callErr != nil {
		return nil, nil, callErr
	}
	return records, meta, nil
}

type recordCollector struct {
	append func(stream.Record)
}

func (c recordCollector) OnNext(r stream.Record) error { c.append(r); return nil }
func (c recordCollector) OnError(error) {}
func (c recordCollector) OnCompleted(map[string]any) error { return nil }

// PingHandshake performs a handshake-only probe over channel,
// returning the negotiated version without sending HELLO. Used by
// cmd/boltprobe's handshake subcommand.
func PingHandshake(channel Channel, offered []handshake.Range) (handshake.Version, error) {
	if len(offered) == 0 {
		offered = DefaultOfferVersions()
	}
	r := bufferedReader(channel)
	res, err := handshake.Perform(channel, r, offered)
	if err != nil {
		return handshake.Version{}, fmt.Errorf("handshake probe: %w", err)
	}
	return res.Version, nil
}
