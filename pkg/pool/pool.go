// Package pool implements the per-address bounded connection pool
// (spec §4.11): acquire with idle-reuse, bounded creation, and a FIFO
// waiter queue bounded by an acquisition timeout; release with
// validate-on-release, idle-observer installation, and waiter
// draining; purge/close semantics safe for concurrent callers.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory supplies the operations a Pool needs to manage one resource
// type without knowing anything about it (spec §4.11's create/
// validate_on_acquire/validate_on_release/destroy collaborators).
type Factory[T any] struct {
	// Create produces a new resource for address. The resource is
	// returned to the pool by whoever holds it calling Pool.Release.
	Create func(ctx context.Context, address string) (T, error)
	// ValidateOnAcquire is consulted before handing an idle resource
	// back out; nil means every idle resource is always valid.
	ValidateOnAcquire func(ctx context.Context, r T) bool
	// ValidateOnRelease is consulted before returning a released
	// resource to idle; nil means every released resource is valid.
	ValidateOnRelease func(r T) bool
	// Destroy releases a resource's own underlying handle (closing a
	// socket, etc). Called for invalid or purged resources.
	Destroy func(r T)
	// InstallIdleObserver attaches a hook to a resource sitting idle
	// so that a channel error evicts and destroys it without
	// surfacing to any caller; onBroken is supplied by the pool.
	InstallIdleObserver func(r T, onBroken func())
}

// Config bounds a Pool's size and acquisition wait.
type Config struct {
	MaxSize            int
	AcquisitionTimeout time.Duration
}

// DefaultConfig returns conservative pool bounds.
func DefaultConfig() Config {
	return Config{MaxSize: 100, AcquisitionTimeout: 60 * time.Second}
}

// Pool is a per-address bounded resource pool (spec §4.11). Safe for
// concurrent use by multiple callers; each individual resource,
// however, must only ever be held by one caller at a time — the pool
// enforces that via exclusive acquisition.
type Pool[T any] struct {
	factory Factory[T]
	cfg     Config

	mu     sync.Mutex
	byAddr map[string]*addressPool[T]
	closed bool
}

type addressPool[T any] struct {
	idle           []T
	activeCount    int
	pendingCreates int
	waiters        []*waiter[T]
	active         bool // false once purged; releases then destroy instead of idling
}

type waiter[T any] struct {
	ch         chan acquireOutcome[T]
	requireNew bool
	settled    bool
	requestID  string // correlates this waiter's own acquire_queue entry across logs/errors
}

type acquireOutcome[T any] struct {
	resource T
	err      error
}

// New builds a Pool backed by factory.
func New[T any](factory Factory[T], cfg Config) *Pool[T] {
	return &Pool[T]{factory: factory, cfg: cfg, byAddr: make(map[string]*addressPool[T])}
}

func (p *Pool[T]) addressPoolLocked(address string) *addressPool[T] {
	ap, ok := p.byAddr[address]
	if !ok {
		ap = &addressPool[T]{active: true}
		p.byAddr[address] = ap
	}
	return ap
}

// Acquire obtains a resource for address, reusing a valid idle
// resource, creating a fresh one if under max_size, or waiting in a
// FIFO queue bounded by the configured acquisition timeout (spec
// §4.11 algorithm). requireNew skips idle reuse even if idle resources
// exist.
func (p *Pool[T]) Acquire(ctx context.Context, address string, requireNew bool) (T, error) {
	var zero T

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrPoolClosed
	}
	ap := p.addressPoolLocked(address)

	if r, ok := p.popValidIdleLocked(ctx, ap, requireNew); ok {
		ap.activeCount++
		p.mu.Unlock()
		return r, nil
	}

	if ap.activeCount+ap.pendingCreates < p.cfg.MaxSize {
		ap.pendingCreates++
		p.mu.Unlock()

		r, err := p.createLocked(ctx, address)

		p.mu.Lock()
		ap.pendingCreates--
		if err != nil {
			p.mu.Unlock()
			return zero, err
		}
		ap.activeCount++
		p.mu.Unlock()
		return r, nil
	}

	w := &waiter[T]{ch: make(chan acquireOutcome[T], 1), requireNew: requireNew, requestID: uuid.NewString()}
	ap.waiters = append(ap.waiters, w)
	p.mu.Unlock()

	return p.awaitWaiter(ctx, address, ap, w)
}

// popValidIdleLocked pops idle resources, validating each (unlocked,
// since validation may be arbitrary user code), until one passes or
// the idle list is exhausted. Must be called with p.mu held; re-locks
// internally around each unlocked validation.
func (p *Pool[T]) popValidIdleLocked(ctx context.Context, ap *addressPool[T], requireNew bool) (T, bool) {
	var zero T
	if requireNew {
		return zero, false
	}
	for len(ap.idle) > 0 {
		r := ap.idle[len(ap.idle)-1]
		ap.idle = ap.idle[:len(ap.idle)-1]
		p.mu.Unlock()

		valid := p.factory.ValidateOnAcquire == nil || p.factory.ValidateOnAcquire(ctx, r)
		if valid {
			p.mu.Lock()
			return r, true
		}
		if p.factory.Destroy != nil {
			p.factory.Destroy(r)
		}
		p.mu.Lock()
	}
	return zero, false
}

func (p *Pool[T]) createLocked(ctx context.Context, address string) (T, error) {
	return p.factory.Create(ctx, address)
}

func (p *Pool[T]) awaitWaiter(ctx context.Context, address string, ap *addressPool[T], w *waiter[T]) (T, error) {
	var zero T
	timer := time.NewTimer(p.cfg.AcquisitionTimeout)
	defer timer.Stop()

	select {
	case out := <-w.ch:
		return out.resource, out.err
	case <-timer.C:
		p.mu.Lock()
		w.settled = true
		removeWaiter(ap, w)
		active, idle := ap.activeCount, len(ap.idle)
		p.mu.Unlock()
		return zero, &AcquisitionTimeoutError{
			Address: address, ActiveCount: active, IdleCount: idle,
			TimeoutMillis: p.cfg.AcquisitionTimeout.Milliseconds(),
			RequestID:     w.requestID,
		}
	case <-ctx.Done():
		p.mu.Lock()
		w.settled = true
		removeWaiter(ap, w)
		p.mu.Unlock()
		return zero, ctx.Err()
	}
}

func removeWaiter[T any](ap *addressPool[T], target *waiter[T]) {
	for i, w := range ap.waiters {
		if w == target {
			ap.waiters = append(ap.waiters[:i], ap.waiters[i+1:]...)
			return
		}
	}
}

// Release returns r to the pool for address (spec §4.11 algorithm):
// if the address pool is still active and r validates, it is pushed
// back to idle with an idle observer installed; otherwise it is
// destroyed. Either way active_count drops and the waiter queue is
// drained.
func (p *Pool[T]) Release(address string, r T) {
	p.mu.Lock()
	ap := p.addressPoolLocked(address)

	valid := ap.active && (p.factory.ValidateOnRelease == nil || p.factory.ValidateOnRelease(r))
	if valid {
		if p.factory.InstallIdleObserver != nil {
			p.factory.InstallIdleObserver(r, func() { p.evictIdle(address, r) })
		}
		ap.idle = append(ap.idle, r)
	} else if p.factory.Destroy != nil {
		p.factory.Destroy(r)
	}
	ap.activeCount--

	p.drainWaitersLocked(address, ap)
	p.mu.Unlock()
}

// evictIdle removes r from address's idle list (called by an idle
// observer on channel error) and destroys it without surfacing
// anything to a caller.
func (p *Pool[T]) evictIdle(address string, r T) {
	p.mu.Lock()
	ap, ok := p.byAddr[address]
	if ok {
		for i := range ap.idle {
			// best-effort pointer/value identity via index scan; callers
			// pass comparable resource handles (e.g. *Connection).
			if any(ap.idle[i]) == any(r) {
				ap.idle = append(ap.idle[:i], ap.idle[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()
	if p.factory.Destroy != nil {
		p.factory.Destroy(r)
	}
}

// drainWaitersLocked attempts to satisfy each queued waiter in order,
// re-pushing to the head any waiter whose attempt yields nothing (pool
// still full) and re-releasing any resource produced for a waiter that
// already timed out. Must be called with p.mu held.
func (p *Pool[T]) drainWaitersLocked(address string, ap *addressPool[T]) {
	for len(ap.waiters) > 0 {
		w := ap.waiters[0]

		r, ok := p.popValidIdleLocked(context.Background(), ap, w.requireNew)
		if !ok {
			if ap.activeCount+ap.pendingCreates < p.cfg.MaxSize {
				ap.pendingCreates++
				p.mu.Unlock()
				created, err := p.factory.Create(context.Background(), address)
				p.mu.Lock()
				ap.pendingCreates--
				if err != nil {
					ap.waiters = ap.waiters[1:]
					if !w.settled {
						w.settled = true
						w.ch <- acquireOutcome[T]{err: err}
					}
					continue
				}
				r, ok = created, true
			} else {
				return // pool still full; leave waiter at head
			}
		}

		ap.waiters = ap.waiters[1:]
		if w.settled {
			// waiter already timed out/cancelled: give the resource back.
			ap.activeCount++
			p.mu.Unlock()
			p.Release(address, r)
			p.mu.Lock()
			continue
		}
		ap.activeCount++
		w.settled = true
		w.ch <- acquireOutcome[T]{resource: r}
	}
}

// Purge destroys every idle resource for address and marks its pool
// inactive, so that subsequent releases destroy instead of idling.
func (p *Pool[T]) Purge(address string) {
	p.mu.Lock()
	ap, ok := p.byAddr[address]
	if !ok {
		p.mu.Unlock()
		return
	}
	idle := ap.idle
	ap.idle = nil
	ap.active = false
	p.mu.Unlock()

	if p.factory.Destroy != nil {
		for _, r := range idle {
			p.factory.Destroy(r)
		}
	}
}

// Close purges every address concurrently and marks the pool closed;
// safe to call exactly once from any caller (subsequent calls are a
// no-op).
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	addresses := make([]string, 0, len(p.byAddr))
	for addr := range p.byAddr {
		addresses = append(addresses, addr)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(addresses))
	for _, addr := range addresses {
		go func(addr string) {
			defer wg.Done()
			p.Purge(addr)
		}(addr)
	}
	wg.Wait()
}

// Stats reports the live counts for one address, for diagnostics and
// idle-connection accounting.
type Stats struct {
	Active  int
	Idle    int
	Waiting int
}

// StatsFor returns current counts for address.
func (p *Pool[T]) StatsFor(address string) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.byAddr[address]
	if !ok {
		return Stats{}
	}
	return Stats{Active: ap.activeCount, Idle: len(ap.idle), Waiting: len(ap.waiters)}
}
