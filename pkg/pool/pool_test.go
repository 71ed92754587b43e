package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     int
	broken bool
}

func newTestPool(t *testing.T, maxSize int, timeout time.Duration) (*Pool[*fakeConn], *int32) {
	t.Helper()
	var created int32
	var destroyed int32
	factory := Factory[*fakeConn]{
		Create: func(ctx context.Context, address string) (*fakeConn, error) {
			id := int(atomic.AddInt32(&created, 1))
			return &fakeConn{id: id}, nil
		},
		ValidateOnAcquire: func(ctx context.Context, r *fakeConn) bool { return !r.broken },
		ValidateOnRelease: func(r *fakeConn) bool { return !r.broken },
		Destroy:           func(r *fakeConn) { atomic.AddInt32(&destroyed, 1) },
	}
	p := New(factory, Config{MaxSize: maxSize, AcquisitionTimeout: timeout})
	t.Cleanup(func() { p.Close() })
	return p, &created
}

func TestAcquireCreatesUpToMaxSize(t *testing.T) {
	p, created := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	c2, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)

	assert.NotEqual(t, c1.id, c2.id)
	assert.Equal(t, int32(2), *created)
	stats := p.StatsFor("a")
	assert.Equal(t, 2, stats.Active)
}

func TestReleaseReusesIdleResource(t *testing.T) {
	p, created := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	p.Release("a", c1)

	c2, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	assert.Equal(t, c1.id, c2.id)
	assert.Equal(t, int32(1), *created)
}

func TestRequireNewSkipsIdleReuse(t *testing.T) {
	p, created := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	p.Release("a", c1)

	c2, err := p.Acquire(ctx, "a", true)
	require.NoError(t, err)
	assert.NotEqual(t, c1.id, c2.id)
	assert.Equal(t, int32(2), *created)
}

func TestAcquireWaitsThenTimesOut(t *testing.T) {
	p, _ := newTestPool(t, 1, 50*time.Millisecond)
	ctx := context.Background()

	_, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "a", false)
	require.Error(t, err)
	var timeoutErr *AcquisitionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "a", timeoutErr.Address)
	assert.Equal(t, 1, timeoutErr.ActiveCount)
}

func TestQueuedWaiterIsServedOnRelease(t *testing.T) {
	p, _ := newTestPool(t, 1, 2*time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var got *fakeConn
	var waitErr error
	go func() {
		defer wg.Done()
		got, waitErr = p.Acquire(ctx, "a", false)
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter enqueue
	p.Release("a", c1)
	wg.Wait()

	require.NoError(t, waitErr)
	assert.Equal(t, c1.id, got.id)
}

func TestInvalidResourceOnAcquireIsDestroyedAndSkipped(t *testing.T) {
	p, created := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	p.Release("a", c1)
	c1.broken = true

	c2, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	assert.NotEqual(t, c1.id, c2.id)
	assert.Equal(t, int32(2), *created)
}

func TestPurgeDestroysIdleAndMarksInactive(t *testing.T) {
	p, _ := newTestPool(t, 2, time.Second)
	ctx := context.Background()

	c1, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	p.Release("a", c1)
	assert.Equal(t, 1, p.StatsFor("a").Idle)

	p.Purge("a")
	assert.Equal(t, 0, p.StatsFor("a").Idle)

	// a release after purge must destroy, not idle, the resource.
	c2, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)
	p.Release("a", c2)
	assert.Equal(t, 0, p.StatsFor("a").Idle)
}

func TestAcquireAfterCloseFails(t *testing.T) {
	p, _ := newTestPool(t, 1, time.Second)
	p.Close()

	_, err := p.Acquire(context.Background(), "a", false)
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestContextCancellationUnblocksWaiter(t *testing.T) {
	p, _ := newTestPool(t, 1, 5*time.Second)
	ctx := context.Background()

	_, err := p.Acquire(ctx, "a", false)
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(context.Background())
	var waitErr error
	done := make(chan struct{})
	go func() {
		_, waitErr = p.Acquire(cancelCtx, "a", false)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	require.ErrorIs(t, waitErr, context.Canceled)
}
