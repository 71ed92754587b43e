package stream

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePuller struct {
	pullCalls    []int64
	pullQids     []*int64
	discardCalls int
	discardQids  []*int64
}

func (f *fakePuller) Pull(n int64, qid *int64) error {
	f.pullCalls = append(f.pullCalls, n)
	f.pullQids = append(f.pullQids, qid)
	return nil
}

func (f *fakePuller) Discard(qid *int64) error {
	f.discardCalls++
	f.discardQids = append(f.discardQids, qid)
	return nil
}

type collectingObserver struct {
	records   []Record
	completed map[string]any
	err       error
}

func (c *collectingObserver) OnNext(r Record) error {
	c.records = append(c.records, r)
	return nil
}
func (c *collectingObserver) OnCompleted(meta map[string]any) error {
	c.completed = meta
	return nil
}
func (c *collectingObserver) OnError(err error) { c.err = err }

func TestResultStreamHappyPathReachesSucceeded(t *testing.T) {
	puller := &fakePuller{}
	sub := &collectingObserver{}
	var doneSummary Summary
	o := NewResultStreamObserver(StateReadyStreaming, puller, 1000, sub, func(meta map[string]any, s Summary) {
		doneSummary = s
	}, nil)

	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}}))
	assert.Equal(t, StateStreaming, o.State())
	assert.Equal(t, []string{"n"}, o.Keys())

	require.NoError(t, o.OnNext(Record{Values: []any{int64(1)}}))
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": false}))

	assert.Equal(t, StateSucceeded, o.State())
	assert.True(t, doneSummary.HasKeys)
	assert.True(t, doneSummary.HaveRecordsStreamed)
	require.Len(t, sub.records, 1)
}

func TestResultStreamHasMoreReissuesPull(t *testing.T) {
	puller := &fakePuller{}
	o := NewResultStreamObserver(StateReadyStreaming, puller, 1000, nil, nil, nil)

	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}}))
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": true}))

	assert.Equal(t, StateStreaming, o.State())
	require.Len(t, puller.pullCalls, 1)
	assert.Equal(t, int64(1000), puller.pullCalls[0])
}

func TestResultStreamReactiveStartPullsOnFirstSuccess(t *testing.T) {
	puller := &fakePuller{}
	o := NewResultStreamObserver(StateReady, puller, 500, nil, nil, nil)

	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"a"}, "qid": int64(7)}))
	assert.Equal(t, StateStreaming, o.State())
	require.Len(t, puller.pullCalls, 1)
}

// TestResultStreamPropagatesResolvedQidToContinuations guards spec
// §4.7's stream multiplexing: once RUN's SUCCESS resolves a qid, every
// subsequent PULL/DISCARD on this stream must address that same qid,
// not an implicit "most recent query" (nil) — otherwise concurrent
// streams on one connection interleave onto the wrong result.
func TestResultStreamPropagatesResolvedQidToContinuations(t *testing.T) {
	puller := &fakePuller{}
	o := NewResultStreamObserver(StateReadyStreaming, puller, 1000, nil, nil, nil)

	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}, "qid": int64(42)}))
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": true}))

	require.Len(t, puller.pullCalls, 1)
	require.Len(t, puller.pullQids, 1)
	require.NotNil(t, puller.pullQids[0])
	assert.Equal(t, int64(42), *puller.pullQids[0])

	o.Cancel()
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": true}))
	require.Len(t, puller.discardQids, 1)
	require.NotNil(t, puller.discardQids[0])
	assert.Equal(t, int64(42), *puller.discardQids[0])
}

func TestResultStreamOnErrorTerminatesAndIgnoresFurtherRecords(t *testing.T) {
	sub := &collectingObserver{}
	o := NewResultStreamObserver(StateReadyStreaming, &fakePuller{}, 1000, sub, nil, func(err error) {})
	boom := errors.New("boom")
	o.OnError(boom)
	assert.Equal(t, StateFailed, o.State())

	require.NoError(t, o.OnNext(Record{Values: []any{1}}))
	assert.Empty(t, sub.records)
}

func TestResultStreamPauseDefersContinuation(t *testing.T) {
	puller := &fakePuller{}
	o := NewResultStreamObserver(StateReadyStreaming, puller, 1000, nil, nil, nil)
	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}}))

	o.Pause()
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": true}))
	assert.Empty(t, puller.pullCalls)

	require.NoError(t, o.Resume())
	require.Len(t, puller.pullCalls, 1)
}

func TestResultStreamCancelIssuesDiscard(t *testing.T) {
	puller := &fakePuller{}
	o := NewResultStreamObserver(StateReadyStreaming, puller, 1000, nil, nil, nil)
	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}}))

	o.Cancel()
	require.NoError(t, o.OnCompleted(map[string]any{"has_more": true}))
	assert.Equal(t, 1, puller.discardCalls)
	assert.Empty(t, puller.pullCalls)
}

func TestResultStreamQueueModeAccumulatesAndDrains(t *testing.T) {
	o := NewResultStreamObserver(StateReadyStreaming, &fakePuller{}, 1000, nil, nil, nil)
	require.NoError(t, o.OnCompleted(map[string]any{"fields": []any{"n"}}))
	require.NoError(t, o.OnNext(Record{Values: []any{1}}))
	require.NoError(t, o.OnNext(Record{Values: []any{2}}))

	assert.Equal(t, 2, o.QueueLen())
	o.Consumed(1)
	assert.Equal(t, 1, o.QueueLen())
	drained := o.Drain()
	assert.Len(t, drained, 1)
	assert.Equal(t, 0, o.QueueLen())
}

func TestWatermarksUseThirtySeventyFraction(t *testing.T) {
	low, high := watermarks(1000)
	assert.Equal(t, int64(300), low)
	assert.Equal(t, int64(700), high)
}

func TestWatermarksInfiniteForFetchAll(t *testing.T) {
	low, high := watermarks(FetchAll)
	assert.Equal(t, int64(math.MaxInt64), low)
	assert.Equal(t, int64(math.MaxInt64), high)
}

func TestSingleResponseObserverRejectsRecords(t *testing.T) {
	o := NewSingleResponseObserver("RESET", nil, nil)
	err := o.OnNext(Record{})
	require.ErrorIs(t, err, ErrUnexpectedRecord)
}

func TestSingleResponseObserverDeliversSuccessAndFailure(t *testing.T) {
	var gotMeta map[string]any
	var gotErr error
	o := NewSingleResponseObserver("COMMIT", func(meta map[string]any) { gotMeta = meta }, func(err error) { gotErr = err })

	require.NoError(t, o.OnCompleted(map[string]any{"bookmark": "tx:1"}))
	assert.Equal(t, "tx:1", gotMeta["bookmark"])

	boom := errors.New("server failure")
	o.OnError(boom)
	assert.ErrorIs(t, gotErr, boom)
}

func TestRecordGetLooksUpByKey(t *testing.T) {
	r := Record{Keys: []string{"a", "b"}, Values: []any{1, 2}}
	v, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRouteObserverFromRecordParsesServers(t *testing.T) {
	var table RoutingTable
	o := NewRouteObserverFromRecord("neo4j", func(rt RoutingTable) { table = rt }, nil)

	err := o.OnNext(Record{
		Keys: []string{"ttl", "servers"},
		Values: []any{int64(300), []any{
			map[string]any{"role": "WRITE", "addresses": []any{"host1:7687"}},
			map[string]any{"role": "READ", "addresses": []any{"host2:7687", "host3:7687"}},
		}},
	})
	require.NoError(t, err)
	require.NoError(t, o.OnCompleted(map[string]any{}))

	assert.Equal(t, int64(300), table.TTL)
	assert.Equal(t, "neo4j", table.Db)
	require.Len(t, table.Servers, 2)
	assert.Equal(t, "WRITE", table.Servers[0].Role)
	assert.Equal(t, []string{"host2:7687", "host3:7687"}, table.Servers[1].Addresses)
}

func TestRouteObserverFromMetadataParsesRoutingTable(t *testing.T) {
	var table RoutingTable
	o := NewRouteObserverFromMetadata(func(rt RoutingTable) { table = rt }, nil)

	err := o.OnNext(Record{})
	require.ErrorIs(t, err, ErrUnexpectedRecord)

	require.NoError(t, o.OnCompleted(map[string]any{
		"rt": map[string]any{
			"ttl": int64(600),
			"db":  "system",
			"servers": []any{
				map[string]any{"role": "ROUTE", "addresses": []any{"host1:7687"}},
			},
		},
	}))

	assert.Equal(t, int64(600), table.TTL)
	assert.Equal(t, "system", table.Db)
	require.Len(t, table.Servers, 1)
	assert.Equal(t, "ROUTE", table.Servers[0].Role)
}
