package respond

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornic-bolt-go/pkg/stream"
)

type recordingObserver struct {
	completed map[string]any
	err       error
	records   []stream.Record
}

func (r *recordingObserver) OnNext(rec stream.Record) error {
	r.records = append(r.records, rec)
	return nil
}
func (r *recordingObserver) OnCompleted(meta map[string]any) error {
	r.completed = meta
	return nil
}
func (r *recordingObserver) OnError(err error) { r.err = err }

func TestDispatchSuccessPopsFrontObserver(t *testing.T) {
	h := NewResponseHandler(false, nil)
	o1 := &recordingObserver{}
	o2 := &recordingObserver{}
	h.Enqueue(o1)
	h.Enqueue(o2)

	require.NoError(t, h.Dispatch(TagSuccess, []any{map[string]any{"bookmark": "tx:1"}}))
	assert.Equal(t, "tx:1", o1.completed["bookmark"])
	assert.Equal(t, 1, h.QueueLen())

	require.NoError(t, h.Dispatch(TagSuccess, []any{map[string]any{}}))
	assert.Equal(t, 0, h.QueueLen())
}

func TestDispatchRecordGoesToFrontWithoutPopping(t *testing.T) {
	h := NewResponseHandler(false, nil)
	o := &recordingObserver{}
	h.Enqueue(o)

	require.NoError(t, h.Dispatch(TagRecord, []any{int64(1), "a"}))
	assert.Equal(t, 1, h.QueueLen())
	require.Len(t, o.records, 1)
	assert.Equal(t, []any{int64(1), "a"}, o.records[0].Values)
}

func TestDispatchRecordWithNoObserverIsProtocolError(t *testing.T) {
	h := NewResponseHandler(false, nil)
	err := h.Dispatch(TagRecord, []any{1})
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestDispatchFailureDeliversServerErrorAndReclassifiesCode(t *testing.T) {
	h := NewResponseHandler(false, nil)
	o := &recordingObserver{}
	h.Enqueue(o)

	require.NoError(t, h.Dispatch(TagFailure, []any{map[string]any{
		"code":    "Neo.TransientError.Transaction.Terminated",
		"message": "terminated",
	}}))

	var se *ServerError
	require.ErrorAs(t, o.err, &se)
	assert.Equal(t, "Neo.ClientError.Transaction.Terminated", se.Code)
	assert.False(t, se.IsRetriable())
}

func TestDispatchFailureGQLDefaultsDiagnosticRecord(t *testing.T) {
	h := NewResponseHandler(true, nil)
	o := &recordingObserver{}
	h.Enqueue(o)

	require.NoError(t, h.Dispatch(TagFailure, []any{map[string]any{
		"code":    "Neo.ClientError.Statement.SyntaxError",
		"message": "bad query",
	}}))

	var se *ServerError
	require.ErrorAs(t, o.err, &se)
	assert.Equal(t, "", se.DiagnosticRecord["OPERATION"])
	assert.Equal(t, "0", se.DiagnosticRecord["OPERATION_CODE"])
	assert.Equal(t, "/", se.DiagnosticRecord["CURRENT_SCHEMA"])
}

func TestDispatchFailureGQLCopiesNeo4jCodeAndEnrichesCause(t *testing.T) {
	h := NewResponseHandler(true, nil)
	o := &recordingObserver{}
	h.Enqueue(o)

	require.NoError(t, h.Dispatch(TagFailure, []any{map[string]any{
		"code":        "Neo.ClientError.Statement.SyntaxError",
		"neo4j_code":  "51N42",
		"gql_status":  "51N42",
		"description": "a nested GQL-aware failure",
		"message":     "bad query",
		"diagnostic_record": map[string]any{
			"OPERATION": "query",
		},
		"cause": map[string]any{
			"code":        "Neo.ClientError.Statement.ArgumentError",
			"neo4j_code":  "22N04",
			"gql_status":  "22N04",
			"description": "underlying cause",
			"message":     "bad argument",
		},
	}}))

	var se *ServerError
	require.ErrorAs(t, o.err, &se)
	assert.Equal(t, "51N42", se.Code)
	assert.Equal(t, "51N42", se.GQLStatus)
	assert.Equal(t, "a nested GQL-aware failure", se.Description)
	assert.Equal(t, "query", se.DiagnosticRecord["OPERATION"])
	assert.Equal(t, "0", se.DiagnosticRecord["OPERATION_CODE"])

	require.NotNil(t, se.Cause)
	assert.Equal(t, "22N04", se.Cause.Code)
	assert.Equal(t, "22N04", se.Cause.GQLStatus)
	assert.Equal(t, "underlying cause", se.Cause.Description)
	assert.Nil(t, se.Cause.Cause)
}

func TestDispatchIgnoredDeliversProtocolErrorToObserver(t *testing.T) {
	h := NewResponseHandler(false, nil)
	o := &recordingObserver{}
	h.Enqueue(o)

	require.NoError(t, h.Dispatch(TagIgnored, nil))
	require.Error(t, o.err)
}

func TestBrokenConnectionBroadcastsToAllQueued(t *testing.T) {
	h := NewResponseHandler(false, nil)
	o1 := &recordingObserver{}
	o2 := &recordingObserver{}
	h.Enqueue(o1)
	h.Enqueue(o2)

	cause := errors.New("connection reset")
	h.BrokenConnection(cause)

	var te1, te2 *TransportError
	require.ErrorAs(t, o1.err, &te1)
	require.ErrorAs(t, o2.err, &te2)
	assert.Equal(t, 0, h.QueueLen())
}

func TestQueueSizeChangeCallbackFiresOnEnqueueAndPop(t *testing.T) {
	var sizes []int
	h := NewResponseHandler(false, func(size int) { sizes = append(sizes, size) })
	h.Enqueue(&recordingObserver{})
	h.Enqueue(&recordingObserver{})
	require.NoError(t, h.Dispatch(TagSuccess, []any{map[string]any{}}))

	assert.Equal(t, []int{1, 2, 1}, sizes)
}

func TestDispatchUnrecognizedTagIsProtocolError(t *testing.T) {
	h := NewResponseHandler(false, nil)
	err := h.Dispatch(0x99, nil)
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}
