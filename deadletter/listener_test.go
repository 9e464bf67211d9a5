package deadletter

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/buffer"
	"github.com/BrendanGleason/cloud-bigtable-client/contrib/metrics/vm"
	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

func TestListenerDeadLettersFailedMutations(t *testing.T) {
	sink := NewMemorySink()
	exec := testutil.NewMockExecutor()
	b, err := buffer.New(exec, buffer.WithExceptionListener(NewListener(sink, "tbl")))
	require.NoError(t, err)

	for _, row := range []string{"a", "b", "c", "d"} {
		require.NoError(t, b.Mutate(context.Background(), testutil.Mutation(row, 1)))
	}
	exec.Complete(0, nil)
	exec.Complete(1, errors.New("permission denied"))
	exec.Complete(2, nil)
	exec.Complete(3, &types.RetryError{Method: types.MethodMutateRow, Attempts: 3, Cause: errors.New("unavailable")})

	// The listener swallows the aggregate.
	require.NoError(t, b.Flush(context.Background()))

	entries := sink.DrainAll()
	require.Len(t, entries, 2)

	byRow := map[string]Entry{}
	for _, e := range entries {
		require.Equal(t, "tbl", e.Table)
		byRow[string(e.Mutation.RowKey)] = e
	}
	require.Equal(t, 1, byRow["b"].Attempts)
	require.Equal(t, "permission denied", byRow["b"].Cause)
	require.Equal(t, 3, byRow["d"].Attempts)
}

func TestListenerCountsDrops(t *testing.T) {
	collector := vm.New(vm.WithPrefix("dl"), vm.WithMetricsSet(metrics.NewSet()))
	sink := NewMemorySink(WithQueueCapacity(1))
	l := NewListener(sink, "tbl", WithListenerMetrics(collector))

	agg := &types.AggregateError{Failures: []*types.MutationError{
		{Mutation: testutil.Mutation("a", 1), Cause: errors.New("x")},
		{Mutation: testutil.Mutation("b", 1), Cause: errors.New("x")},
		{Mutation: testutil.Mutation("c", 1), Cause: errors.New("x")},
	}}
	require.NoError(t, l.OnException(agg, nil))
	require.Equal(t, 1, sink.Len())

	var buf bytes.Buffer
	collector.WritePrometheus(&buf)
	require.Contains(t, buf.String(), "dl_dead_letter_published_total 1")
	require.Contains(t, buf.String(), "dl_dead_letter_dropped_total 2")
}

func TestListenerUsesClock(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	sink := NewMemorySink()
	l := NewListener(sink, "tbl", WithListenerClock(clock))

	agg := &types.AggregateError{Failures: []*types.MutationError{
		{Mutation: testutil.Mutation("a", 1), Cause: errors.New("x")},
	}}
	require.NoError(t, l.OnException(agg, nil))

	e, ok := sink.TryDequeue()
	require.True(t, ok)
	require.Equal(t, clock.Now(), e.FailedAt)
}

func serverTimestampFailure(row string) *types.MutationError {
	return &types.MutationError{
		Mutation: testutil.Mutation(row, types.ServerTimestamp),
		Cause:    status.Error(codes.DeadlineExceeded, "deadline exceeded"),
	}
}

func TestListenerSkipsServerTimestampMutations(t *testing.T) {
	collector := vm.New(vm.WithPrefix("dlts"), vm.WithMetricsSet(metrics.NewSet()))
	sink := NewMemorySink()
	l := NewListener(sink, "tbl", WithListenerMetrics(collector))

	agg := &types.AggregateError{Failures: []*types.MutationError{
		serverTimestampFailure("a"),
		{Mutation: testutil.Mutation("b", 1), Cause: errors.New("x")},
	}}
	require.NoError(t, l.OnException(agg, nil))

	entries := sink.DrainAll()
	require.Len(t, entries, 1)
	require.Equal(t, "b", string(entries[0].Mutation.RowKey))

	var buf bytes.Buffer
	collector.WritePrometheus(&buf)
	require.Contains(t, buf.String(), "dlts_dead_letter_published_total 1")
	require.Contains(t, buf.String(), "dlts_dead_letter_dropped_total 1")
}

func TestListenerFallbackReceivesUnreplayable(t *testing.T) {
	sink := NewMemorySink()
	l := NewListener(sink, "tbl", WithFallback(buffer.RethrowListener{}))

	agg := &types.AggregateError{Failures: []*types.MutationError{
		serverTimestampFailure("a"),
		{Mutation: testutil.Mutation("b", 1), Cause: errors.New("x")},
	}}
	err := l.OnException(agg, nil)

	var rethrown *types.AggregateError
	require.ErrorAs(t, err, &rethrown)
	require.Equal(t, 1, rethrown.Len())
	require.Equal(t, "a", string(rethrown.Failures[0].Mutation.RowKey))
	require.Equal(t, 1, sink.Len())
}

func TestListenerAndWorkerNeverReplayServerTimestamps(t *testing.T) {
	sink := NewMemorySink()
	exec := testutil.NewMockExecutor()
	b, err := buffer.New(exec, buffer.WithExceptionListener(NewListener(sink, "tbl")))
	require.NoError(t, err)

	require.NoError(t, b.Mutate(context.Background(), testutil.Mutation("a", types.ServerTimestamp)))
	exec.Complete(0, status.Error(codes.Unavailable, "unavailable"))
	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 0, sink.Len())

	ch := testutil.NewMockChannel()
	w := NewMemoryWorker(sink, NewChannelResubmitter(ch), fastWorkerOpts()...)
	require.NoError(t, w.Start())
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	require.Equal(t, 0, ch.CallCount())
}
