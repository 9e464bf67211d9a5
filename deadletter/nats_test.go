package deadletter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

func newNATSSink(t *testing.T, opts ...NATSSinkOption) (*NATSSink, func() uint64) {
	t.Helper()

	js := testutil.StartEmbeddedNATS(t)
	opts = append([]NATSSinkOption{WithFetchMaxWait(100 * time.Millisecond)}, opts...)
	sink, err := NewNATSSink(context.Background(), js, opts...)
	require.NoError(t, err)

	return sink, func() uint64 {
		return testutil.StreamMessages(t, js, DefaultNATSSinkConfig().StreamName)
	}
}

func TestNewNATSSinkNilJetStream(t *testing.T) {
	_, err := NewNATSSink(context.Background(), nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestNATSSinkSubject(t *testing.T) {
	sink, _ := newNATSSink(t)

	require.Equal(t, "bigtable.deadletter.projects/p/instances/i/tables/t_v2",
		sink.Subject("projects/p/instances/i/tables/t.v2"))
	require.Equal(t, "bigtable.deadletter._", sink.Subject(""))
}

func TestNATSSinkPublishFetch(t *testing.T) {
	sink, stored := newNATSSink(t)
	ctx := context.Background()

	in := testEntry("row-1")
	in.Cause = "unavailable"
	require.NoError(t, sink.Publish(ctx, in))
	// Same ID inside the duplicate window is stored once.
	require.NoError(t, sink.Publish(ctx, in))
	require.Equal(t, uint64(1), stored())

	deliveries, err := sink.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	d := deliveries[0]
	require.Equal(t, in.ID, d.Entry.ID)
	require.Equal(t, "unavailable", d.Entry.Cause)
	require.Equal(t, in.Mutation, d.Entry.Mutation)
	require.Equal(t, 1, d.NumDelivered)

	require.NoError(t, d.Ack())
	require.Eventually(t, func() bool { return stored() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNATSSinkClosed(t *testing.T) {
	sink, _ := newNATSSink(t)
	sink.Close()

	require.ErrorIs(t, sink.Publish(context.Background(), testEntry("a")), types.ErrDeadLetterClosed)
	_, err := sink.Fetch(context.Background(), 1)
	require.ErrorIs(t, err, types.ErrDeadLetterClosed)
}

func TestNATSWorkerRetriesThroughRedelivery(t *testing.T) {
	sink, stored := newNATSSink(t)

	var calls atomic.Int32
	r := ResubmitterFunc(func(context.Context, Entry) error {
		if calls.Add(1) == 1 {
			return errors.New("unavailable")
		}

		return nil
	})

	succeeded := make(chan int, 1)
	w := NewNATSWorker(sink, r, append(fastWorkerOpts(),
		WithOnSuccess(func(Entry) { succeeded <- int(calls.Load()) }),
	)...)
	require.Equal(t, "nats", w.BackendType())

	require.NoError(t, sink.Publish(context.Background(), testEntry("a")))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case n := <-succeeded:
		require.Equal(t, 2, n)
	case <-time.After(10 * time.Second):
		t.Fatal("entry was not redelivered")
	}
	require.Eventually(t, func() bool { return stored() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNATSWorkerDropsAtMaxDeliver(t *testing.T) {
	sink, _ := newNATSSink(t, WithMaxDeliver(2))
	r := ResubmitterFunc(func(context.Context, Entry) error { return errors.New("table not found") })

	dropped := make(chan struct{}, 1)
	w := NewNATSWorker(sink, r, append(fastWorkerOpts(),
		WithOnDrop(func(Entry, error) { dropped <- struct{}{} }),
	)...)

	require.NoError(t, sink.Publish(context.Background(), testEntry("a")))
	require.NoError(t, w.Start())
	defer w.Stop()

	select {
	case <-dropped:
	case <-time.After(10 * time.Second):
		t.Fatal("entry was not dropped")
	}
}
