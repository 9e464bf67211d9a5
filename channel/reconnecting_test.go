package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

func testRequest(row string) types.Request {
	return types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: "t", Mutation: testutil.Mutation(row, 1)},
	}
}

func TestNewReconnectingChannelNilFactory(t *testing.T) {
	_, err := NewReconnectingChannel(nil)
	require.ErrorIs(t, err, types.ErrNilTransport)
}

func TestReconnectingChannelConnectsLazily(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	ch, err := NewReconnectingChannel(factory, WithEndpoint("bigtable.test:443"))
	require.NoError(t, err)

	require.Equal(t, types.StateDisconnected, ch.State())
	require.Equal(t, 0, factory.Count())

	req := testRequest("r1")
	resp, err := ch.Call(context.Background(), req).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, req.Payload, resp)

	require.Equal(t, types.StateConnected, ch.State())
	require.Equal(t, 1, factory.Count())

	// Later calls reuse the transport.
	_, err = ch.Call(context.Background(), testRequest("r2")).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, factory.Count())
	require.Equal(t, 2, factory.Last().CallCount())
}

func TestReconnectingChannelReplacesFailedTransport(t *testing.T) {
	connErr := &types.ConnectionError{Endpoint: "bigtable.test:443", Cause: errors.New("connection reset")}
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		if tr.ID == 0 {
			tr.OnCall = func(context.Context, types.Request) *types.Future {
				return types.FailedFuture(connErr)
			}
		}
	}
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r1")).Wait(ctx)
	require.ErrorIs(t, err, connErr)

	// The failed transport was replaced before the future completed.
	require.Equal(t, 2, factory.Count())
	require.Equal(t, types.StateConnected, ch.State())

	first := factory.Created()[0]
	require.Eventually(t, first.IsShutdown, time.Second, 5*time.Millisecond)

	_, err = ch.Call(ctx, testRequest("r2")).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CallCount())
	assert.Equal(t, 1, factory.Created()[1].CallCount())
}

func TestReconnectingChannelKeepsTransportOnCallError(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		tr.OnCall = func(context.Context, types.Request) *types.Future {
			return types.FailedFuture(errors.New("permission denied"))
		}
	}
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		_, err = ch.Call(ctx, testRequest("r")).Wait(ctx)
		require.Error(t, err)
	}
	require.Equal(t, 1, factory.Count())
	require.False(t, factory.Last().IsShutdown())
}

func TestReconnectingChannelCustomClassifier(t *testing.T) {
	sentinel := errors.New("stream broken")
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		if tr.ID == 0 {
			tr.OnCall = func(context.Context, types.Request) *types.Future {
				return types.FailedFuture(sentinel)
			}
		}
	}
	ch, err := NewReconnectingChannel(factory, WithConnectionClassifier(func(err error) bool {
		return errors.Is(err, sentinel)
	}))
	require.NoError(t, err)

	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 2, factory.Count())
}

func TestReconnectingChannelFactoryFailureFailsCall(t *testing.T) {
	dialErr := errors.New("dns lookup failed")
	factory := testutil.NewMockTransportFactory()
	factory.FailNext(1, dialErr)

	ch, err := NewReconnectingChannel(factory, WithEndpoint("bigtable.test:443"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r1")).Wait(ctx)
	require.ErrorIs(t, err, dialErr)
	var connErr *types.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "bigtable.test:443", connErr.Endpoint)
	require.Equal(t, types.StateDisconnected, ch.State())

	// The next call connects successfully.
	_, err = ch.Call(ctx, testRequest("r2")).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, types.StateConnected, ch.State())
}

func TestReconnectingChannelReconnectFailureReachesTriggeringCall(t *testing.T) {
	connErr := &types.ConnectionError{Endpoint: "bigtable.test:443", Cause: errors.New("connection reset")}
	dialErr := errors.New("dns lookup failed")
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		if tr.ID == 0 {
			tr.OnCall = func(context.Context, types.Request) *types.Future {
				factory.FailNext(1, dialErr)

				return types.FailedFuture(connErr)
			}
		}
	}
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r1")).Wait(ctx)
	require.ErrorIs(t, err, connErr)
	require.ErrorIs(t, err, dialErr)
	require.True(t, types.IsConnectionError(err))
	require.Equal(t, types.StateDisconnected, ch.State())

	_, err = ch.Call(ctx, testRequest("r2")).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, factory.Count())
}

func TestReconnectingChannelConnectTimeout(t *testing.T) {
	factory := types.TransportFactoryFunc(func(ctx context.Context) (types.Transport, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	})
	ch, err := NewReconnectingChannel(factory, WithConnectTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)

	// The lock is released once the factory gives up.
	require.Equal(t, types.StateDisconnected, ch.State())
}

func TestReconnectingChannelClosedFailsCalls(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r")).Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, ch.Close(ctx))
	require.Equal(t, types.StateClosed, ch.State())
	require.True(t, factory.Last().IsTerminated())

	_, err = ch.Call(ctx, testRequest("r")).Wait(ctx)
	require.ErrorIs(t, err, types.ErrChannelClosed)
	require.Equal(t, 1, factory.Count())

	// Closing again is a no-op.
	require.NoError(t, ch.Close(ctx))
}

func TestReconnectingChannelCloseBeforeConnect(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)

	require.NoError(t, ch.Close(context.Background()))
	require.Equal(t, 0, factory.Count())
}

func TestReconnectingChannelCloseWaitsForTerminationSignal(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) { tr.HoldTermination = true }
	ch, err := NewReconnectingChannel(factory, WithTerminationPollTimeout(10*time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r")).Wait(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.Close(ctx) }()

	select {
	case <-done:
		t.Fatal("Close returned before the transport terminated")
	case <-time.After(50 * time.Millisecond):
	}

	factory.Last().Terminate()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return after termination")
	}
}

func TestReconnectingChannelClosePollsWithoutSignal(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Polling = true
	factory.Configure = func(tr *testutil.MockTransport) { tr.HoldTermination = true }
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ch.Call(ctx, testRequest("r")).Wait(ctx)
	require.NoError(t, err)

	time.AfterFunc(30*time.Millisecond, factory.Last().Terminate)

	start := time.Now()
	require.NoError(t, ch.Close(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestReconnectingChannelCloseInterruptedThenShutdownNow(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) { tr.HoldTermination = true }
	ch, err := NewReconnectingChannel(factory, WithTerminationPollTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = ch.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tr := factory.Last()
	require.False(t, tr.IsTerminated())

	require.NoError(t, ch.ShutdownNow())
	require.True(t, tr.WasForced())
	require.True(t, tr.IsTerminated())
}

func TestReconnectingChannelCloseReportsShutdownError(t *testing.T) {
	shutdownErr := errors.New("already draining")
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) { tr.ShutdownErr = shutdownErr }
	ch, err := NewReconnectingChannel(factory)
	require.NoError(t, err)

	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.NoError(t, err)

	require.ErrorIs(t, ch.Close(context.Background()), shutdownErr)
}

func TestReconnectingChannelCallTimeout(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		tr.OnCall = func(ctx context.Context, _ types.Request) *types.Future {
			f := types.NewFuture()
			go func() {
				<-ctx.Done()
				f.Complete(nil, ctx.Err())
			}()

			return f
		}
	}
	ch, err := NewReconnectingChannel(factory, WithCallTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// A timeout is not a connection failure.
	require.Equal(t, 1, factory.Count())
}
