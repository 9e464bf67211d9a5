package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/scheduler"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

var fastBackoff = policy.BackoffConfig{
	InitialBackoff: time.Millisecond,
	Multiplier:     2,
	MaxElapsed:     time.Second,
}

func serverTimestampRequest(row string) types.Request {
	return types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: "t", Mutation: testutil.Mutation(row, types.ServerTimestamp)},
	}
}

func newRetrying(t *testing.T, next types.Channel, opts ...RetryOption) *RetryingChannel {
	t.Helper()

	ch, err := NewRetryingChannel(next, append([]RetryOption{WithBackoff(fastBackoff)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(ch.Close)

	return ch
}

func TestNewRetryingChannelValidates(t *testing.T) {
	_, err := NewRetryingChannel(nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = NewRetryingChannel(testutil.NewMockChannel(), WithBackoff(policy.BackoffConfig{}))
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRetryingChannelRetriesEligibleCall(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "server restarting")
	next := testutil.NewMockChannel(unavailable, unavailable)
	ch := newRetrying(t, next)

	req := testRequest("r")
	resp, err := ch.Call(context.Background(), req).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, req.Payload, resp)
	require.Equal(t, 3, next.CallCount())
}

func TestRetryingChannelNeverRetriesServerTimestamps(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "server restarting")
	next := testutil.NewMockChannel(unavailable)
	ch := newRetrying(t, next)

	_, err := ch.Call(context.Background(), serverTimestampRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, unavailable)

	var retryErr *types.RetryError
	require.False(t, errors.As(err, &retryErr))
	require.Equal(t, 1, next.CallCount())
}

func TestRetryingChannelSkipsPermanentFailures(t *testing.T) {
	denied := status.Error(codes.PermissionDenied, "no access")
	next := testutil.NewMockChannel(denied)
	ch := newRetrying(t, next)

	_, err := ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, denied)
	require.Equal(t, 1, next.CallCount())
}

func TestRetryingChannelUnregisteredMethodIsSingleShot(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")
	next := testutil.NewMockChannel(unavailable)
	ch := newRetrying(t, next)

	req := types.Request{Method: types.MethodReadModifyWrite, Payload: "rmw"}
	_, err := ch.Call(context.Background(), req).Wait(context.Background())
	require.ErrorIs(t, err, unavailable)
	require.Equal(t, 1, next.CallCount())
}

func TestRetryingChannelCustomPredicate(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")
	next := testutil.NewMockChannel(unavailable)
	preds := policy.MethodPredicates{types.MethodReadModifyWrite: policy.Always}
	ch := newRetrying(t, next, WithPredicates(preds))

	req := types.Request{Method: types.MethodReadModifyWrite, Payload: "rmw"}
	_, err := ch.Call(context.Background(), req).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, next.CallCount())

	// MutateRow is not in the custom map.
	next2 := testutil.NewMockChannel(unavailable)
	ch2 := newRetrying(t, next2, WithPredicates(preds))
	_, err = ch2.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, unavailable)
}

func TestRetryingChannelExhaustsElapsedBudget(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")
	errs := make([]error, 1000)
	for i := range errs {
		errs[i] = unavailable
	}
	next := testutil.NewMockChannel(errs...)
	ch := newRetrying(t, next, WithBackoff(policy.BackoffConfig{
		InitialBackoff: 2 * time.Millisecond,
		Multiplier:     2,
		MaxElapsed:     40 * time.Millisecond,
	}))

	start := time.Now()
	_, err := ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.Error(t, err)

	var retryErr *types.RetryError
	require.ErrorAs(t, err, &retryErr)
	require.ErrorIs(t, err, unavailable)
	assert.Equal(t, types.MethodMutateRow, retryErr.Method)
	assert.Equal(t, next.CallCount(), retryErr.Attempts)
	// At most 2+4+8+16 = 30ms of delays fit in the budget.
	assert.GreaterOrEqual(t, retryErr.Attempts, 2)
	assert.LessOrEqual(t, retryErr.Attempts, 5)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryingChannelFakeClockBudget(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(0, 0))
	unavailable := status.Error(codes.Unavailable, "down")
	next := testutil.NewMockChannel(unavailable, unavailable, unavailable)

	// The clock never advances, so the whole budget stays available.
	ch := newRetrying(t, next, WithClock(clock))
	_, err := ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, next.CallCount())
}

func TestRetryingChannelStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unavailable := status.Error(codes.Unavailable, "down")

	next := types.ChannelFunc(func(context.Context, types.Request) *types.Future {
		cancel()

		return types.FailedFuture(unavailable)
	})
	ch := newRetrying(t, next)

	_, err := ch.Call(ctx, testRequest("r")).Wait(context.Background())
	require.ErrorIs(t, err, unavailable)
}

func TestRetryingChannelSchedulerCloseFailsPendingRetry(t *testing.T) {
	sched := scheduler.New(1)
	unavailable := status.Error(codes.Unavailable, "down")
	next := testutil.NewMockChannel(unavailable)
	ch := newRetrying(t, next, WithScheduler(sched), WithBackoff(policy.BackoffConfig{
		InitialBackoff: time.Hour,
		Multiplier:     2,
		MaxElapsed:     10 * time.Hour,
	}))

	fut := ch.Call(context.Background(), testRequest("r"))
	require.Eventually(t, func() bool { return sched.Pending() == 1 }, time.Second, time.Millisecond)
	require.False(t, fut.IsDone())

	sched.Close()

	_, err := fut.Wait(context.Background())
	require.ErrorIs(t, err, unavailable)
	require.ErrorIs(t, err, scheduler.ErrClosed)
	var retryErr *types.RetryError
	require.ErrorAs(t, err, &retryErr)
	require.Equal(t, 1, retryErr.Attempts)
}

func TestRetryingChannelRecoversThroughReconnect(t *testing.T) {
	factory := testutil.NewMockTransportFactory()
	factory.Configure = func(tr *testutil.MockTransport) {
		if tr.ID == 0 {
			tr.OnCall = func(context.Context, types.Request) *types.Future {
				return types.FailedFuture(&types.ConnectionError{Cause: errors.New("goaway")})
			}
		}
	}
	rc, err := NewReconnectingChannel(factory)
	require.NoError(t, err)
	pool, err := NewPool(rc)
	require.NoError(t, err)
	ch := newRetrying(t, pool)

	_, err = ch.Call(context.Background(), testRequest("r")).Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, factory.Count())
	require.NoError(t, pool.Close(context.Background()))
}
