package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/wire"
	"github.com/BrendanGleason/cloud-bigtable-client/policy"
	"github.com/BrendanGleason/cloud-bigtable-client/test/testutil"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// fakeServer answers MutateRow and CheckAndMutateRow over the msgpack codec.
type fakeServer struct {
	addr string

	mu         sync.Mutex
	rows       []string
	userAgents []string
	release    chan struct{}
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeServer{addr: lis.Addr().String()}
	srv := gogrpc.NewServer(gogrpc.UnknownServiceHandler(fs.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return fs
}

func (fs *fakeServer) handle(_ any, stream gogrpc.ServerStream) error {
	method, _ := gogrpc.MethodFromServerStream(stream)

	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		fs.mu.Lock()
		fs.userAgents = append(fs.userAgents, md.Get("user-agent")...)
		fs.mu.Unlock()
	}

	switch types.Method(method) {
	case types.MethodMutateRow:
		var req wire.MutateRowRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		row := string(req.Mutation.RowKey)
		fs.mu.Lock()
		fs.rows = append(fs.rows, row)
		release := fs.release
		fs.mu.Unlock()

		if release != nil {
			<-release
		}
		if row == "denied" {
			return status.Error(codes.PermissionDenied, "no access to "+req.Table)
		}

		return stream.SendMsg(&wire.Empty{})
	case types.MethodCheckAndMutateRow:
		var req wire.CheckAndMutateRowRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}

		return stream.SendMsg(&wire.CheckAndMutateRowResponse{PredicateMatched: len(req.Filter) > 0})
	default:
		return status.Error(codes.Unimplemented, method)
	}
}

// hold makes MutateRow handlers block until the returned channel is closed.
func (fs *fakeServer) hold() chan struct{} {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.release = make(chan struct{})

	return fs.release
}

func (fs *fakeServer) Rows() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return append([]string(nil), fs.rows...)
}

func newTestTransport(t *testing.T, fs *fakeServer, cfg FactoryConfig) *Transport {
	t.Helper()

	if cfg.Endpoint == "" {
		cfg.Endpoint = fs.addr
	}
	cfg.Insecure = true
	f, err := NewFactory(cfg)
	require.NoError(t, err)

	tr, err := f.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.ShutdownNow() })

	return tr.(*Transport)
}

func mutateRow(row string) types.Request {
	return types.Request{
		Method:  types.MethodMutateRow,
		Payload: &types.MutateRowRequest{Table: "tbl", Mutation: testutil.Mutation(row, 1)},
	}
}

func waitCall(t *testing.T, f *types.Future) (types.Response, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return f.Wait(ctx)
}

func TestNewFactoryValidatesEndpoint(t *testing.T) {
	_, err := NewFactory(FactoryConfig{Endpoint: "no-port"})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestTransportMutateRow(t *testing.T) {
	fs := startFakeServer(t)
	tr := newTestTransport(t, fs, FactoryConfig{UserAgent: "ingest/1.0"})

	resp, err := waitCall(t, tr.Call(context.Background(), mutateRow("r1")))
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Equal(t, []string{"r1"}, fs.Rows())

	fs.mu.Lock()
	agents := strings.Join(fs.userAgents, " ")
	fs.mu.Unlock()
	require.Contains(t, agents, "ingest/1.0")
}

func TestTransportCheckAndMutateRow(t *testing.T) {
	fs := startFakeServer(t)
	tr := newTestTransport(t, fs, FactoryConfig{})

	resp, err := waitCall(t, tr.Call(context.Background(), types.Request{
		Method: types.MethodCheckAndMutateRow,
		Payload: &types.CheckAndMutateRowRequest{
			Table:         "tbl",
			RowKey:        []byte("r"),
			Filter:        []byte("f"),
			TrueMutations: []types.Edit{{Kind: types.KindDelete, Timestamp: 1}},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, &types.CheckAndMutateRowResponse{PredicateMatched: true}, resp)
}

func TestTransportServerErrorIsNotConnectionError(t *testing.T) {
	fs := startFakeServer(t)
	tr := newTestTransport(t, fs, FactoryConfig{})

	_, err := waitCall(t, tr.Call(context.Background(), mutateRow("denied")))
	require.Error(t, err)
	require.False(t, types.IsConnectionError(err))
	require.Equal(t, codes.PermissionDenied, policy.Code(err))
	require.False(t, policy.IsTransient(err))
}

func TestTransportUnsupportedPayload(t *testing.T) {
	fs := startFakeServer(t)
	tr := newTestTransport(t, fs, FactoryConfig{})

	_, err := waitCall(t, tr.Call(context.Background(), types.Request{Method: types.MethodMutateRow, Payload: "raw"}))
	require.ErrorIs(t, err, types.ErrUnsupportedPayload)
}

func TestTransportUnreachableIsConnectionError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	f, err := NewFactory(FactoryConfig{Endpoint: addr, Insecure: true})
	require.NoError(t, err)
	tr, err := f.Create(context.Background())
	require.NoError(t, err)
	defer func() { _ = tr.ShutdownNow() }()

	_, err = waitCall(t, tr.Call(context.Background(), mutateRow("r")))
	require.Error(t, err)
	require.True(t, types.IsConnectionError(err))
	require.Equal(t, codes.Unavailable, policy.Code(err))
	require.True(t, policy.IsTransient(err))
}

func TestTransportOverrideIPKeepsEndpoint(t *testing.T) {
	fs := startFakeServer(t)
	_, port, err := net.SplitHostPort(fs.addr)
	require.NoError(t, err)

	tr := newTestTransport(t, fs, FactoryConfig{
		Endpoint:   net.JoinHostPort("bigtable.invalid", port),
		OverrideIP: net.ParseIP("127.0.0.1"),
	})

	_, err = waitCall(t, tr.Call(context.Background(), mutateRow("via-ip")))
	require.NoError(t, err)
	require.Equal(t, []string{"via-ip"}, fs.Rows())
	require.Equal(t, "bigtable.invalid:"+port, tr.endpoint)
}

func TestTransportShutdownDrainsInflight(t *testing.T) {
	fs := startFakeServer(t)
	release := fs.hold()
	tr := newTestTransport(t, fs, FactoryConfig{})

	pending := tr.Call(context.Background(), mutateRow("slow"))
	require.Eventually(t, func() bool { return len(fs.Rows()) == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Shutdown())
	require.False(t, tr.IsTerminated())

	_, err := waitCall(t, tr.Call(context.Background(), mutateRow("late")))
	require.ErrorIs(t, err, types.ErrTransportTerminated)

	close(release)
	_, err = waitCall(t, pending)
	require.NoError(t, err)

	select {
	case <-tr.Terminated():
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not terminate")
	}
	require.True(t, tr.IsTerminated())
}

func TestTransportShutdownNowFailsInflight(t *testing.T) {
	fs := startFakeServer(t)
	defer close(fs.hold())
	tr := newTestTransport(t, fs, FactoryConfig{})

	pending := tr.Call(context.Background(), mutateRow("slow"))
	require.Eventually(t, func() bool { return len(fs.Rows()) == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, tr.ShutdownNow())
	require.True(t, tr.IsTerminated())

	_, err := waitCall(t, pending)
	require.Error(t, err)
	require.True(t, types.IsConnectionError(err))
	require.True(t, errors.Is(err, types.ErrTransportTerminated))
}
