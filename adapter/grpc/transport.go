// Package grpc adapts a google.golang.org/grpc client connection to the
// types.Transport interface.
//
// Requests built from the module's own payload types travel with the
// MessagePack codec ("application/grpc+msgpack"). Callers speaking a protobuf
// contract wrap request and reply in an *Invocation, which uses the
// connection's default codec.
package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/BrendanGleason/cloud-bigtable-client/internal/wire"
	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// DefaultMaxMessageSize bounds request and response messages.
const DefaultMaxMessageSize = 256 << 20

// Invocation carries a caller-encoded request and the reply it decodes into.
type Invocation struct {
	// Request is the request message.
	Request any

	// Reply receives the response. It is returned as the call's Response.
	Reply any
}

// Transport is one gRPC client connection.
//
// Shutdown lets in-flight calls finish before the connection is closed;
// ShutdownNow closes it immediately, failing in-flight calls.
type Transport struct {
	conn     *gogrpc.ClientConn
	endpoint string

	mu       sync.Mutex
	inflight sync.WaitGroup
	shutdown bool

	closeOnce  sync.Once
	closeErr   error
	terminated chan struct{}
	done       atomic.Bool
}

// Compile-time assertions for Transport.
var (
	_ types.Transport           = (*Transport)(nil)
	_ types.TerminationNotifier = (*Transport)(nil)
)

// Dial creates a transport to target. The connection is established in the
// background; the first call waits for it.
//
// Parameters:
//   - target: gRPC target, e.g. "bigtable.googleapis.com:443"
//   - opts: Dial options
//
// Returns:
//   - *Transport: A new transport
//   - error: Error if the target or options are invalid
func Dial(target string, opts ...gogrpc.DialOption) (*Transport, error) {
	conn, err := gogrpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigtable: dial %s: %w", target, err)
	}
	conn.Connect()

	return NewTransport(conn, target), nil
}

// NewTransport wraps an existing connection. The transport takes ownership of conn.
func NewTransport(conn *gogrpc.ClientConn, endpoint string) *Transport {
	return &Transport{
		conn:       conn,
		endpoint:   endpoint,
		terminated: make(chan struct{}),
	}
}

// Conn returns the underlying connection.
func (t *Transport) Conn() *gogrpc.ClientConn {
	return t.conn
}

// State returns the connectivity state of the connection.
func (t *Transport) State() connectivity.State {
	return t.conn.GetState()
}

// Call issues req asynchronously.
//
// Supported payloads are *types.MutateRowRequest, *types.CheckAndMutateRowRequest
// and *Invocation. Any other payload fails with ErrUnsupportedPayload.
func (t *Transport) Call(ctx context.Context, req types.Request) *types.Future {
	args, reply, resp, opts, err := encodeRequest(req.Payload)
	if err != nil {
		return types.FailedFuture(err)
	}

	t.mu.Lock()
	if t.shutdown {
		t.mu.Unlock()

		return types.FailedFuture(types.ErrTransportTerminated)
	}
	t.inflight.Add(1)
	t.mu.Unlock()

	f := types.NewFuture()
	go func() {
		defer t.inflight.Done()

		err := t.conn.Invoke(ctx, string(req.Method), args, reply, opts...)
		if err != nil {
			f.Complete(nil, t.classify(err))

			return
		}
		f.Complete(resp(), nil)
	}()

	return f
}

// encodeRequest maps a payload to its wire message, reply holder and response.
func encodeRequest(payload any) (args, reply any, resp func() types.Response, opts []gogrpc.CallOption, err error) {
	msgpack := []gogrpc.CallOption{gogrpc.CallContentSubtype(wire.CodecName)}

	switch p := payload.(type) {
	case *types.MutateRowRequest:
		return (*wire.MutateRowRequest)(p), &wire.Empty{}, func() types.Response { return nil }, msgpack, nil
	case *types.CheckAndMutateRowRequest:
		out := &wire.CheckAndMutateRowResponse{}

		return (*wire.CheckAndMutateRowRequest)(p), out, func() types.Response {
			return &types.CheckAndMutateRowResponse{PredicateMatched: out.PredicateMatched}
		}, msgpack, nil
	case *Invocation:
		return p.Request, p.Reply, func() types.Response { return p.Reply }, nil, nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("%w: %T", types.ErrUnsupportedPayload, payload)
	}
}

// classify marks connection-level failures so the owning channel reconnects.
func (t *Transport) classify(err error) error {
	if t.done.Load() {
		return &types.ConnectionError{Endpoint: t.endpoint, Cause: errors.Join(types.ErrTransportTerminated, err)}
	}
	if status.Code(err) != codes.Unavailable {
		return err
	}
	// A server answering Unavailable over a healthy connection is not a
	// connection failure.
	if t.conn.GetState() == connectivity.Ready {
		return err
	}

	return &types.ConnectionError{Endpoint: t.endpoint, Cause: err}
}

// Shutdown stops accepting calls and closes the connection once in-flight
// calls have finished. It returns without waiting.
func (t *Transport) Shutdown() error {
	if !t.beginShutdown() {
		return nil
	}

	go func() {
		t.inflight.Wait()
		_ = t.close()
	}()

	return nil
}

// ShutdownNow closes the connection immediately.
func (t *Transport) ShutdownNow() error {
	t.beginShutdown()

	return t.close()
}

func (t *Transport) beginShutdown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shutdown {
		return false
	}
	t.shutdown = true

	return true
}

func (t *Transport) close() error {
	t.closeOnce.Do(func() {
		t.done.Store(true)
		if err := t.conn.Close(); err != nil && status.Code(err) != codes.Canceled {
			t.closeErr = fmt.Errorf("bigtable: close connection to %s: %w", t.endpoint, err)
		}
		close(t.terminated)
	})

	return t.closeErr
}

// IsTerminated reports whether the connection has been closed.
func (t *Transport) IsTerminated() bool {
	select {
	case <-t.terminated:
		return true
	default:
		return false
	}
}

// Terminated returns a channel closed once the connection has been closed.
func (t *Transport) Terminated() <-chan struct{} {
	return t.terminated
}

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Endpoint is the host:port dialed. The host is also the TLS server name
	// and the :authority of every call.
	Endpoint string

	// OverrideIP, when set, is dialed instead of resolving the endpoint host.
	OverrideIP net.IP

	// UserAgent is sent with every call.
	UserAgent string

	// Insecure disables TLS.
	Insecure bool

	// TLSConfig overrides the default TLS configuration.
	TLSConfig *tls.Config

	// DialOptions are appended after the options derived from the fields above.
	DialOptions []gogrpc.DialOption
}

// Factory creates gRPC transports for a reconnecting channel.
type Factory struct {
	cfg  FactoryConfig
	opts []gogrpc.DialOption
}

// Compile-time assertion that Factory implements types.TransportFactory.
var _ types.TransportFactory = (*Factory)(nil)

// NewFactory builds the dial options once and returns a factory.
//
// Parameters:
//   - cfg: Connection settings
//
// Returns:
//   - *Factory: A new factory
//   - error: ErrInvalidConfig if the endpoint is missing or malformed
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if _, port, err := net.SplitHostPort(cfg.Endpoint); err != nil || port == "" {
		return nil, fmt.Errorf("%w: endpoint %q must be host:port", types.ErrInvalidConfig, cfg.Endpoint)
	}

	var creds credentials.TransportCredentials
	switch {
	case cfg.Insecure:
		creds = insecure.NewCredentials()
	case cfg.TLSConfig != nil:
		creds = credentials.NewTLS(cfg.TLSConfig)
	default:
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts := []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(creds),
		gogrpc.WithDefaultCallOptions(
			gogrpc.MaxCallSendMsgSize(DefaultMaxMessageSize),
			gogrpc.MaxCallRecvMsgSize(DefaultMaxMessageSize),
		),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, gogrpc.WithUserAgent(cfg.UserAgent))
	}
	if cfg.OverrideIP != nil {
		opts = append(opts, gogrpc.WithContextDialer(overrideDialer(cfg.OverrideIP)))
	}
	opts = append(opts, cfg.DialOptions...)

	return &Factory{cfg: cfg, opts: opts}, nil
}

// overrideDialer dials ip on the port of the requested address.
func overrideDialer(ip net.IP) func(context.Context, string) (net.Conn, error) {
	var d net.Dialer

	return func(ctx context.Context, addr string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		return d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), port))
	}
}

// Create dials a new transport to the configured endpoint.
func (f *Factory) Create(_ context.Context) (types.Transport, error) {
	target := f.cfg.Endpoint
	if f.cfg.OverrideIP != nil {
		// Skip name resolution; the authority stays the endpoint host.
		target = "passthrough:///" + target
	}

	t, err := Dial(target, f.opts...)
	if err != nil {
		return nil, err
	}
	t.endpoint = f.cfg.Endpoint

	return t, nil
}

// Endpoint returns the configured endpoint.
func (f *Factory) Endpoint() string {
	return f.cfg.Endpoint
}
