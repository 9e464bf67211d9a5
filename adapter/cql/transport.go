package cql

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gocql/gocql"

	"github.com/BrendanGleason/cloud-bigtable-client/types"
)

// Statement is a raw CQL statement payload.
type Statement struct {
	// Query is the CQL statement with ? placeholders.
	Query string

	// Args are bound to the placeholders.
	Args []any

	// Consistency overrides the session consistency when non-zero.
	Consistency gocql.Consistency
}

// Transport issues calls on one gocql session.
//
// MutateRow requests are written to a cell table (see CellTableSchema) whose
// name is the last path segment of the request's table. Statement payloads
// are executed as-is.
type Transport struct {
	session  *gocql.Session
	endpoint string

	mu       sync.Mutex
	inflight sync.WaitGroup
	shutdown bool

	closeOnce  sync.Once
	terminated chan struct{}
}

// Compile-time assertions for Transport.
var (
	_ types.Transport           = (*Transport)(nil)
	_ types.TerminationNotifier = (*Transport)(nil)
)

// NewTransport wraps session. The transport takes ownership of it.
//
// Parameters:
//   - session: An open gocql session
//   - endpoint: Label used in connection errors
//
// Returns:
//   - *Transport: A new transport
func NewTransport(session *gocql.Session, endpoint string) *Transport {
	return &Transport{
		session:    session,
		endpoint:   endpoint,
		terminated: make(chan struct{}),
	}
}

// Call issues req asynchronously.
//
// Supported payloads are *types.MutateRowRequest and *Statement.
func (t *Transport) Call(ctx context.Context, req types.Request) *types.Future {
	exec, err := t.prepare(req.Payload)
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

		if err := exec(ctx); err != nil {
			f.Complete(nil, t.classify(err))

			return
		}
		f.Complete(nil, nil)
	}()

	return f
}

func (t *Transport) prepare(payload any) (func(context.Context) error, error) {
	switch p := payload.(type) {
	case *types.MutateRowRequest:
		b, err := buildMutation(t.session, p.Table, p.Mutation)
		if err != nil {
			return nil, err
		}

		return func(ctx context.Context) error {
			return t.session.ExecuteBatch(b.WithContext(ctx))
		}, nil
	case *Statement:
		return func(ctx context.Context) error {
			q := t.session.Query(p.Query, p.Args...).WithContext(ctx)
			if p.Consistency != 0 {
				q = q.Consistency(p.Consistency)
			}

			return q.Exec()
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", types.ErrUnsupportedPayload, payload)
	}
}

// classify marks connection-level failures so the owning channel reconnects
// and maps server error codes to status codes.
func (t *Transport) classify(err error) error {
	switch {
	case errors.Is(err, gocql.ErrNoConnections),
		errors.Is(err, gocql.ErrConnectionClosed),
		errors.Is(err, gocql.ErrSessionClosed):
		return &types.ConnectionError{Endpoint: t.endpoint, Cause: err}
	default:
		return withStatus(err)
	}
}

// Shutdown stops accepting calls and closes the session once in-flight calls
// have finished. It returns without waiting.
func (t *Transport) Shutdown() error {
	if !t.beginShutdown() {
		return nil
	}

	go func() {
		t.inflight.Wait()
		t.close()
	}()

	return nil
}

// ShutdownNow closes the session immediately.
func (t *Transport) ShutdownNow() error {
	t.beginShutdown()
	t.close()

	return nil
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

func (t *Transport) close() {
	t.closeOnce.Do(func() {
		t.session.Close()
		close(t.terminated)
	})
}

// IsTerminated reports whether the session has been closed.
func (t *Transport) IsTerminated() bool {
	select {
	case <-t.terminated:
		return true
	default:
		return false
	}
}

// Terminated returns a channel closed once the session has been closed.
func (t *Transport) Terminated() <-chan struct{} {
	return t.terminated
}

// Factory creates a fresh gocql session per transport.
type Factory struct {
	cluster *gocql.ClusterConfig
}

// Compile-time assertion that Factory implements types.TransportFactory.
var _ types.TransportFactory = (*Factory)(nil)

// NewFactory returns a factory creating sessions from cluster.
//
// Parameters:
//   - cluster: Cluster configuration; its Keyspace holds the cell tables
//
// Returns:
//   - *Factory: A new factory
//   - error: ErrInvalidConfig if cluster is nil or has no hosts
func NewFactory(cluster *gocql.ClusterConfig) (*Factory, error) {
	if cluster == nil || len(cluster.Hosts) == 0 {
		return nil, fmt.Errorf("%w: cluster has no hosts", types.ErrInvalidConfig)
	}

	return &Factory{cluster: cluster}, nil
}

// Create opens a new session.
func (f *Factory) Create(_ context.Context) (types.Transport, error) {
	session, err := f.cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("bigtable: create cql session: %w", err)
	}

	return NewTransport(session, f.cluster.Hosts[0]), nil
}
