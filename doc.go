// Package bigtable provides a client-side transport for a remote wide-column
// store: a pool of self-healing connections, a retry layer for transient
// failures and a flow-controlled write buffer.
//
// # Key Features
//
//   - Reconnecting Channels: A lost connection is replaced transparently; no caller holds a dead transport
//   - Channel Pool: Calls are spread round-robin across a fixed set of connections
//   - Safe Retries: Only calls whose replay cannot change the outcome are retried
//   - Write Buffer: Asynchronous mutations bounded by bytes and RPCs in flight
//   - Dead Letters: Failed mutations can be parked in memory or NATS JetStream and resubmitted
//
// # Basic Usage
//
//	cfg := bigtable.DefaultConfig()
//	cfg.Endpoint = "bigtable.googleapis.com:443"
//	cfg.UserAgent = "ingest/1.4"
//
//	session, err := bigtable.NewSession(cfg,
//	    bigtable.WithLogger(zerologadapter.New(logger)),
//	    bigtable.WithMetrics(vm.New(vm.WithPrefix("ingest"))),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close(context.Background())
//
//	buf, err := session.NewWriteBuffer("projects/p/instances/i/tables/events")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m := &bigtable.Mutation{
//	    RowKey: []byte("row-1"),
//	    Edits: []bigtable.Edit{{
//	        Kind:      bigtable.KindSet,
//	        Family:    "cf",
//	        Qualifier: []byte("q"),
//	        Value:     []byte("v"),
//	        Timestamp: time.Now().UnixMicro(),
//	    }},
//	}
//	if err := buf.Mutate(ctx, m); err != nil {
//	    log.Fatal(err)
//	}
//	if err := buf.Flush(ctx); err != nil {
//	    // err is the exception listener's result, a *types.AggregateError by default
//	}
//
// # Retries
//
// A failed call is retried when all of these hold:
//   - its method has a retry predicate that accepts the request
//   - the failure is transient (connection loss, Unavailable, DeadlineExceeded, Aborted)
//   - the caller's context is still live
//
// MutateRow and CheckAndMutateRow are only retried when every edit carries an
// explicit timestamp. Server-assigned timestamps would make a replay write a
// new cell version. Backoff is exponential and bounded by total elapsed time;
// once the budget is spent the caller receives a *types.RetryError carrying
// the attempt count and the last failure.
//
// # Sentinel Errors
//
//   - types.ErrSessionClosed: Write buffer requested from a closed session
//   - types.ErrBufferClosed: Mutation submitted to a closed write buffer
//   - types.ErrChannelClosed: Call issued on a closed channel
//   - types.ErrInvalidConfig: Configuration failed validation
//
// Check for sentinel errors using errors.Is and for typed errors using errors.As:
//
//	var retryErr *types.RetryError
//	if errors.As(err, &retryErr) {
//	    log.Printf("gave up after %d attempts: %v", retryErr.Attempts, retryErr.Cause)
//	}
//
// # Configuration Files
//
// LoadConfig reads YAML or TOML:
//
//	endpoint: bigtable.googleapis.com:443
//	user_agent: ingest/1.4
//	channel_count: 4
//	timeout: 30s
//	retry:
//	  enabled: true
//	  initial_backoff: 5ms
//	  backoff_multiplier: 2
//	  max_elapsed_backoff: 60s
//
// # Backends
//
// The default transport is gRPC (adapter/grpc). WithTransportFactory swaps in
// another backend, such as a Cassandra-compatible cluster through adapter/cql.
package bigtable
