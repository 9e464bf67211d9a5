// Package testutil provides test utilities and mock implementations for bigtable client testing.
//
// # Mock Implementations
//
//   - [MockTransport]: In-memory types.Transport with scripted calls and termination
//   - [MockTransportFactory]: Creates and records MockTransports, can fail on demand
//   - [MockChannel]: types.Channel that fails with a scripted error sequence
//   - [MockExecutor]: Write buffer executor whose futures the test completes
//   - [ManualClock]: types.Clock advanced explicitly
//
// # Usage
//
//	factory := testutil.NewMockTransportFactory()
//	ch, _ := channel.NewReconnectingChannel(factory)
//
//	resp, err := ch.Call(ctx, req).Wait(ctx)
//	require.NoError(t, err)
//	require.Equal(t, 1, factory.Count())
//
// # Integration Test Helpers
//
//   - StartEmbeddedNATS: Starts an embedded NATS JetStream server for dead-letter tests
//   - StartCassandra: Starts a Cassandra test container for the CQL transport (requires Docker)
//   - [TestMetricsCollector]: types.MetricsCollector recording every call
package testutil
