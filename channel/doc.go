// Package channel provides the resilient channel layer of the bigtable client.
//
// Three channels stack on top of a raw [types.Transport]:
//
//   - [ReconnectingChannel] owns one logical connection. It creates its
//     transport lazily and replaces it after a connection-level failure.
//   - [Pool] spreads calls round-robin across several reconnecting channels
//     to the same endpoint.
//   - [RetryingChannel] resubmits eligible calls after transient failures,
//     using exponential backoff bounded by a total elapsed time.
//
// All three implement [types.Channel], so they compose freely:
//
//	members := make([]channel.Member, n)
//	for i := range members {
//	    members[i], _ = channel.NewReconnectingChannel(factory)
//	}
//	pool, _ := channel.NewPool(members...)
//	ch, _ := channel.NewRetryingChannel(pool)
//
//	resp, err := ch.Call(ctx, req).Wait(ctx)
//
// # Closing
//
// Closing a channel asks its transport for a graceful shutdown and waits for
// termination, using the transport's termination signal when it offers one.
// If the context expires first, the error is returned and ShutdownNow forces
// the transport down.
package channel
