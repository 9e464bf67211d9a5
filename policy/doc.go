// Package policy provides the retry policy of the bigtable client.
//
// A call is retried only when two independent checks pass:
//
//   - The request is eligible: its method is registered in a [MethodPredicates]
//     map and the method's [RetryPredicate] accepts the request.
//   - The failure is transient according to [IsTransient].
//
// # Predicates
//
// [DefaultMethodPredicates] registers MutateRow and CheckAndMutateRow. Both
// accept a request only if every edit carries an explicit timestamp, since a
// server-assigned timestamp makes a resubmission write a second cell version.
//
// Custom predicates can be added for other idempotent methods:
//
//	preds := policy.DefaultMethodPredicates()
//	preds[types.MethodReadModifyWrite] = policy.RetryPredicateFunc(func(types.Request) bool {
//	    return false
//	})
//
// # Backoff
//
// [Backoff] produces the delays between attempts: InitialBackoff, then
// multiplied by Multiplier after each attempt, without jitter. The schedule
// stops once the total elapsed time would exceed MaxElapsed.
//
//	b := policy.NewBackoff(policy.DefaultBackoffConfig(), nil)
//	for {
//	    delay, ok := b.Next()
//	    if !ok {
//	        break // budget exhausted
//	    }
//	    time.Sleep(delay)
//	}
package policy
