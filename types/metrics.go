package types

// MetricsCollector defines methods for collecting operational metrics.
//
// Method-scoped methods accept the RPC Method for labeling.
// Implementations should be thread-safe as methods may be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/BrendanGleason/cloud-bigtable-client/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	session, _ := bigtable.NewSession(cfg,
//	    bigtable.WithMetrics(collector),
//	)
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Calls
	// ----------------------

	// IncCallTotal increments the total calls counter.
	IncCallTotal(method Method)

	// IncCallError increments the failed calls counter.
	IncCallError(method Method)

	// ObserveCallDuration records a call duration in seconds.
	ObserveCallDuration(method Method, seconds float64)

	// ----------------------
	// Retries
	// ----------------------

	// IncRetryAttempt increments the counter when a failed call is rescheduled.
	IncRetryAttempt(method Method)

	// IncRetryExhausted increments the counter when a call runs out of retry budget.
	IncRetryExhausted(method Method)

	// ----------------------
	// Connections
	// ----------------------

	// IncReconnect increments the counter when a channel replaces its transport.
	IncReconnect()

	// IncConnectError increments the counter when transport creation fails.
	IncConnectError()

	// ----------------------
	// Write Buffer
	// ----------------------

	// IncMutationAdmitted increments the counter when a mutation is admitted.
	IncMutationAdmitted()

	// IncMutationFailed increments the counter when an admitted mutation fails.
	IncMutationFailed()

	// IncMutationRejected increments the counter when a mutation is rejected before admission.
	IncMutationRejected()

	// ObserveAdmissionWait records time spent blocked on flow control, in seconds.
	ObserveAdmissionWait(seconds float64)

	// SetPendingBytes sets the estimated heap size of in-flight mutations.
	SetPendingBytes(bytes int64)

	// SetPendingRPCs sets the number of in-flight mutation RPCs.
	SetPendingRPCs(count int)

	// ----------------------
	// Dead Letter
	// ----------------------

	// IncDeadLetterPublished increments the counter when a failed mutation is dead-lettered.
	IncDeadLetterPublished()

	// IncDeadLetterDropped increments the counter when a failed mutation cannot be dead-lettered.
	IncDeadLetterDropped()
}
