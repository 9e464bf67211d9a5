// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// high-performance Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with default prefix "bigtable":
//
//	collector := vm.New()
//	session, _ := bigtable.NewSession(cfg,
//	    bigtable.WithMetrics(collector),
//	)
//
// # Custom Prefix
//
// Use WithPrefix to customize the metric name prefix:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//
// This produces metrics like:
//   - myapp_calls_total{method="MutateRow"}
//   - myapp_pending_bytes
//
// # Exposing Metrics
//
// Use the Handler method to expose metrics via HTTP:
//
//	http.HandleFunc("/metrics", collector.Handler)
//	http.ListenAndServe(":8080", nil)
//
// Or use WritePrometheus to write metrics to a custom writer:
//
//	collector.WritePrometheus(w)
//
// # Metrics Provided
//
// Calls (labelled by short method name):
//   - {prefix}_calls_total{method} - Counter of issued calls
//   - {prefix}_call_errors_total{method} - Counter of failed calls
//   - {prefix}_call_duration_seconds{method} - Histogram of call latencies
//   - {prefix}_retry_attempts_total{method} - Counter of resubmissions
//   - {prefix}_retry_exhausted_total{method} - Counter of calls that ran out of retry budget
//
// Connections:
//   - {prefix}_reconnects_total - Counter of transports replaced after a connection failure
//   - {prefix}_connect_errors_total - Counter of transport creation failures
//
// Write buffer:
//   - {prefix}_mutations_admitted_total - Counter of admitted mutations
//   - {prefix}_mutations_failed_total - Counter of mutations whose RPC failed
//   - {prefix}_mutations_rejected_total - Counter of mutations rejected before admission
//   - {prefix}_admission_wait_seconds - Histogram of time producers spent blocked
//   - {prefix}_pending_bytes - Gauge of estimated in-flight memory
//   - {prefix}_pending_rpcs - Gauge of in-flight RPCs
//
// Dead letter:
//   - {prefix}_dead_letter_published_total - Counter of failed mutations stored for replay
//   - {prefix}_dead_letter_dropped_total - Counter of failed mutations that could not be stored
//
// # Performance Notes
//
// Series are pre-created at initialization time using the NewXXX pattern
// (instead of GetOrCreateXXX) for the hot paths, as recommended by the
// VictoriaMetrics documentation.
package vm
