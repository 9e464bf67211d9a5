// Package metrics provides internal metrics utilities for the bigtable client.
package metrics

import "github.com/BrendanGleason/cloud-bigtable-client/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns m, or a NopMetrics when m is nil.
func OrNop(m types.MetricsCollector) types.MetricsCollector {
	if m == nil {
		return NewNopMetrics()
	}

	return m
}

// ----------------------
// Calls
// ----------------------

// IncCallTotal discards the metric.
func (m *NopMetrics) IncCallTotal(_ types.Method) {}

// IncCallError discards the metric.
func (m *NopMetrics) IncCallError(_ types.Method) {}

// ObserveCallDuration discards the metric.
func (m *NopMetrics) ObserveCallDuration(_ types.Method, _ float64) {}

// ----------------------
// Retries
// ----------------------

// IncRetryAttempt discards the metric.
func (m *NopMetrics) IncRetryAttempt(_ types.Method) {}

// IncRetryExhausted discards the metric.
func (m *NopMetrics) IncRetryExhausted(_ types.Method) {}

// ----------------------
// Connections
// ----------------------

// IncReconnect discards the metric.
func (m *NopMetrics) IncReconnect() {}

// IncConnectError discards the metric.
func (m *NopMetrics) IncConnectError() {}

// ----------------------
// Write Buffer
// ----------------------

// IncMutationAdmitted discards the metric.
func (m *NopMetrics) IncMutationAdmitted() {}

// IncMutationFailed discards the metric.
func (m *NopMetrics) IncMutationFailed() {}

// IncMutationRejected discards the metric.
func (m *NopMetrics) IncMutationRejected() {}

// ObserveAdmissionWait discards the metric.
func (m *NopMetrics) ObserveAdmissionWait(_ float64) {}

// SetPendingBytes discards the metric.
func (m *NopMetrics) SetPendingBytes(_ int64) {}

// SetPendingRPCs discards the metric.
func (m *NopMetrics) SetPendingRPCs(_ int) {}

// ----------------------
// Dead Letter
// ----------------------

// IncDeadLetterPublished discards the metric.
func (m *NopMetrics) IncDeadLetterPublished() {}

// IncDeadLetterDropped discards the metric.
func (m *NopMetrics) IncDeadLetterDropped() {}
