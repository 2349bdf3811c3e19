// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationsTotal counts coordinator operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "usersflow_auth_operations_total",
		Help: "Total number of authentication operations",
	},
	[]string{"operation", "outcome"},
)

// OperationDuration is the histogram for coordinator operation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "usersflow_auth_operation_duration_seconds",
		Help:    "Authentication operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationDuration)
}

// RecordOperation records one completed operation.
func RecordOperation(operation string, outcome Outcome, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, string(outcome)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
