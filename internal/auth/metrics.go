// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for flow metrics.
const (
	OutcomeSuccess = "success"
	OutcomePending = "pending"
	OutcomeMFA     = "mfa"
)

// FlowCompletions counts authentication flows by flow name and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowCompletions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_flow_completions_total",
		Help: "Total number of completed authentication flows",
	},
	[]string{"flow", "outcome"},
)

// FlowDuration tracks the latency of authentication flows.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authgate_flow_duration_seconds",
		Help:    "Authentication flow duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"flow"},
)

// RefreshRotations counts refresh token rotation attempts by result.
var RefreshRotations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_refresh_rotations_total",
		Help: "Total number of refresh token rotation attempts",
	},
	[]string{"result"},
)

// BreachChecks counts breach corpus lookups by result.
var BreachChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_breach_checks_total",
		Help: "Total number of password breach lookups",
	},
	[]string{"result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(FlowCompletions)
	reg.MustRegister(FlowDuration)
	reg.MustRegister(RefreshRotations)
	reg.MustRegister(BreachChecks)
}

// RecordFlow records a finished flow. Failed flows are labelled with their error kind.
func RecordFlow(flow, outcome string, duration time.Duration) {
	FlowCompletions.WithLabelValues(flow, outcome).Inc()
	FlowDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

func recordRefreshRotation(result string) {
	RefreshRotations.WithLabelValues(result).Inc()
}

func recordBreachCheck(result string) {
	BreachChecks.WithLabelValues(result).Inc()
}
