// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package governor

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for tool invocations
var (
	promToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolgate_tool_calls_total",
			Help: "Total number of tool invocations by outcome",
		},
		[]string{"tool", "outcome"},
	)
	promToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toolgate_tool_duration_milliseconds",
			Help:    "Tool execution duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(promToolCalls)
	prometheus.MustRegister(promToolDuration)
}

const outcomeOK = "ok"
