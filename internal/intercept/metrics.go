// Copyright 2026 The Bridle Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package intercept

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridle_decisions_total",
			Help: "Total number of policy decisions by outcome and risk tier.",
		},
		[]string{"outcome", "tier"},
	)

	gateOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridle_gate_outcomes_total",
			Help: "Total number of resolved gates by outcome.",
		},
		[]string{"outcome"},
	)

	executionAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridle_execution_attempts",
			Help:    "Performer invocations per governed action.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	executionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridle_execution_failures_total",
			Help: "Failed governed actions by retry category.",
		},
		[]string{"category"},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(
		decisionsTotal,
		gateOutcomesTotal,
		executionAttempts,
		executionFailures,
		prometheus.NewGoCollector(),
	)
}

// RecordDecision records one policy decision.
func RecordDecision(outcome, tier string) {
	decisionsTotal.With(prometheus.Labels{"outcome": outcome, "tier": tier}).Inc()
}

// RecordGate records one resolved gate.
func RecordGate(outcome string) {
	gateOutcomesTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordExecution records one retry-wrapped execution.
func RecordExecution(attempts int, success bool, category string) {
	executionAttempts.Observe(float64(attempts))
	if !success {
		executionFailures.With(prometheus.Labels{"category": category}).Inc()
	}
}

// MetricsHandler serves the interceptor metrics registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
