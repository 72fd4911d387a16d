// Copyright (c) 2026 John Earle
//
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

// Package metrics exposes Prometheus instruments for the sweeps, the
// upstream client and the alert policy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procmon"

// Registry holds every instrument in this package plus the Go runtime
// collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// UpstreamRequests counts judicial-records API calls by court and result
	// (hit, miss, error, timeout).
	UpstreamRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Judicial-records API calls by court system and result.",
	}, []string{"court", "result"})

	// SweepRuns counts orchestrator invocations per flow.
	SweepRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Job orchestrator invocations by flow.",
	}, []string{"flow"})

	// SweepDuration observes how long each flow takes.
	SweepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Job orchestrator run time by flow.",
		Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"flow"})

	// ItemOutcomes counts per-item outcomes of every flow.
	ItemOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_item_outcomes_total",
		Help:      "Per-item outcomes by flow.",
	}, []string{"flow", "outcome"})

	// AlertsCreated counts inserted alerts.
	AlertsCreated = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_created_total",
		Help:      "Alerts inserted by kind and priority.",
	}, []string{"kind", "priority"})

	// AlertsSuppressed counts raise calls that found a pending duplicate.
	AlertsSuppressed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_suppressed_total",
		Help:      "Alert raises suppressed by deduplication, by kind.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
