// Copyright 2025 The Fedra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fedra-project/fedra/pkg/metrics"
)

// Metrics used by the broker. Nil members are a no-op.
type Metrics struct {
	// Dispatches counts dispatch batches, labeled by policy and result
	// (ok, partial, failed).
	Dispatches metrics.Counter
	// Retries counts retried calls, labeled by aggregate.
	Retries metrics.Counter
	// InFlight tracks currently running aggregate calls.
	InFlight metrics.Gauge
}

// NewMetrics creates broker metrics registered with the default prometheus
// registerer.
func NewMetrics(namespace string) Metrics {
	return Metrics{
		Dispatches: metrics.NewPromCounterFrom(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "dispatches_total",
			Help:      "Dispatch batches by policy and result.",
		}, []string{"policy", "result"}),
		Retries: metrics.NewPromCounterFrom(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_retries_total",
			Help:      "Retried aggregate calls.",
		}, []string{"aggregate"}),
		InFlight: metrics.NewPromGauge(prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "calls_in_flight",
			Help:      "Currently running aggregate calls.",
		}, []string{})),
	}
}
