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

// Package metrics defines minimal interfaces for instrumentation, so
// libraries can be instrumented without depending on a concrete metrics
// implementation. Production code wires prometheus adapters, tests wire the
// fakes. All helpers treat nil metrics as no-ops.
package metrics

// Counter describes a metric that accumulates values monotonically.
type Counter interface {
	// With returns a counter with the given label values attached.
	With(labelValues ...string) Counter
	Add(delta float64)
}

// Gauge describes a metric that takes a specific value over time.
type Gauge interface {
	// With returns a gauge with the given label values attached.
	With(labelValues ...string) Gauge
	Set(value float64)
	Add(delta float64)
}

// CounterWith attaches label values to the counter. The counter can be nil.
func CounterWith(c Counter, labelValues ...string) Counter {
	if c == nil {
		return nil
	}
	return c.With(labelValues...)
}

// GaugeWith attaches label values to the gauge. The gauge can be nil.
func GaugeWith(g Gauge, labelValues ...string) Gauge {
	if g == nil {
		return nil
	}
	return g.With(labelValues...)
}

// CounterInc increases the passed counter by one. The counter can be nil.
func CounterInc(c Counter) {
	CounterAdd(c, 1)
}

// CounterAdd increases the passed counter by delta. The counter can be nil.
func CounterAdd(c Counter, delta float64) {
	if c != nil {
		c.Add(delta)
	}
}

// GaugeSet sets the passed gauge to value. The gauge can be nil.
func GaugeSet(g Gauge, value float64) {
	if g != nil {
		g.Set(value)
	}
}

// GaugeAdd increases the passed gauge by delta. The gauge can be nil.
func GaugeAdd(g Gauge, delta float64) {
	if g != nil {
		g.Add(delta)
	}
}
