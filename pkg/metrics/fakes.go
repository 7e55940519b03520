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

package metrics

import (
	"sync"
)

// node is the shared implementation of test gauges and counters.
type node struct {
	mtx sync.Mutex
	v   float64
}

func (b *node) add(delta float64, canBeNegative bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if !canBeNegative && delta < 0 {
		panic("counter increment value is < 0")
	}
	b.v += delta
}

func (b *node) set(v float64) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.v = v
}

func (b *node) value() float64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.v
}

// TestCounter implements a counter for use in tests.
type TestCounter struct {
	*node
}

// NewTestCounter creates a new counter for use in tests.
func NewTestCounter() *TestCounter {
	return &TestCounter{node: &node{}}
}

// With implements Counter. Label values are ignored; the same underlying
// value is shared so tests can assert totals.
func (c *TestCounter) With(labelValues ...string) Counter {
	return c
}

// Add increases the internal value of the counter by the specified delta.
func (c *TestCounter) Add(delta float64) {
	c.add(delta, false)
}

// CounterValue extracts the value out of a TestCounter. If the argument is
// not a *TestCounter, CounterValue panics.
func CounterValue(c Counter) float64 {
	return c.(*TestCounter).value()
}

// TestGauge implements a gauge for use in tests.
type TestGauge struct {
	*node
}

// NewTestGauge creates a new gauge for use in tests.
func NewTestGauge() *TestGauge {
	return &TestGauge{node: &node{}}
}

// With implements Gauge. Label values are ignored.
func (g *TestGauge) With(labelValues ...string) Gauge {
	return g
}

// Set sets the internal value of the gauge to the specified value.
func (g *TestGauge) Set(v float64) {
	g.set(v)
}

// Add increases the internal value of the gauge by the specified delta.
func (g *TestGauge) Add(delta float64) {
	g.add(delta, true)
}

// GaugeValue extracts the value out of a TestGauge. If the argument is not a
// *TestGauge, GaugeValue panics.
func GaugeValue(g Gauge) float64 {
	return g.(*TestGauge).value()
}
