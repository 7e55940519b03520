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

// Package broker fans one operation out to many aggregates concurrently
// and collects per-aggregate outcomes instead of failing on the first
// error. Aggregates are independently operated; one being down must not
// block work on the others.
//
// Only transport-level unreachability is retried. Remote faults are policy
// decisions by the aggregate and retrying them cannot change the answer.
//
// Once a call is in flight it runs to completion or to its own timeout;
// cancelling the dispatch context stops scheduling further calls and
// further retries but does not abort calls already started, so
// state-changing operations never end in an unknown half-cancelled state.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fedra-project/fedra/pkg/aggregate"
	"github.com/fedra-project/fedra/pkg/log"
	"github.com/fedra-project/fedra/pkg/metrics"
	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// Policy decides how partial failure affects the dispatch result.
type Policy string

const (
	// BestEffort succeeds when at least one aggregate succeeds; failures
	// are reported in the outcomes.
	BestEffort Policy = "best-effort"
	// AllOrNothing fails when any aggregate fails. Work already done on
	// other aggregates is not rolled back; the outcomes tell the caller
	// exactly what succeeded.
	AllOrNothing Policy = "all-or-nothing"
)

const (
	defaultMaxInFlight     = 8
	defaultCallTimeout     = 2 * time.Minute
	defaultMaxRetries      = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// Call performs one operation against one aggregate.
type Call func(ctx context.Context) (interface{}, error)

// Request names one aggregate's share of a dispatch.
type Request struct {
	// Aggregate identifies the target in outcomes, logs and metrics.
	Aggregate string
	Call      Call
}

// Outcome is the result of one aggregate's call, retries included.
type Outcome struct {
	Aggregate string
	Value     interface{}
	Err       error
	Attempts  int
	Duration  time.Duration
}

// BatchResult holds the outcomes of one dispatch, in request order.
type BatchResult struct {
	Outcomes []Outcome
}

// Succeeded returns the outcomes that completed without error.
func (r BatchResult) Succeeded() []Outcome {
	return r.filter(false)
}

// Failed returns the outcomes that ended in error.
func (r BatchResult) Failed() []Outcome {
	return r.filter(true)
}

func (r BatchResult) filter(failed bool) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if (o.Err != nil) == failed {
			out = append(out, o)
		}
	}
	return out
}

// Config configures a Broker. The zero value gets usable defaults.
type Config struct {
	// MaxInFlight bounds concurrent calls across all aggregates.
	MaxInFlight int
	// CallTimeout bounds one aggregate's call including retries.
	CallTimeout time.Duration
	// MaxRetries bounds retry attempts after the first try.
	MaxRetries int
	// InitialRetryInterval seeds the exponential backoff.
	InitialRetryInterval time.Duration
	// Retryable decides which errors are worth retrying. Defaults to
	// transport unreachability.
	Retryable func(error) bool
	Logger    log.Logger
	Metrics   Metrics
}

// InitDefaults fills unset fields.
func (cfg *Config) InitDefaults() {
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialRetryInterval == 0 {
		cfg.InitialRetryInterval = defaultInitialInterval
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool {
			return errors.Is(err, aggregate.ErrUnreachable)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Root()
	}
}

// Broker dispatches operations to sets of aggregates.
type Broker struct {
	cfg Config
}

// New creates a broker.
func New(cfg Config) *Broker {
	cfg.InitDefaults()
	return &Broker{cfg: cfg}
}

// Dispatch runs every request and collects the outcomes. The returned
// error reflects the policy: nil for BestEffort unless every aggregate
// failed, non-nil for AllOrNothing if any failed. The outcomes are always
// complete regardless of the error.
func (b *Broker) Dispatch(
	ctx context.Context,
	policy Policy,
	reqs []Request,
) (BatchResult, error) {

	res := BatchResult{Outcomes: make([]Outcome, len(reqs))}
	if len(reqs) == 0 {
		return res, nil
	}
	logger := b.cfg.Logger.New("policy", string(policy))

	var g errgroup.Group
	g.SetLimit(b.cfg.MaxInFlight)
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			// Stop scheduling; mark the rest as not attempted.
			for j := i; j < len(reqs); j++ {
				res.Outcomes[j] = Outcome{
					Aggregate: reqs[j].Aggregate,
					Err:       serrors.Wrap("dispatch cancelled", err),
				}
			}
			break
		}
		i, req := i, req
		g.Go(func() error {
			res.Outcomes[i] = b.run(ctx, logger, req)
			return nil
		})
	}
	_ = g.Wait()

	metrics.CounterInc(metrics.CounterWith(b.cfg.Metrics.Dispatches,
		"policy", string(policy), "result", dispatchResult(res)))
	return res, b.policyError(policy, res)
}

// run executes one request with retries. In-flight calls survive dispatch
// cancellation and are bounded by the per-call timeout only; cancellation
// stops further retries.
func (b *Broker) run(ctx context.Context, logger log.Logger, req Request) Outcome {
	// The goroutine may have been queued on the in-flight limit while the
	// dispatch was cancelled.
	if err := ctx.Err(); err != nil {
		return Outcome{
			Aggregate: req.Aggregate,
			Err:       serrors.Wrap("dispatch cancelled", err),
		}
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.CallTimeout)
	defer cancel()

	metrics.GaugeAdd(b.cfg.Metrics.InFlight, 1)
	defer metrics.GaugeAdd(b.cfg.Metrics.InFlight, -1)

	out := Outcome{Aggregate: req.Aggregate}
	start := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.InitialRetryInterval
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(b.cfg.MaxRetries)), callCtx)

	err := backoff.Retry(func() error {
		out.Attempts++
		value, err := req.Call(callCtx)
		if err == nil {
			out.Value = value
			return nil
		}
		if !b.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		// The attempt itself ran to completion on the detached context;
		// cancellation only forbids starting another one.
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if out.Attempts <= b.cfg.MaxRetries {
			metrics.CounterInc(metrics.CounterWith(b.cfg.Metrics.Retries,
				"aggregate", req.Aggregate))
			logger.Debug("Retrying aggregate call",
				"aggregate", req.Aggregate, "attempt", out.Attempts, "err", err)
		}
		return err
	}, policy)

	out.Duration = time.Since(start)
	out.Err = err
	if err != nil {
		logger.Info("Aggregate call failed",
			"aggregate", req.Aggregate, "attempts", out.Attempts, "err", err)
	}
	return out
}

func (b *Broker) policyError(policy Policy, res BatchResult) error {
	failed := res.Failed()
	if len(failed) == 0 {
		return nil
	}
	switch policy {
	case BestEffort:
		if len(failed) < len(res.Outcomes) {
			return nil
		}
		return serrors.Join(errList(failed).ToError(), nil,
			"reason", "all aggregates failed")
	case AllOrNothing:
		return serrors.Join(errList(failed).ToError(), nil,
			"reason", "aggregates failed", "failed", len(failed))
	default:
		return serrors.New("unknown policy", "policy", policy)
	}
}

func errList(failed []Outcome) serrors.List {
	var list serrors.List
	for _, o := range failed {
		list = append(list, serrors.Wrap("aggregate", o.Err, "name", o.Aggregate))
	}
	return list
}

func dispatchResult(res BatchResult) string {
	switch n := len(res.Failed()); {
	case n == 0:
		return "ok"
	case n < len(res.Outcomes):
		return "partial"
	default:
		return "failed"
	}
}
