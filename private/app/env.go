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

// Package app assembles the federation client from its configuration:
// identity, trust store, aggregate clients, dispatch broker and registry.
package app

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fedra-project/fedra/pkg/aggregate"
	"github.com/fedra-project/fedra/pkg/log"
	"github.com/fedra-project/fedra/pkg/metrics"
	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/private/broker"
	"github.com/fedra-project/fedra/private/config"
	"github.com/fedra-project/fedra/private/registry"
	"github.com/fedra-project/fedra/private/storage/registrydb"
)

// Env is the assembled runtime of the client.
type Env struct {
	Cfg      config.Config
	Identity *fedpki.Identity
	Store    *fedpki.TrustStore
	Registry registry.Registry
	Broker   *broker.Broker
	// Clients by aggregate name, in configuration order in Order.
	Clients map[string]*aggregate.Client
	Order   []string

	closers []io.Closer
}

// Setup loads the configuration and assembles the environment. Logging is
// configured as a side effect.
func Setup(configPath string) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := log.Setup(cfg.Logging); err != nil {
		return nil, serrors.Wrap("setting up logging", err)
	}
	identity, err := fedpki.LoadIdentity(cfg.Identity.CertFile, cfg.Identity.KeyFile)
	if err != nil {
		return nil, serrors.Wrap("loading identity", err)
	}
	store, err := fedpki.LoadTrustRoots(cfg.Trust.RootPaths...)
	if err != nil {
		return nil, serrors.Wrap("loading trust roots", err)
	}

	env := &Env{
		Cfg:      cfg,
		Identity: identity,
		Store:    store,
		Clients:  make(map[string]*aggregate.Client, len(cfg.Aggregates)),
	}
	if cfg.Registry.DBPath != "" {
		db, err := registrydb.New(cfg.Registry.DBPath)
		if err != nil {
			return nil, err
		}
		env.Registry = db
		env.closers = append(env.closers, db)
	} else {
		env.Registry = registry.NewMemory()
	}
	calls := metrics.NewPromCounterFrom(prometheus.CounterOpts{
		Namespace: "fedra",
		Subsystem: "aggregate",
		Name:      "calls_total",
		Help:      "Delivered aggregate RPCs.",
	}, []string{"aggregate", "operation", "result"})
	for _, desc := range cfg.Aggregates {
		client, err := aggregate.NewClient(aggregate.ClientConfig{
			Descriptor:        desc,
			Identity:          identity,
			TrustStore:        store,
			Calls:             metrics.CounterWith(calls, "aggregate", desc.Name),
			NegativeVerifyTTL: cfg.Trust.NegativeVerifyTTL.Duration,
		})
		if err != nil {
			return nil, serrors.Wrap("building aggregate client", err,
				"name", desc.Name)
		}
		env.Clients[desc.Name] = client
		env.Order = append(env.Order, desc.Name)
	}
	env.Broker = broker.New(broker.Config{
		MaxInFlight: cfg.Dispatch.MaxInFlight,
		CallTimeout: cfg.Dispatch.CallTimeout.Duration,
		MaxRetries:  cfg.Dispatch.MaxRetries,
		Metrics:     broker.NewMetrics("fedra"),
	})
	return env, nil
}

// Close releases held resources.
func (e *Env) Close() error {
	var errs serrors.List
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.ToError()
}

// Select resolves aggregate names to clients, all aggregates when names is
// empty. Order follows the configuration.
func (e *Env) Select(names []string) ([]*aggregate.Client, error) {
	if len(names) == 0 {
		out := make([]*aggregate.Client, 0, len(e.Order))
		for _, name := range e.Order {
			out = append(out, e.Clients[name])
		}
		if len(out) == 0 {
			return nil, serrors.New("no aggregates configured")
		}
		return out, nil
	}
	out := make([]*aggregate.Client, 0, len(names))
	for _, name := range names {
		client, ok := e.Clients[name]
		if !ok {
			return nil, serrors.New("unknown aggregate", "name", name)
		}
		out = append(out, client)
	}
	return out, nil
}

// SliceCredential loads and parses the stored credential of a registered
// slice.
func (e *Env) SliceCredential(ctx context.Context, urn string) (*credential.Credential, error) {
	slice, err := e.Registry.Slice(ctx, urn)
	if err != nil {
		return nil, err
	}
	if len(slice.Credential) == 0 {
		return nil, serrors.New("no credential stored for slice", "slice", urn)
	}
	cred, err := credential.Parse(slice.Credential)
	if err != nil {
		return nil, serrors.Wrap("parsing stored slice credential", err, "slice", urn)
	}
	return cred, nil
}
