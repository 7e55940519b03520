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

// Package config holds the TOML configuration of the federation client.
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/fedra-project/fedra/pkg/aggregate"
	"github.com/fedra-project/fedra/pkg/log"
	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/private/util"
)

// Config is the top-level configuration.
type Config struct {
	Logging    log.Config             `toml:"log,omitempty"`
	Identity   Identity               `toml:"identity"`
	Trust      Trust                  `toml:"trust"`
	Registry   Registry               `toml:"registry,omitempty"`
	Dispatch   Dispatch               `toml:"dispatch,omitempty"`
	Aggregates []aggregate.Descriptor `toml:"aggregates"`
}

// Identity locates the member certificate and key presented to the
// federation.
type Identity struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	// URN is the member's publicid URN.
	URN string `toml:"urn"`
}

// Trust locates the federation trust material.
type Trust struct {
	// RootPaths are PEM bundles or directories of *.pem files holding the
	// federation root certificates.
	RootPaths []string `toml:"root_paths"`
	// NegativeVerifyTTL bounds how long failed credential verifications
	// are cached.
	NegativeVerifyTTL util.DurWrap `toml:"negative_verify_ttl,omitempty"`
}

// Registry configures sliver bookkeeping.
type Registry struct {
	// DBPath is the sqlite database location. Empty keeps the registry in
	// memory only.
	DBPath string `toml:"db_path,omitempty"`
}

// Dispatch tunes the aggregate fan-out.
type Dispatch struct {
	MaxInFlight int          `toml:"max_in_flight,omitempty"`
	CallTimeout util.DurWrap `toml:"call_timeout,omitempty"`
	MaxRetries  int          `toml:"max_retries,omitempty"`
}

// InitDefaults fills unset fields.
func (cfg *Config) InitDefaults() {
	cfg.Logging.InitDefaults()
	if cfg.Trust.NegativeVerifyTTL.Duration == 0 {
		cfg.Trust.NegativeVerifyTTL.Duration = 30 * time.Second
	}
	if cfg.Dispatch.MaxInFlight == 0 {
		cfg.Dispatch.MaxInFlight = 8
	}
	if cfg.Dispatch.CallTimeout.Duration == 0 {
		cfg.Dispatch.CallTimeout.Duration = 2 * time.Minute
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
}

// Validate checks the configuration is usable.
func (cfg *Config) Validate() error {
	if cfg.Identity.CertFile == "" || cfg.Identity.KeyFile == "" {
		return serrors.New("identity cert_file and key_file must be set")
	}
	if len(cfg.Trust.RootPaths) == 0 {
		return serrors.New("at least one trust root path must be set")
	}
	names := make(map[string]struct{}, len(cfg.Aggregates))
	for i := range cfg.Aggregates {
		desc := &cfg.Aggregates[i]
		if err := desc.Validate(); err != nil {
			return err
		}
		if _, ok := names[desc.Name]; ok {
			return serrors.New("duplicate aggregate name", "name", desc.Name)
		}
		names[desc.Name] = struct{}{}
	}
	return nil
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, serrors.Wrap("reading config", err, "path", path)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, serrors.Wrap("parsing config", err, "path", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, serrors.Wrap("validating config", err, "path", path)
	}
	return cfg, nil
}
