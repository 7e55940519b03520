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

package aggregate

import (
	"net/url"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// Descriptor identifies one aggregate manager endpoint.
type Descriptor struct {
	// Name is the operator-facing identifier used in logs, metrics and
	// dispatch results.
	Name string `toml:"name"`
	// URN is the aggregate's publicid URN, when known.
	URN string `toml:"urn,omitempty"`
	// URL is the XML-RPC endpoint, https only.
	URL string `toml:"url"`
	// CACertFile optionally pins the CA bundle used to verify this
	// aggregate's server certificate. When empty, the federation trust
	// roots are used.
	CACertFile string `toml:"ca_cert_file,omitempty"`
}

// Validate checks the descriptor is usable.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return serrors.New("aggregate name must be set")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return serrors.Wrap("parsing aggregate URL", err, "name", d.Name)
	}
	if u.Scheme != "https" {
		return serrors.New("aggregate URL must be https",
			"name", d.Name, "url", d.URL)
	}
	return nil
}
