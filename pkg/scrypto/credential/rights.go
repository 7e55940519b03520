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

package credential

import (
	"sort"
)

// Privilege names understood by aggregate managers. A credential lists
// privileges; each confers the right to perform the corresponding
// operations.
const (
	PrivCreateSliver = "createsliver"
	PrivRenewSliver  = "renewsliver"
	PrivDeleteSlice  = "deleteslice"
	PrivSliceStatus  = "getsliceresources"
	PrivShutdown     = "shutdown"
	PrivInfo         = "info"
)

// Rights is a set of privileges. The value records whether the holder may
// delegate the privilege onward.
type Rights map[string]bool

// NewRights builds a delegatable rights set from privilege names.
func NewRights(names ...string) Rights {
	r := make(Rights, len(names))
	for _, n := range names {
		r[n] = true
	}
	return r
}

// AllSliceRights returns the full privilege set a slice authority grants on
// a new slice.
func AllSliceRights() Rights {
	return NewRights(
		PrivCreateSliver,
		PrivRenewSliver,
		PrivDeleteSlice,
		PrivSliceStatus,
		PrivShutdown,
		PrivInfo,
	)
}

// Has reports whether the set contains the privilege.
func (r Rights) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// SubsetOf reports whether every privilege in r may be delegated from the
// parent set: the privilege must be present in parent with delegation
// allowed, and r may mark a privilege delegatable only if parent does.
func (r Rights) SubsetOf(parent Rights) bool {
	for name := range r {
		if !parent[name] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (r Rights) Clone() Rights {
	c := make(Rights, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Names returns the privilege names in sorted order.
func (r Rights) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
