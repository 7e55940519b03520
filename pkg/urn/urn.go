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

// Package urn implements publicid URNs as used by federated testbeds to
// name authorities, users, slices and slivers. A URN has the form
//
//	urn:publicid:IDN+<authority>+<type>+<name>
//
// where the publicid encoding escapes characters per RFC 3151.
package urn

import (
	"regexp"
	"strings"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// Prefix is the common prefix of all publicid URNs.
const Prefix = "urn:publicid:"

// IDNPrefix is the prefix of identifiers in the IDN namespace.
const IDNPrefix = Prefix + "IDN"

// Object types in the IDN namespace.
const (
	TypeAuthority = "authority"
	TypeUser      = "user"
	TypeSlice     = "slice"
	TypeSliver    = "sliver"
)

// publicidXforms translates publicids to URN format. The order of the rules
// matters: double colons must be caught before single colons are translated.
// See RFC 3151.
var publicidXforms = [][2]string{
	{"%", "%25"},
	{";", "%3B"},
	{"+", "%2B"},
	{" ", "+"}, // whitespace must be collapsed first
	{"#", "%23"},
	{"?", "%3F"},
	{"'", "%27"},
	{"::", ";"},
	{":", "%3A"},
	{"//", ":"},
	{"/", "%2F"},
}

var invalidURNChars = regexp.MustCompile(`[\s?/#]`)

// URN names one object in the IDN namespace.
type URN struct {
	// Authority is the naming authority, e.g. "geni.net//gpo".
	Authority string
	// Type is the object type, e.g. "slice".
	Type string
	// Name is the object name within the authority and type.
	Name string
}

// New constructs a URN from its parts.
func New(authority, typ, name string) URN {
	return URN{Authority: authority, Type: typ, Name: name}
}

// Parse parses a string of the form urn:publicid:IDN+auth+type+name.
func Parse(s string) (URN, error) {
	if !IsValid(s) {
		return URN{}, serrors.New("invalid URN", "urn", s)
	}
	rest := strings.TrimPrefix(s, IDNPrefix+"+")
	parts := strings.SplitN(rest, "+", 3)
	if len(parts) != 3 {
		return URN{}, serrors.New("URN must have authority, type and name", "urn", s)
	}
	return URN{
		Authority: decodePublicid(parts[0]),
		Type:      parts[1],
		Name:      decodePublicid(parts[2]),
	}, nil
}

// IsValid reports whether s could be an IDN publicid URN. The check is
// necessary but not sufficient: it verifies the prefix and rejects
// characters that can never occur in a URN.
func IsValid(s string) bool {
	if !strings.HasPrefix(s, IDNPrefix+"+") {
		return false
	}
	return !invalidURNChars.MatchString(s)
}

// String assembles the URN in wire form.
func (u URN) String() string {
	return IDNPrefix + "+" + encodePublicid(u.Authority) + "+" + u.Type +
		"+" + encodePublicid(u.Name)
}

// IsZero reports whether the URN is the zero value.
func (u URN) IsZero() bool {
	return u == URN{}
}

// FromPublicid converts a publicid such as "IDN geni.net//gpo slice foo" to
// wire URN form.
func FromPublicid(id string) string {
	return Prefix + encodePublicid(id)
}

// ToPublicid converts a wire URN back to the unescaped publicid.
func ToPublicid(s string) (string, error) {
	if !strings.HasPrefix(s, Prefix) {
		return "", serrors.New("missing publicid prefix", "urn", s)
	}
	return decodePublicid(strings.TrimPrefix(s, Prefix)), nil
}

func encodePublicid(s string) string {
	// Collapse whitespace before the space rule applies.
	s = strings.Join(strings.Fields(s), " ")
	for _, xf := range publicidXforms {
		s = strings.ReplaceAll(s, xf[0], xf[1])
	}
	return s
}

func decodePublicid(s string) string {
	for i := len(publicidXforms) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, publicidXforms[i][1], publicidXforms[i][0])
	}
	return s
}
