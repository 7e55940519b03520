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

package urn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/pkg/urn"
)

func TestString(t *testing.T) {
	testCases := map[string]struct {
		urn      urn.URN
		expected string
	}{
		"slice": {
			urn:      urn.New("geni.net//gpo", urn.TypeSlice, "myslice"),
			expected: "urn:publicid:IDN+geni.net:gpo+slice+myslice",
		},
		"authority": {
			urn:      urn.New("example.org", urn.TypeAuthority, "am"),
			expected: "urn:publicid:IDN+example.org+authority+am",
		},
		"name with colon": {
			urn:      urn.New("example.org", urn.TypeUser, "a:b"),
			expected: "urn:publicid:IDN+example.org+user+a%3Ab",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.urn.String())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	testCases := []urn.URN{
		urn.New("geni.net//gpo", urn.TypeSlice, "myslice"),
		urn.New("example.org", urn.TypeSliver, "sliver-17"),
		urn.New("example.org", urn.TypeUser, "a:b"),
	}
	for _, expected := range testCases {
		t.Run(expected.String(), func(t *testing.T) {
			parsed, err := urn.Parse(expected.String())
			require.NoError(t, err)
			assert.Equal(t, expected, parsed)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	testCases := map[string]string{
		"empty":           "",
		"wrong prefix":    "urn:uuid:1234",
		"whitespace":      "urn:publicid:IDN+example org+slice+foo",
		"fragment":        "urn:publicid:IDN+example.org+slice+foo#x",
		"missing parts":   "urn:publicid:IDN+example.org+slice",
		"slash in name":   "urn:publicid:IDN+example.org+slice+a/b",
		"question mark":   "urn:publicid:IDN+example.org+slice+a?b",
		"only the prefix": "urn:publicid:IDN+",
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := urn.Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, urn.IsValid("urn:publicid:IDN+example.org+slice+foo"))
	assert.False(t, urn.IsValid("urn:publicid:IDN example.org"))
	assert.False(t, urn.IsValid("not-a-urn"))
}

func TestPublicidRoundTrip(t *testing.T) {
	pub := "IDN geni.net//resource//host_5"
	wire := urn.FromPublicid(pub)
	assert.Equal(t, "urn:publicid:IDN+geni.net:resource:host_5", wire)
	back, err := urn.ToPublicid(wire)
	require.NoError(t, err)
	assert.Equal(t, pub, back)
}
