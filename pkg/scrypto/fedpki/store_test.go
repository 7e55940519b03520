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

package fedpki_test

import (
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/pkg/private/xtest"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki/pkitest"
)

func TestVerifyChain(t *testing.T) {
	root := pkitest.NewRoot(t, "root", pkitest.Opts{})
	intermediate := root.IssueIntermediate(t, "intermediate", pkitest.Opts{})
	leaf, _ := intermediate.IssueLeaf(t, "leaf", pkitest.Opts{})
	directLeaf, _ := root.IssueLeaf(t, "direct", pkitest.Opts{})

	otherRoot := pkitest.NewRoot(t, "other-root", pkitest.Opts{})
	strangerCA := pkitest.NewRoot(t, "stranger", pkitest.Opts{})
	stranger, _ := strangerCA.IssueLeaf(t, "stranger-leaf", pkitest.Opts{})

	testCases := map[string]struct {
		store *fedpki.TrustStore
		cert  *x509.Certificate
		valid bool
	}{
		"leaf via intermediate": {
			store: fedpki.NewTrustStore(
				[]*x509.Certificate{root.Cert},
				[]*x509.Certificate{intermediate.Cert},
			),
			cert:  leaf,
			valid: true,
		},
		"leaf signed by root directly": {
			store: fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil),
			cert:  directLeaf,
			valid: true,
		},
		"intermediate missing from store": {
			store: fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil),
			cert:  leaf,
			valid: false,
		},
		"wrong root": {
			store: fedpki.NewTrustStore(
				[]*x509.Certificate{otherRoot.Cert},
				[]*x509.Certificate{intermediate.Cert},
			),
			cert:  leaf,
			valid: false,
		},
		"untrusted issuer": {
			store: fedpki.NewTrustStore(
				[]*x509.Certificate{root.Cert},
				[]*x509.Certificate{intermediate.Cert},
			),
			cert:  stranger,
			valid: false,
		},
		"multiple roots": {
			store: fedpki.NewTrustStore(
				[]*x509.Certificate{otherRoot.Cert, root.Cert},
				[]*x509.Certificate{intermediate.Cert},
			),
			cert:  leaf,
			valid: true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.store.VerifyChain(tc.cert))
		})
	}
}

func TestVerifyChainAt(t *testing.T) {
	now := time.Now()
	root := pkitest.NewRoot(t, "root", pkitest.Opts{
		NotBefore: now.Add(-2 * time.Hour),
		NotAfter:  now.Add(2 * time.Hour),
	})
	leaf, _ := root.IssueLeaf(t, "leaf", pkitest.Opts{
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(time.Hour),
	})
	store := fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil)

	assert.True(t, store.VerifyChainAt(leaf, now))
	assert.False(t, store.VerifyChainAt(leaf, now.Add(-90*time.Minute)),
		"leaf not yet valid")
	assert.False(t, store.VerifyChainAt(leaf, now.Add(90*time.Minute)),
		"leaf expired")
	assert.False(t, store.VerifyChainAt(leaf, now.Add(3*time.Hour)),
		"root expired")
}

func TestWithIntermediates(t *testing.T) {
	root := pkitest.NewRoot(t, "root", pkitest.Opts{})
	intermediate := root.IssueIntermediate(t, "intermediate", pkitest.Opts{})
	leaf, _ := intermediate.IssueLeaf(t, "leaf", pkitest.Opts{})

	base := fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil)
	require.False(t, base.VerifyChain(leaf))

	extended := base.WithIntermediates(intermediate.Cert)
	assert.True(t, extended.VerifyChain(leaf))
	// The original store is unchanged.
	assert.False(t, base.VerifyChain(leaf))
}

func TestLoadTrustRoots(t *testing.T) {
	dir, cleanup := xtest.MustTempDir("", "fedpki_roots")
	defer cleanup()

	root := pkitest.NewRoot(t, "root", pkitest.Opts{})
	other := pkitest.NewRoot(t, "other", pkitest.Opts{})
	pkitest.WriteCertsPEM(t, filepath.Join(dir, "root.pem"), root.Cert)
	pkitest.WriteCertsPEM(t, filepath.Join(dir, "other.pem"), other.Cert)

	t.Run("directory", func(t *testing.T) {
		store, err := fedpki.LoadTrustRoots(dir)
		require.NoError(t, err)
		assert.Len(t, store.Roots(), 2)
	})
	t.Run("bundle file", func(t *testing.T) {
		store, err := fedpki.LoadTrustRoots(filepath.Join(dir, "root.pem"))
		require.NoError(t, err)
		assert.Len(t, store.Roots(), 1)
	})
	t.Run("malformed", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.pem")
		require.NoError(t, writeFile(bad, "not a certificate"))
		_, err := fedpki.LoadTrustRoots(bad)
		assert.ErrorIs(t, err, fedpki.ErrMalformedCertificate)
	})
	t.Run("missing path", func(t *testing.T) {
		_, err := fedpki.LoadTrustRoots(filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})
}
