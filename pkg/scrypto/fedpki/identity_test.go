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
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/pkg/private/xtest"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki/pkitest"
)

func TestLoadIdentity(t *testing.T) {
	dir, cleanup := xtest.MustTempDir("", "fedpki_identity")
	defer cleanup()

	root := pkitest.NewRoot(t, "root", pkitest.Opts{})
	cert, key := root.IssueLeaf(t, "alice", pkitest.Opts{
		URN: "urn:publicid:IDN+example.org+user+alice",
	})
	_, otherKey := root.IssueLeaf(t, "bob", pkitest.Opts{})

	certFile := filepath.Join(dir, "alice.pem")
	keyFile := filepath.Join(dir, "alice.key")
	pkitest.WriteCertsPEM(t, certFile, cert)
	pkitest.WriteKeyPEM(t, keyFile, key)

	t.Run("valid", func(t *testing.T) {
		id, err := fedpki.LoadIdentity(certFile, keyFile)
		require.NoError(t, err)
		assert.Equal(t, cert.Raw, id.Certificate().Raw)
	})
	t.Run("key mismatch", func(t *testing.T) {
		otherKeyFile := filepath.Join(dir, "bob.key")
		pkitest.WriteKeyPEM(t, otherKeyFile, otherKey)
		_, err := fedpki.LoadIdentity(certFile, otherKeyFile)
		assert.ErrorIs(t, err, fedpki.ErrKeyMismatch)
	})
	t.Run("malformed certificate", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.pem")
		require.NoError(t, writeFile(bad, "garbage"))
		_, err := fedpki.LoadIdentity(bad, keyFile)
		assert.ErrorIs(t, err, fedpki.ErrMalformedCertificate)
	})
	t.Run("missing key", func(t *testing.T) {
		_, err := fedpki.LoadIdentity(certFile, filepath.Join(dir, "nope.key"))
		assert.Error(t, err)
	})
}

func TestSign(t *testing.T) {
	root := pkitest.NewRoot(t, "root", pkitest.Opts{})
	cert, key := root.IssueLeaf(t, "alice", pkitest.Opts{})
	id, err := fedpki.NewIdentity(cert, key)
	require.NoError(t, err)

	data := []byte("payload")
	sig, err := id.Sign(data)
	require.NoError(t, err)

	digest := sha256.Sum256(data)
	err = rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig)
	assert.NoError(t, err)

	// Empty input is still signable; Sign never fails on content.
	_, err = id.Sign(nil)
	assert.NoError(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
