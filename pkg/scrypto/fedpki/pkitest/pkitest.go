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

// Package pkitest generates synthetic PKI hierarchies for tests: roots,
// intermediate authorities, and member identities, with controllable
// validity windows.
package pkitest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Keys are small to keep test runtime reasonable; nothing in the code under
// test depends on the modulus size.
const testKeyBits = 2048

var serial int64

// Authority is a test CA: a certificate plus its private key.
type Authority struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
}

// Opts controls certificate generation. Zero values get sensible defaults:
// a validity window around the current time.
type Opts struct {
	NotBefore time.Time
	NotAfter  time.Time
	// URN, if set, is recorded as a URI subject alternative name, the way
	// federation member certificates carry their publicid.
	URN string
}

func (o *Opts) fill() {
	if o.NotBefore.IsZero() {
		o.NotBefore = time.Now().Add(-time.Hour)
	}
	if o.NotAfter.IsZero() {
		o.NotAfter = time.Now().Add(24 * time.Hour)
	}
}

// NewRoot creates a self-signed root authority.
func NewRoot(t testing.TB, cn string, opts Opts) *Authority {
	t.Helper()
	opts.fill()
	key := newKey(t)
	tmpl := caTemplate(cn, opts)
	cert := create(t, tmpl, tmpl, &key.PublicKey, key)
	return &Authority{Cert: cert, Key: key}
}

// IssueIntermediate creates a subordinate authority signed by a.
func (a *Authority) IssueIntermediate(t testing.TB, cn string, opts Opts) *Authority {
	t.Helper()
	opts.fill()
	key := newKey(t)
	tmpl := caTemplate(cn, opts)
	cert := create(t, tmpl, a.Cert, &key.PublicKey, a.Key)
	return &Authority{Cert: cert, Key: key}
}

// IssueLeaf creates an end-entity certificate signed by a, returning the
// certificate and its key.
func (a *Authority) IssueLeaf(t testing.TB, cn string, opts Opts) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	opts.fill()
	key := newKey(t)
	tmpl := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    opts.NotBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
	}
	addURN(t, tmpl, opts.URN)
	cert := create(t, tmpl, a.Cert, &key.PublicKey, a.Key)
	return cert, key
}

// WriteCertsPEM writes certificates as a concatenated PEM bundle.
func WriteCertsPEM(t testing.TB, path string, certs ...*x509.Certificate) {
	t.Helper()
	var raw []byte
	for _, c := range certs {
		raw = append(raw, pem.EncodeToMemory(
			&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

// WriteKeyPEM writes an RSA key in PKCS#1 PEM form.
func WriteKeyPEM(t testing.TB, path string, key *rsa.PrivateKey) {
	t.Helper()
	raw := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func caTemplate(cn string, opts Opts) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
}

func create(
	t testing.TB,
	tmpl, parent *x509.Certificate,
	pub *rsa.PublicKey,
	signer *rsa.PrivateKey,
) *x509.Certificate {
	t.Helper()
	raw, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(raw)
	require.NoError(t, err)
	return cert
}

func addURN(t testing.TB, tmpl *x509.Certificate, rawURN string) {
	if rawURN == "" {
		return
	}
	u, err := url.Parse(rawURN)
	require.NoError(t, err)
	tmpl.URIs = append(tmpl.URIs, u)
}

func newKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	return key
}

func nextSerial() *big.Int {
	serial++
	return big.NewInt(serial)
}
