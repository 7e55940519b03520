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

package fedpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// Identity is one federation member's certificate and private key. The key
// never leaves the package: it is used through Sign, the XML signature key
// store, and the TLS client certificate.
type Identity struct {
	cert *x509.Certificate
	key  *rsa.PrivateKey
}

// LoadIdentity loads a PEM certificate and the corresponding RSA private
// key. The key must match the certificate's public key (ErrKeyMismatch
// otherwise). The federation's credential signature suite is rsa-sha256, so
// non-RSA keys are rejected.
func LoadIdentity(certFile, keyFile string) (*Identity, error) {
	certs, err := ReadPEMCerts(certFile)
	if err != nil {
		return nil, err
	}
	rawKey, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, serrors.Wrap("reading key file", err, "file", keyFile)
	}
	key, err := parseRSAKey(rawKey)
	if err != nil {
		return nil, serrors.Wrap("parsing key file", err, "file", keyFile)
	}
	return NewIdentity(certs[0], key)
}

// NewIdentity builds an identity from already parsed material.
func NewIdentity(cert *x509.Certificate, key *rsa.PrivateKey) (*Identity, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, serrors.Join(ErrKeyMismatch, nil,
			"reason", "certificate public key is not RSA")
	}
	if !pub.Equal(&key.PublicKey) {
		return nil, serrors.Join(ErrKeyMismatch, nil, "subject", cert.Subject)
	}
	return &Identity{cert: cert, key: key}, nil
}

// Certificate returns the identity certificate.
func (i *Identity) Certificate() *x509.Certificate {
	return i.cert
}

// Sign signs data with the identity key using RSA PKCS#1 v1.5 over SHA-256.
// It fails only on key or algorithm failure, never on input content.
func (i *Identity) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, i.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, serrors.Join(ErrSigning, err)
	}
	return sig, nil
}

// TLSCertificate returns the identity as a TLS client certificate for
// mutually authenticated channels.
func (i *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{i.cert.Raw},
		PrivateKey:  i.key,
		Leaf:        i.cert,
	}
}

// GetKeyPair implements the XML signature key store interface
// (dsig.X509KeyStore): it provides the signing key and the DER encoded
// certificate embedded in signatures.
func (i *Identity) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return i.key, i.cert.Raw, nil
}

func parseRSAKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, serrors.New("no PEM block in key file")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, serrors.New("key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, serrors.New("unsupported key type", "type", block.Type)
	}
}
