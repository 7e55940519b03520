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
	"crypto/sha256"
	"crypto/x509"
	"time"
)

// maxChainDepth bounds the issuer walk. Federation chains are root,
// optionally a small number of intermediate authorities, and a leaf.
const maxChainDepth = 8

// TrustStore holds the trust anchors and any intermediate certificates
// available for chain construction. Certificates are kept in immutable
// arenas indexed by subject, never as linked mutable structures; a walk over
// issuer links therefore cannot be corrupted by cycles in the input.
//
// A TrustStore is immutable after construction.
type TrustStore struct {
	roots         map[string][]*x509.Certificate
	intermediates map[string][]*x509.Certificate
}

// LoadTrustRoots loads trust anchors from the given paths. Each path is
// either a PEM bundle file or a directory of *.pem files. Parse failures
// fail the whole load with ErrMalformedCertificate.
func LoadTrustRoots(paths ...string) (*TrustStore, error) {
	certs, err := readPEMDirOrFiles(paths)
	if err != nil {
		return nil, err
	}
	return NewTrustStore(certs, nil), nil
}

// NewTrustStore builds a store from already parsed roots and optional
// intermediates.
func NewTrustStore(roots, intermediates []*x509.Certificate) *TrustStore {
	s := &TrustStore{
		roots:         make(map[string][]*x509.Certificate),
		intermediates: make(map[string][]*x509.Certificate),
	}
	for _, c := range roots {
		s.roots[string(c.RawSubject)] = append(s.roots[string(c.RawSubject)], c)
	}
	for _, c := range intermediates {
		s.intermediates[string(c.RawSubject)] =
			append(s.intermediates[string(c.RawSubject)], c)
	}
	return s
}

// WithIntermediates returns a new store sharing this store's roots with
// additional intermediates available for chain construction. Useful when a
// credential carries its own intermediate certificates.
func (s *TrustStore) WithIntermediates(certs ...*x509.Certificate) *TrustStore {
	ns := &TrustStore{
		roots:         s.roots,
		intermediates: make(map[string][]*x509.Certificate, len(s.intermediates)),
	}
	for k, v := range s.intermediates {
		ns.intermediates[k] = v
	}
	for _, c := range certs {
		ns.intermediates[string(c.RawSubject)] =
			append(ns.intermediates[string(c.RawSubject)], c)
	}
	return ns
}

// Roots returns the trust anchors as a flat slice.
func (s *TrustStore) Roots() []*x509.Certificate {
	var out []*x509.Certificate
	for _, cs := range s.roots {
		out = append(out, cs...)
	}
	return out
}

// VerifyChain reports whether a chain of trust from cert to one of the
// store's roots exists at the current time. Absence of trust is an expected
// outcome, not a fault, so the result is a plain bool.
func (s *TrustStore) VerifyChain(cert *x509.Certificate) bool {
	return s.VerifyChainAt(cert, time.Now())
}

// VerifyChainAt is VerifyChain evaluated at a specific point in time. Each
// hop requires that the child names the parent as issuer, that the child's
// signature verifies under the parent's key, and that both certificates are
// time-valid at the evaluation instant.
func (s *TrustStore) VerifyChainAt(cert *x509.Certificate, at time.Time) bool {
	visited := make(map[[sha256.Size]byte]struct{})
	return s.walk(cert, at, visited, maxChainDepth)
}

func (s *TrustStore) walk(
	cert *x509.Certificate,
	at time.Time,
	visited map[[sha256.Size]byte]struct{},
	depth int,
) bool {
	if depth == 0 || !timeValid(cert, at) {
		return false
	}
	fp := sha256.Sum256(cert.Raw)
	if _, ok := visited[fp]; ok {
		// Malformed loop in the issuer graph.
		return false
	}
	visited[fp] = struct{}{}

	for _, parent := range s.roots[string(cert.RawIssuer)] {
		if hopValid(cert, parent, at) {
			return true
		}
	}
	for _, parent := range s.intermediates[string(cert.RawIssuer)] {
		if hopValid(cert, parent, at) && s.walk(parent, at, visited, depth-1) {
			return true
		}
	}
	return false
}

func hopValid(child, parent *x509.Certificate, at time.Time) bool {
	if !timeValid(parent, at) {
		return false
	}
	return child.CheckSignatureFrom(parent) == nil
}

func timeValid(cert *x509.Certificate, at time.Time) bool {
	return !at.Before(cert.NotBefore) && !at.After(cert.NotAfter)
}
