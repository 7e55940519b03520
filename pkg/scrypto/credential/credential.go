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

// Package credential builds, signs and verifies XML delegation credentials.
//
// A credential is a signed statement binding an owner identity to a set of
// privileges over a target (typically a slice), valid for a bounded time
// window. Credentials can be delegated: a child credential embeds its parent
// and must not widen the parent's rights or validity window. The wire format
// is a signed XML document (XML-C14N canonicalization, XML-DSig signature
// block) fixed by interoperability with external aggregates.
//
// Credentials are immutable: renewal produces a new credential, the old one
// stays independently valid until its own expiry. There is no revocation.
package credential

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"time"

	"github.com/beevik/etree"

	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/pkg/urn"
)

// maxDelegationDepth caps the length of a delegation chain. Deeper chains
// are rejected both at issue and at verification time.
const maxDelegationDepth = 8

var (
	// ErrRightsEscalation indicates a delegation that attempts to widen the
	// parent's rights, validity window or target.
	ErrRightsEscalation = errors.New("rights escalation")
	// ErrMalformedCredential indicates bytes that do not parse as a signed
	// credential.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrDelegationTooDeep indicates a delegation chain longer than the
	// supported maximum.
	ErrDelegationTooDeep = errors.New("delegation chain too deep")
)

// Credential is one parsed, signed delegation statement. The exported
// fields are read-only; mutating them does not alter the signed bytes.
type Credential struct {
	// OwnerURN names the holder the rights are delegated to.
	OwnerURN string
	// TargetURN names the object, typically a slice, the rights apply to.
	TargetURN string
	// OwnerCert is the holder's certificate embedded in the credential.
	OwnerCert *x509.Certificate
	// Rights is the granted privilege set.
	Rights Rights
	// Validity is the window in which the credential is valid.
	Validity Validity
	// Serial identifies this issuance.
	Serial string
	// Parent is the credential this one was delegated from, or nil.
	Parent *Credential

	raw        []byte
	credEl     *etree.Element
	sigEl      *etree.Element
	signerCert *x509.Certificate
	// extraCerts are additional certificates transported in the signature,
	// available as chain intermediates.
	extraCerts []*x509.Certificate
}

// Request describes a credential to be issued.
type Request struct {
	// OwnerCert identifies the holder the credential is issued to.
	OwnerCert *x509.Certificate
	// OwnerURN is the holder's name.
	OwnerURN string
	// TargetURN is the object the rights apply to.
	TargetURN string
	// Rights is the privilege set to grant.
	Rights Rights
	// Validity is the requested window. With a parent, the window is
	// clamped to the intersection with the parent's window.
	Validity Validity
	// Parent, if set, makes this a delegated credential. The request's
	// rights must be a subset of the parent's.
	Parent *Credential
}

// Issue builds and signs a credential. With a parent, the validity window is
// clamped to the intersection of the requested window and the parent's, and
// the rights must be delegatable from the parent (ErrRightsEscalation
// otherwise).
func Issue(req Request, signer *fedpki.Identity) (*Credential, error) {
	if req.OwnerCert == nil {
		return nil, serrors.New("owner certificate required")
	}
	if _, err := urn.Parse(req.TargetURN); err != nil {
		return nil, serrors.Wrap("invalid target", err)
	}
	if len(req.Rights) == 0 {
		return nil, serrors.New("empty rights set")
	}
	validity := req.Validity
	if validity.NotBefore.IsZero() {
		validity.NotBefore = time.Now()
	}
	if !validity.NotBefore.Before(validity.NotAfter) {
		return nil, serrors.New("invalid validity window", "window", validity)
	}

	depth := 0
	if req.Parent != nil {
		depth = req.Parent.Depth() + 1
		if depth > maxDelegationDepth {
			return nil, serrors.Join(ErrDelegationTooDeep, nil,
				"max", maxDelegationDepth)
		}
		if req.TargetURN != req.Parent.TargetURN {
			return nil, serrors.Join(ErrRightsEscalation, nil,
				"reason", "delegation changes target",
				"parent", req.Parent.TargetURN, "requested", req.TargetURN)
		}
		if !req.Rights.SubsetOf(req.Parent.Rights) {
			return nil, serrors.Join(ErrRightsEscalation, nil,
				"reason", "rights exceed parent",
				"parent", req.Parent.Rights.Names(),
				"requested", req.Rights.Names())
		}
		validity = validity.Intersect(req.Parent.Validity)
		if validity.IsEmpty() {
			return nil, serrors.New("validity does not overlap parent window",
				"parent", req.Parent.Validity, "requested", req.Validity)
		}
	}

	raw, err := encodeAndSign(req, validity, depth, signer)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Renew re-issues the credential with a new validity window, keeping owner,
// target, rights and parent. The old credential remains independently valid
// until its own expiry.
func Renew(cred *Credential, validity Validity, signer *fedpki.Identity) (*Credential, error) {
	return Issue(Request{
		OwnerCert: cred.OwnerCert,
		OwnerURN:  cred.OwnerURN,
		TargetURN: cred.TargetURN,
		Rights:    cred.Rights.Clone(),
		Validity:  validity,
		Parent:    cred.Parent,
	}, signer)
}

// Encode returns the signed wire bytes. Verification always operates on
// these bytes, never on a re-serialization.
func (c *Credential) Encode() []byte {
	return c.raw
}

// SignerCert returns the certificate the signature was produced under.
func (c *Credential) SignerCert() *x509.Certificate {
	return c.signerCert
}

// ValidAt reports whether the instant falls in the validity window. It does
// not imply the credential verifies; see Verify.
func (c *Credential) ValidAt(t time.Time) bool {
	return c.Validity.Contains(t)
}

// Depth returns the number of delegation hops above this credential.
func (c *Credential) Depth() int {
	d := 0
	for p := c.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

func newSerial() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
