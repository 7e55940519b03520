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
	"crypto/x509"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
)

// Reason classifies why a credential failed verification.
type Reason string

const (
	// ReasonNone is set on valid results.
	ReasonNone Reason = ""
	// ReasonBadSignature indicates the signature does not verify over the
	// credential bytes.
	ReasonBadSignature Reason = "bad_signature"
	// ReasonUntrustedIssuer indicates the signer certificate does not chain
	// to a configured trust root.
	ReasonUntrustedIssuer Reason = "untrusted_issuer"
	// ReasonExpired indicates the evaluation time is outside the validity
	// window of the credential or one of its ancestors.
	ReasonExpired Reason = "expired"
	// ReasonRightsEscalation indicates a delegation step that widens the
	// parent's rights, window or target, or was signed by a non-owner.
	ReasonRightsEscalation Reason = "rights_escalation"
)

// Result is the outcome of verifying one credential chain.
type Result struct {
	Valid  bool
	Reason Reason
	Detail string
}

func failure(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Verify checks a credential and its full delegation chain against the
// trust store at the given time. Checks run per chain node in a fixed
// order: signature, issuer trust, validity window, then delegation
// containment against the parent; the first failure decides the result.
func Verify(cred *Credential, store *fedpki.TrustStore, at time.Time) Result {
	v := &verifier{
		store: store,
		at:    at,
		memo:  make(map[*Credential]Result),
	}
	return v.verify(cred)
}

type verifier struct {
	store *fedpki.TrustStore
	at    time.Time
	// memo keeps chain verification linear when ancestors are shared.
	memo map[*Credential]Result
}

func (v *verifier) verify(c *Credential) Result {
	if r, ok := v.memo[c]; ok {
		return r
	}
	r := v.verifyNode(c)
	v.memo[c] = r
	return r
}

func (v *verifier) verifyNode(c *Credential) Result {
	if err := checkSignature(c); err != nil {
		return failure(ReasonBadSignature, err.Error())
	}
	store := v.store
	if len(c.extraCerts) > 0 {
		store = store.WithIntermediates(c.extraCerts...)
	}
	if !store.VerifyChainAt(c.signerCert, v.at) {
		return failure(ReasonUntrustedIssuer,
			"signer does not chain to a trust root: "+c.signerCert.Subject.CommonName)
	}
	if !c.Validity.Contains(v.at) {
		return failure(ReasonExpired, "outside window "+c.Validity.String())
	}
	if c.Parent == nil {
		return Result{Valid: true}
	}
	if r := v.verify(c.Parent); !r.Valid {
		return r
	}
	switch {
	case c.TargetURN != c.Parent.TargetURN:
		return failure(ReasonRightsEscalation, "delegation changes target")
	case !c.Rights.SubsetOf(c.Parent.Rights):
		return failure(ReasonRightsEscalation, "rights exceed parent")
	case !c.Parent.Validity.Covers(c.Validity):
		return failure(ReasonRightsEscalation, "window exceeds parent")
	case !c.signerCert.Equal(c.Parent.OwnerCert):
		return failure(ReasonRightsEscalation, "delegation not signed by parent owner")
	}
	return Result{Valid: true}
}

// checkSignature verifies the XML signature over the bare credential
// element. The embedded signer certificate anchors the check; whether that
// certificate is itself trustworthy is decided separately against the trust
// store. The fake clock sits inside the signer certificate's window so the
// library's own lifetime check does not preempt the trust and expiry steps.
func checkSignature(c *Credential) error {
	certStore := &dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{c.signerCert},
	}
	vctx := dsig.NewDefaultValidationContext(certStore)
	vctx.IdAttribute = idAttribute
	vctx.Clock = dsig.NewFakeClockAt(c.signerCert.NotBefore.Add(time.Second))

	el := c.credEl.Copy()
	el.AddChild(c.sigEl.Copy())
	doc := etree.NewDocument()
	doc.SetRoot(el)
	_, err := vctx.Validate(el)
	return err
}
