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
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
)

// Wire format: a <signed-credential> document holding one <credential>
// element and a <signatures> block. Delegated credentials embed the bare
// parent credential under <parent>; every signature in the chain is hoisted
// into <signatures> and tied to its credential by the xml:id reference. The
// credential at delegation depth d carries id "ref<d>", so ids stay unique
// when parents are embedded.
const (
	rootTag     = "signed-credential"
	idAttribute = "xml:id"
)

func encodeAndSign(req Request, validity Validity, depth int, signer *fedpki.Identity) ([]byte, error) {
	el := etree.NewElement("credential")
	el.CreateAttr(idAttribute, "ref"+strconv.Itoa(depth))
	el.CreateElement("type").SetText("privilege")
	el.CreateElement("serial").SetText(newSerial())
	el.CreateElement("owner_gid").SetText(base64.StdEncoding.EncodeToString(req.OwnerCert.Raw))
	el.CreateElement("owner_urn").SetText(req.OwnerURN)
	el.CreateElement("target_urn").SetText(req.TargetURN)
	el.CreateElement("notbefore").SetText(validity.NotBefore.UTC().Format(time.RFC3339))
	el.CreateElement("expires").SetText(validity.NotAfter.UTC().Format(time.RFC3339))
	privs := el.CreateElement("privileges")
	for _, name := range req.Rights.Names() {
		p := privs.CreateElement("privilege")
		p.CreateElement("name").SetText(name)
		p.CreateElement("can_delegate").SetText(strconv.FormatBool(req.Rights[name]))
	}
	var parentSigs []*etree.Element
	if req.Parent != nil {
		el.CreateElement("parent").AddChild(req.Parent.credEl.Copy())
		for p := req.Parent; p != nil; p = p.Parent {
			parentSigs = append(parentSigs, p.sigEl.Copy())
		}
	}

	sctx := dsig.NewDefaultSigningContext(signer)
	sctx.IdAttribute = idAttribute
	sctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	signed, err := sctx.SignEnveloped(el)
	if err != nil {
		return nil, serrors.Wrap("signing credential", err)
	}
	sig := childByTag(signed, "Signature")
	if sig == nil {
		return nil, serrors.New("no signature element after signing")
	}
	signed.RemoveChild(sig)
	return encodeSignedDoc(signed, append([]*etree.Element{sig}, parentSigs...))
}

func encodeSignedDoc(credEl *etree.Element, sigs []*etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.AddChild(credEl)
	sigsEl := root.CreateElement("signatures")
	for _, sig := range sigs {
		sigsEl.AddChild(sig)
	}
	return doc.WriteToBytes()
}

// Parse decodes a signed credential document, including any embedded
// delegation chain. It checks structure only, not signatures; see Verify.
func Parse(raw []byte) (*Credential, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, serrors.Join(ErrMalformedCredential, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != rootTag {
		return nil, serrors.Join(ErrMalformedCredential, nil,
			"reason", "missing signed-credential root")
	}
	credEl := childByTag(root, "credential")
	sigsEl := childByTag(root, "signatures")
	if credEl == nil || sigsEl == nil {
		return nil, serrors.Join(ErrMalformedCredential, nil,
			"reason", "missing credential or signatures block")
	}
	sigByRef := make(map[string]*etree.Element)
	for _, sig := range childrenByTag(sigsEl, "Signature") {
		ref := firstDescendant(sig, "Reference")
		if ref == nil {
			continue
		}
		if uri := strings.TrimPrefix(ref.SelectAttrValue("URI", ""), "#"); uri != "" {
			sigByRef[uri] = sig
		}
	}
	cred, err := parseCredential(credEl, sigByRef, 0)
	if err != nil {
		return nil, err
	}
	cred.raw = raw
	return cred, nil
}

func parseCredential(el *etree.Element, sigByRef map[string]*etree.Element, depth int) (*Credential, error) {
	if depth > maxDelegationDepth {
		return nil, serrors.Join(ErrDelegationTooDeep, nil, "max", maxDelegationDepth)
	}
	id := el.SelectAttrValue(idAttribute, "")
	sig := sigByRef[id]
	if id == "" || sig == nil {
		return nil, serrors.Join(ErrMalformedCredential, nil,
			"reason", "credential without matching signature", "id", id)
	}
	c := &Credential{
		OwnerURN:  childText(el, "owner_urn"),
		TargetURN: childText(el, "target_urn"),
		Serial:    childText(el, "serial"),
		credEl:    el,
		sigEl:     sig,
	}
	if c.TargetURN == "" {
		return nil, serrors.Join(ErrMalformedCredential, nil, "reason", "missing target_urn")
	}
	var err error
	if c.Validity.NotBefore, err = parseXMLTime(childText(el, "notbefore")); err != nil {
		return nil, serrors.Join(ErrMalformedCredential, err, "field", "notbefore")
	}
	if c.Validity.NotAfter, err = parseXMLTime(childText(el, "expires")); err != nil {
		return nil, serrors.Join(ErrMalformedCredential, err, "field", "expires")
	}
	ownerDER, err := base64.StdEncoding.DecodeString(stripSpace(childText(el, "owner_gid")))
	if err != nil {
		return nil, serrors.Join(ErrMalformedCredential, err, "field", "owner_gid")
	}
	if c.OwnerCert, err = x509.ParseCertificate(ownerDER); err != nil {
		return nil, serrors.Join(ErrMalformedCredential, err, "field", "owner_gid")
	}
	privsEl := childByTag(el, "privileges")
	if privsEl == nil {
		return nil, serrors.Join(ErrMalformedCredential, nil, "reason", "missing privileges")
	}
	c.Rights = Rights{}
	for _, p := range childrenByTag(privsEl, "privilege") {
		name := childText(p, "name")
		if name == "" {
			return nil, serrors.Join(ErrMalformedCredential, nil, "reason", "unnamed privilege")
		}
		c.Rights[name] = childText(p, "can_delegate") == "true"
	}
	certs, err := signatureCerts(sig)
	if err != nil {
		return nil, err
	}
	c.signerCert = certs[0]
	c.extraCerts = certs[1:]

	if parentEl := childByTag(el, "parent"); parentEl != nil {
		inner := childByTag(parentEl, "credential")
		if inner == nil {
			return nil, serrors.Join(ErrMalformedCredential, nil, "reason", "empty parent")
		}
		if c.Parent, err = parseCredential(inner, sigByRef, depth+1); err != nil {
			return nil, err
		}
		// The parent is independently valid; rebuild its standalone wire
		// form so Encode round-trips at every chain position.
		if c.Parent.raw, err = rebuildRaw(c.Parent); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func rebuildRaw(c *Credential) ([]byte, error) {
	var sigs []*etree.Element
	for p := c; p != nil; p = p.Parent {
		sigs = append(sigs, p.sigEl.Copy())
	}
	return encodeSignedDoc(c.credEl.Copy(), sigs)
}

// signatureCerts extracts the certificates transported in a signature's key
// info. The first is the signer, the rest are chain intermediates.
func signatureCerts(sig *etree.Element) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, el := range descendantsByTag(sig, "X509Certificate") {
		der, err := base64.StdEncoding.DecodeString(stripSpace(el.Text()))
		if err != nil {
			return nil, serrors.Join(ErrMalformedCredential, err, "field", "X509Certificate")
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, serrors.Join(ErrMalformedCredential, err, "field", "X509Certificate")
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, serrors.Join(ErrMalformedCredential, nil,
			"reason", "signature without certificate")
	}
	return certs, nil
}

func parseXMLTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Some issuers write timestamps without a zone designator; treat as UTC.
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, serrors.New("unparseable timestamp", "value", s)
	}
	return t.UTC(), nil
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// Tag lookups match the local name only. Signature blocks carry a namespace
// prefix that varies between issuers, so prefix-sensitive matching is wrong.
func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func childrenByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

func descendantsByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
		out = append(out, descendantsByTag(c, tag)...)
	}
	return out
}

func firstDescendant(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
		if d := firstDescendant(c, tag); d != nil {
			return d
		}
	}
	return nil
}

func childText(el *etree.Element, tag string) string {
	if c := childByTag(el, tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
