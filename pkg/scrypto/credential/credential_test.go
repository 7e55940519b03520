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

package credential_test

import (
	"crypto/rsa"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki/pkitest"
)

const (
	testSliceURN = "urn:publicid:IDN+geni.net+slice+alpha"
	testUserURN  = "urn:publicid:IDN+geni.net+user+alice"
)

type credSetup struct {
	root   *pkitest.Authority
	store  *fedpki.TrustStore
	signer *fedpki.Identity

	userCert *x509.Certificate
	userKey  *rsa.PrivateKey
}

func newCredSetup(t *testing.T) *credSetup {
	t.Helper()
	root := pkitest.NewRoot(t, "federation-root", pkitest.Opts{})
	authCert, authKey := root.IssueLeaf(t, "slice-authority", pkitest.Opts{
		URN: "urn:publicid:IDN+geni.net+authority+sa",
	})
	signer, err := fedpki.NewIdentity(authCert, authKey)
	require.NoError(t, err)
	userCert, userKey := root.IssueLeaf(t, "alice", pkitest.Opts{URN: testUserURN})
	return &credSetup{
		root:     root,
		store:    fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil),
		signer:   signer,
		userCert: userCert,
		userKey:  userKey,
	}
}

func (s *credSetup) window() credential.Validity {
	return credential.Validity{
		NotBefore: time.Now().Add(-time.Minute).Truncate(time.Second),
		NotAfter:  time.Now().Add(12 * time.Hour).Truncate(time.Second),
	}
}

func (s *credSetup) issueSliceCred(t *testing.T) *credential.Credential {
	t.Helper()
	cred, err := credential.Issue(credential.Request{
		OwnerCert: s.userCert,
		OwnerURN:  testUserURN,
		TargetURN: testSliceURN,
		Rights:    credential.AllSliceRights(),
		Validity:  s.window(),
	}, s.signer)
	require.NoError(t, err)
	return cred
}

func TestIssueParseRoundTrip(t *testing.T) {
	s := newCredSetup(t)
	cred := s.issueSliceCred(t)

	parsed, err := credential.Parse(cred.Encode())
	require.NoError(t, err)
	assert.Equal(t, testUserURN, parsed.OwnerURN)
	assert.Equal(t, testSliceURN, parsed.TargetURN)
	assert.Equal(t, credential.AllSliceRights(), parsed.Rights)
	assert.True(t, cred.Validity.NotBefore.Equal(parsed.Validity.NotBefore))
	assert.True(t, cred.Validity.NotAfter.Equal(parsed.Validity.NotAfter))
	assert.True(t, parsed.OwnerCert.Equal(s.userCert))
	assert.True(t, parsed.SignerCert().Equal(s.signer.Certificate()))
	assert.Nil(t, parsed.Parent)
	assert.Equal(t, 0, parsed.Depth())
}

func TestIssueRejects(t *testing.T) {
	s := newCredSetup(t)
	parent := s.issueSliceCred(t)
	owner, err := fedpki.NewIdentity(s.userCert, s.userKey)
	require.NoError(t, err)
	bobCert, _ := s.root.IssueLeaf(t, "bob", pkitest.Opts{})

	testCases := map[string]struct {
		req       credential.Request
		assertErr assert.ErrorAssertionFunc
	}{
		"empty rights": {
			req: credential.Request{
				OwnerCert: s.userCert,
				OwnerURN:  testUserURN,
				TargetURN: testSliceURN,
				Validity:  s.window(),
			},
			assertErr: assert.Error,
		},
		"invalid target": {
			req: credential.Request{
				OwnerCert: s.userCert,
				OwnerURN:  testUserURN,
				TargetURN: "not-a-urn",
				Rights:    credential.AllSliceRights(),
				Validity:  s.window(),
			},
			assertErr: assert.Error,
		},
		"delegation widens rights": {
			req: credential.Request{
				OwnerCert: bobCert,
				OwnerURN:  "urn:publicid:IDN+geni.net+user+bob",
				TargetURN: testSliceURN,
				Rights:    credential.NewRights("superpower"),
				Validity:  s.window(),
				Parent:    parent,
			},
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, credential.ErrRightsEscalation)
			},
		},
		"delegation changes target": {
			req: credential.Request{
				OwnerCert: bobCert,
				OwnerURN:  "urn:publicid:IDN+geni.net+user+bob",
				TargetURN: "urn:publicid:IDN+geni.net+slice+other",
				Rights:    credential.NewRights(credential.PrivInfo),
				Validity:  s.window(),
				Parent:    parent,
			},
			assertErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, credential.ErrRightsEscalation)
			},
		},
		"window outside parent": {
			req: credential.Request{
				OwnerCert: bobCert,
				OwnerURN:  "urn:publicid:IDN+geni.net+user+bob",
				TargetURN: testSliceURN,
				Rights:    credential.NewRights(credential.PrivInfo),
				Validity: credential.Validity{
					NotBefore: parent.Validity.NotAfter.Add(time.Hour),
					NotAfter:  parent.Validity.NotAfter.Add(2 * time.Hour),
				},
				Parent: parent,
			},
			assertErr: assert.Error,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := credential.Issue(tc.req, owner)
			tc.assertErr(t, err)
		})
	}
}

func TestIssueDelegated(t *testing.T) {
	s := newCredSetup(t)
	parent := s.issueSliceCred(t)
	owner, err := fedpki.NewIdentity(s.userCert, s.userKey)
	require.NoError(t, err)
	bobCert, _ := s.root.IssueLeaf(t, "bob", pkitest.Opts{})

	child, err := credential.Issue(credential.Request{
		OwnerCert: bobCert,
		OwnerURN:  "urn:publicid:IDN+geni.net+user+bob",
		TargetURN: testSliceURN,
		Rights:    credential.NewRights(credential.PrivInfo, credential.PrivSliceStatus),
		Validity: credential.Validity{
			NotBefore: parent.Validity.NotBefore,
			// Request past the parent expiry; the window must be clamped.
			NotAfter: parent.Validity.NotAfter.Add(time.Hour),
		},
		Parent: parent,
	}, owner)
	require.NoError(t, err)

	assert.Equal(t, 1, child.Depth())
	require.NotNil(t, child.Parent)
	assert.True(t, child.Validity.NotAfter.Equal(parent.Validity.NotAfter))
	assert.Equal(t, parent.Serial, child.Parent.Serial)

	// The full chain survives one round trip through the wire format, and
	// the embedded parent re-encodes as an independently parseable document.
	reparsed, err := credential.Parse(child.Encode())
	require.NoError(t, err)
	require.NotNil(t, reparsed.Parent)
	assert.Equal(t, parent.Serial, reparsed.Parent.Serial)
	standalone, err := credential.Parse(reparsed.Parent.Encode())
	require.NoError(t, err)
	assert.Equal(t, parent.Serial, standalone.Serial)
	assert.Nil(t, standalone.Parent)
}

func TestRenew(t *testing.T) {
	s := newCredSetup(t)
	cred := s.issueSliceCred(t)
	newWindow := credential.Validity{
		NotBefore: cred.Validity.NotBefore,
		NotAfter:  cred.Validity.NotAfter.Add(6 * time.Hour).Truncate(time.Second),
	}

	renewed, err := credential.Renew(cred, newWindow, s.signer)
	require.NoError(t, err)
	assert.True(t, renewed.Validity.NotAfter.Equal(newWindow.NotAfter))
	assert.Equal(t, cred.OwnerURN, renewed.OwnerURN)
	assert.Equal(t, cred.TargetURN, renewed.TargetURN)
	assert.Equal(t, cred.Rights, renewed.Rights)
	assert.NotEqual(t, cred.Serial, renewed.Serial)
	// The original stays intact and independently verifiable.
	assert.True(t, credential.Verify(cred, s.store, time.Now()).Valid)
}

func TestParseMalformed(t *testing.T) {
	testCases := map[string]string{
		"not xml":      "hello",
		"wrong root":   `<?xml version="1.0"?><resv></resv>`,
		"no signature": `<?xml version="1.0"?><signed-credential><credential xml:id="ref0"></credential><signatures></signatures></signed-credential>`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := credential.Parse([]byte(raw))
			assert.ErrorIs(t, err, credential.ErrMalformedCredential)
		})
	}
}
