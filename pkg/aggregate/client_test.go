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

package aggregate_test

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/pkg/aggregate"
	"github.com/fedra-project/fedra/pkg/log/testlog"
	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki/pkitest"
	"github.com/fedra-project/fedra/private/broker"
)

const testSliceURN = "urn:publicid:IDN+geni.net+slice+alpha"

type recordedCall struct {
	Method string
	Args   []interface{}
}

// fakeTransport records calls and serves canned replies.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []recordedCall
	err     error
	handler func(method string, reply interface{}) error
}

func (f *fakeTransport) Call(
	_ context.Context,
	method string,
	args []interface{},
	reply interface{},
) error {

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Args: args})
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.handler != nil {
		return f.handler(method, reply)
	}
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clientSetup struct {
	store  *fedpki.TrustStore
	signer *fedpki.Identity
	user   *x509.Certificate
	tr     *fakeTransport
	client *aggregate.Client
}

func newClientSetup(t *testing.T) *clientSetup {
	t.Helper()
	root := pkitest.NewRoot(t, "federation-root", pkitest.Opts{})
	authCert, authKey := root.IssueLeaf(t, "slice-authority", pkitest.Opts{})
	signer, err := fedpki.NewIdentity(authCert, authKey)
	require.NoError(t, err)
	userCert, _ := root.IssueLeaf(t, "alice", pkitest.Opts{})
	store := fedpki.NewTrustStore([]*x509.Certificate{root.Cert}, nil)
	tr := &fakeTransport{}
	client, err := aggregate.NewClient(aggregate.ClientConfig{
		Descriptor: aggregate.Descriptor{
			Name: "am-a",
			URL:  "https://am-a.example.org:12346",
		},
		TrustStore: store,
		Transport:  tr,
		Logger:     testlog.NewLogger(t),
	})
	require.NoError(t, err)
	return &clientSetup{
		store:  store,
		signer: signer,
		user:   userCert,
		tr:     tr,
		client: client,
	}
}

func (s *clientSetup) issueCred(t *testing.T, rights credential.Rights,
	validity credential.Validity) *credential.Credential {

	t.Helper()
	if validity.NotBefore.IsZero() {
		validity = credential.Validity{
			NotBefore: time.Now().Add(-time.Minute),
			NotAfter:  time.Now().Add(6 * time.Hour),
		}
	}
	cred, err := credential.Issue(credential.Request{
		OwnerCert: s.user,
		OwnerURN:  "urn:publicid:IDN+geni.net+user+alice",
		TargetURN: testSliceURN,
		Rights:    rights,
		Validity:  validity,
	}, s.signer)
	require.NoError(t, err)
	return cred
}

func TestClientFailsFastOnExpiredCredential(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.AllSliceRights(), credential.Validity{
		NotBefore: time.Now().Add(-2 * time.Hour),
		NotAfter:  time.Now().Add(-time.Hour),
	})

	_, err := s.client.CreateSliver(context.Background(), testSliceURN, cred,
		[]byte("<rspec/>"), nil)
	assert.ErrorIs(t, err, aggregate.ErrCredentialRejected)
	assert.Equal(t, 0, s.tr.callCount(), "expired credential must not reach the network")
}

func TestClientFailsFastOnMissingPrivilege(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.NewRights(credential.PrivInfo), credential.Validity{})

	err := s.client.DeleteSliver(context.Background(), testSliceURN, cred)
	assert.ErrorIs(t, err, aggregate.ErrMissingPrivilege)
	assert.Equal(t, 0, s.tr.callCount())
}

func TestRenewSliverClampsToCredentialExpiry(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.AllSliceRights(), credential.Validity{})
	s.tr.handler = func(_ string, reply interface{}) error {
		*(reply.(*bool)) = true
		return nil
	}

	requested := cred.Validity.NotAfter.Add(24 * time.Hour)
	effective, err := s.client.RenewSliver(
		context.Background(), testSliceURN, cred, requested)
	require.NoError(t, err)
	assert.True(t, effective.Equal(cred.Validity.NotAfter))

	require.Equal(t, 1, s.tr.callCount())
	args := s.tr.calls[0].Args
	require.Len(t, args, 3)
	assert.Equal(t, cred.Validity.NotAfter.UTC().Format(time.RFC3339), args[2])
}

func TestListResourcesCompressed(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.AllSliceRights(), credential.Validity{})

	const rspec = `<rspec type="advertisement"/>`
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(rspec))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	s.tr.handler = func(_ string, reply interface{}) error {
		*(reply.(*string)) = encoded
		return nil
	}
	got, err := s.client.ListResources(context.Background(), cred,
		aggregate.ListResourcesOptions{Compressed: true})
	require.NoError(t, err)
	assert.Equal(t, rspec, string(got))
}

func TestClientErrorClassification(t *testing.T) {
	testCases := map[string]struct {
		err       error
		assertErr func(t *testing.T, err error)
	}{
		"connection refused": {
			err: &url.Error{Op: "Post", URL: "https://am-a.example.org",
				Err: errors.New("connect: connection refused")},
			assertErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, aggregate.ErrUnreachable)
			},
		},
		"tls rejection": {
			err: &url.Error{Op: "Post", URL: "https://am-a.example.org",
				Err: errors.New("remote error: tls: bad certificate")},
			assertErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, aggregate.ErrAuthRejected)
			},
		},
		"context deadline": {
			err: context.DeadlineExceeded,
			assertErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, aggregate.ErrUnreachable)
			},
		},
		"remote fault": {
			err: xmlrpc.FaultError{Code: 7, String: "slice does not exist"},
			assertErr: func(t *testing.T, err error) {
				var fault *aggregate.Error
				require.ErrorAs(t, err, &fault)
				assert.Equal(t, "7", fault.Code)
				assert.Equal(t, "slice does not exist", fault.Msg)
			},
		},
		"garbage reply": {
			err: errors.New("failed to unmarshal response"),
			assertErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, aggregate.ErrMalformedResponse)
			},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			s := newClientSetup(t)
			s.tr.err = tc.err
			_, err := s.client.GetVersion(context.Background())
			require.Error(t, err)
			tc.assertErr(t, err)
		})
	}
}

func TestSliverStatus(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.AllSliceRights(), credential.Validity{})
	s.tr.handler = func(_ string, reply interface{}) error {
		*(reply.(*map[string]interface{})) = map[string]interface{}{
			"geni_status": "ready",
		}
		return nil
	}
	status, err := s.client.SliverStatus(context.Background(), testSliceURN, cred)
	require.NoError(t, err)
	assert.Equal(t, "ready", status["geni_status"])
}

// An expired credential must fail every target of a fan-out locally,
// before a single byte goes on the wire.
func TestDispatchExpiredCredentialNoNetwork(t *testing.T) {
	s := newClientSetup(t)
	cred := s.issueCred(t, credential.AllSliceRights(), credential.Validity{
		NotBefore: time.Now().Add(-2 * time.Hour),
		NotAfter:  time.Now().Add(-time.Second),
	})

	transports := []*fakeTransport{s.tr, {}, {}}
	clients := []*aggregate.Client{s.client}
	for i, tr := range transports[1:] {
		client, err := aggregate.NewClient(aggregate.ClientConfig{
			Descriptor: aggregate.Descriptor{
				Name: fmt.Sprintf("am-%d", i+1),
				URL:  "https://am.example.org:12346",
			},
			TrustStore: s.store,
			Transport:  tr,
			Logger:     testlog.NewLogger(t),
		})
		require.NoError(t, err)
		clients = append(clients, client)
	}

	reqs := make([]broker.Request, 0, len(clients))
	for _, client := range clients {
		reqs = append(reqs, broker.Request{
			Aggregate: client.Name(),
			Call: func(ctx context.Context) (interface{}, error) {
				return nil, client.DeleteSliver(ctx, testSliceURN, cred)
			},
		})
	}
	b := broker.New(broker.Config{Logger: testlog.NewLogger(t)})
	res, err := b.Dispatch(context.Background(), broker.AllOrNothing, reqs)
	require.Error(t, err)
	require.Len(t, res.Outcomes, len(clients))
	for _, o := range res.Outcomes {
		assert.ErrorIs(t, o.Err, aggregate.ErrCredentialRejected)
		assert.Equal(t, 1, o.Attempts, "local rejection must not be retried")
	}
	for _, tr := range transports {
		assert.Zero(t, tr.callCount())
	}
}
