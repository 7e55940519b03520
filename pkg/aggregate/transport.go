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

package aggregate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
)

// Transport delivers one RPC to an aggregate. Implementations must be safe
// for concurrent use.
type Transport interface {
	Call(ctx context.Context, method string, args []interface{}, reply interface{}) error
}

const responseHeaderTimeout = time.Minute

// NewTransport builds the mutually authenticated XML-RPC transport for a
// descriptor. The client identity is presented on every connection; the
// server certificate is verified against the descriptor's pinned CA bundle,
// or the federation trust roots when none is pinned.
func NewTransport(
	desc Descriptor,
	identity *fedpki.Identity,
	store *fedpki.TrustStore,
) (Transport, error) {

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if desc.CACertFile != "" {
		certs, err := fedpki.ReadPEMCerts(desc.CACertFile)
		if err != nil {
			return nil, serrors.Wrap("loading aggregate CA bundle", err,
				"name", desc.Name)
		}
		for _, c := range certs {
			pool.AddCert(c)
		}
	} else {
		for _, c := range store.Roots() {
			pool.AddCert(c)
		}
	}
	client, err := xmlrpc.NewClient(desc.URL, &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{identity.TLSCertificate()},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		},
		ResponseHeaderTimeout: responseHeaderTimeout,
	})
	if err != nil {
		return nil, serrors.Wrap("creating RPC client", err, "name", desc.Name)
	}
	return &rpcTransport{client: client}, nil
}

type rpcTransport struct {
	client *xmlrpc.Client
}

func (t *rpcTransport) Call(
	ctx context.Context,
	method string,
	args []interface{},
	reply interface{},
) error {

	// The underlying client has no context support. The call goroutine is
	// bounded by the transport's response header timeout, so abandoning it
	// on context expiry cannot accumulate goroutines without bound.
	done := make(chan error, 1)
	go func() {
		done <- t.client.Call(method, args, reply)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
