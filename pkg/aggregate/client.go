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

// Package aggregate implements the client side of the aggregate manager
// RPC surface: resource discovery and sliver lifecycle operations over
// mutually authenticated XML-RPC.
//
// Every credential-bearing operation verifies the credential locally first
// and checks it grants the needed privilege; an invalid or under-privileged
// credential fails fast without any network traffic. Remote faults are
// returned as *Error with the aggregate's code preserved and are never
// retried by this package; only ErrUnreachable failures are safe to retry.
package aggregate

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/fedra-project/fedra/pkg/log"
	"github.com/fedra-project/fedra/pkg/metrics"
	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/pkg/scrypto/credential"
	"github.com/fedra-project/fedra/pkg/scrypto/fedpki"
)

// Aggregate manager RPC method names, fixed by the federation API.
const (
	opGetVersion    = "GetVersion"
	opListResources = "ListResources"
	opCreateSliver  = "CreateSliver"
	opRenewSliver   = "RenewSliver"
	opDeleteSliver  = "DeleteSliver"
	opSliverStatus  = "SliverStatus"
	opShutdown      = "Shutdown"
)

const defaultNegativeVerifyTTL = 30 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	Descriptor Descriptor
	// Identity is the client identity presented to the aggregate. Required
	// unless Transport is set.
	Identity *fedpki.Identity
	// TrustStore anchors both credential verification and, absent a pinned
	// CA bundle, server certificate verification.
	TrustStore *fedpki.TrustStore
	// Transport overrides the mutually authenticated XML-RPC transport.
	Transport Transport
	// Logger defaults to the root logger.
	Logger log.Logger
	// Calls counts delivered RPCs, labeled by operation and result. Local
	// credential rejections make no RPC and are not counted.
	Calls metrics.Counter
	// NegativeVerifyTTL bounds how long failed credential verifications
	// are cached.
	NegativeVerifyTTL time.Duration
}

// Client talks to one aggregate manager.
type Client struct {
	desc   Descriptor
	tr     Transport
	verify *credential.VerifyCache
	logger log.Logger
	calls  metrics.Counter
}

// NewClient builds a client for one aggregate.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.TrustStore == nil {
		return nil, serrors.New("trust store must be set")
	}
	tr := cfg.Transport
	if tr == nil {
		if cfg.Identity == nil {
			return nil, serrors.New("identity must be set")
		}
		var err error
		if tr, err = NewTransport(cfg.Descriptor, cfg.Identity, cfg.TrustStore); err != nil {
			return nil, err
		}
	} else if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}
	negTTL := cfg.NegativeVerifyTTL
	if negTTL == 0 {
		negTTL = defaultNegativeVerifyTTL
	}
	return &Client{
		desc:   cfg.Descriptor,
		tr:     tr,
		verify: credential.NewVerifyCache(cfg.TrustStore, negTTL),
		logger: logger.New("aggregate", cfg.Descriptor.Name),
		calls:  cfg.Calls,
	}, nil
}

// Name returns the aggregate's configured name.
func (c *Client) Name() string {
	return c.desc.Name
}

// GetVersion queries the API version and capability advertisement. No
// credential is required.
func (c *Client) GetVersion(ctx context.Context) (map[string]interface{}, error) {
	var reply map[string]interface{}
	if err := c.call(ctx, opGetVersion, nil, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ListResourcesOptions narrows a resource listing.
type ListResourcesOptions struct {
	// SliceURN restricts the listing to resources allocated to the slice.
	SliceURN string
	// Available restricts the advertisement to currently free resources.
	Available bool
	// Compressed asks for a zlib-compressed listing; the reply is inflated
	// transparently.
	Compressed bool
}

// ListResources fetches the resource advertisement, or the manifest of a
// slice when SliceURN is set.
func (c *Client) ListResources(
	ctx context.Context,
	cred *credential.Credential,
	opts ListResourcesOptions,
) ([]byte, error) {

	priv := credential.PrivInfo
	if opts.SliceURN != "" {
		priv = credential.PrivSliceStatus
	}
	if err := c.checkCredential(cred, priv); err != nil {
		return nil, err
	}
	options := map[string]interface{}{
		"geni_compressed": opts.Compressed,
		"geni_available":  opts.Available,
	}
	if opts.SliceURN != "" {
		options["geni_slice_urn"] = opts.SliceURN
	}
	var reply string
	args := []interface{}{credList(cred), options}
	if err := c.call(ctx, opListResources, args, &reply); err != nil {
		return nil, err
	}
	if opts.Compressed {
		return inflate(reply)
	}
	return []byte(reply), nil
}

// SliverUser names a member to be granted login access to a sliver.
type SliverUser struct {
	URN  string
	Keys []string
}

// CreateSliver reserves the resources described by the request rspec for
// the slice and returns the manifest rspec. The aggregate clamps sliver
// expiry to the credential expiry.
func (c *Client) CreateSliver(
	ctx context.Context,
	sliceURN string,
	cred *credential.Credential,
	rspec []byte,
	users []SliverUser,
) ([]byte, error) {

	if err := c.checkCredential(cred, credential.PrivCreateSliver); err != nil {
		return nil, err
	}
	userArgs := make([]interface{}, 0, len(users))
	for _, u := range users {
		userArgs = append(userArgs, map[string]interface{}{
			"urn":  u.URN,
			"keys": u.Keys,
		})
	}
	var manifest string
	args := []interface{}{sliceURN, credList(cred), string(rspec), userArgs}
	if err := c.call(ctx, opCreateSliver, args, &manifest); err != nil {
		return nil, err
	}
	return []byte(manifest), nil
}

// RenewSliver extends the sliver reservation for the slice. The requested
// expiration is clamped to the credential expiry before the call; the
// effective expiration is returned.
func (c *Client) RenewSliver(
	ctx context.Context,
	sliceURN string,
	cred *credential.Credential,
	expiration time.Time,
) (time.Time, error) {

	if err := c.checkCredential(cred, credential.PrivRenewSliver); err != nil {
		return time.Time{}, err
	}
	if expiration.After(cred.Validity.NotAfter) {
		c.logger.Debug("Clamping renewal to credential expiry",
			"requested", expiration, "credential_expiry", cred.Validity.NotAfter)
		expiration = cred.Validity.NotAfter
	}
	var ok bool
	args := []interface{}{sliceURN, credList(cred), expiration.UTC().Format(time.RFC3339)}
	if err := c.call(ctx, opRenewSliver, args, &ok); err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, serrors.New("renewal refused by aggregate",
			"slice", sliceURN)
	}
	return expiration, nil
}

// DeleteSliver releases the slice's sliver on this aggregate.
func (c *Client) DeleteSliver(
	ctx context.Context,
	sliceURN string,
	cred *credential.Credential,
) error {

	if err := c.checkCredential(cred, credential.PrivDeleteSlice); err != nil {
		return err
	}
	var ok bool
	args := []interface{}{sliceURN, credList(cred)}
	if err := c.call(ctx, opDeleteSliver, args, &ok); err != nil {
		return err
	}
	if !ok {
		return serrors.New("deletion refused by aggregate", "slice", sliceURN)
	}
	return nil
}

// SliverStatus reports the aggregate's view of the slice's sliver.
func (c *Client) SliverStatus(
	ctx context.Context,
	sliceURN string,
	cred *credential.Credential,
) (map[string]interface{}, error) {

	if err := c.checkCredential(cred, credential.PrivSliceStatus); err != nil {
		return nil, err
	}
	var reply map[string]interface{}
	args := []interface{}{sliceURN, credList(cred)}
	if err := c.call(ctx, opSliverStatus, args, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Shutdown performs an emergency stop of the slice's resources on this
// aggregate. The operation is not a delete: resources stay allocated but
// inactive, pending operator intervention.
func (c *Client) Shutdown(
	ctx context.Context,
	sliceURN string,
	cred *credential.Credential,
) error {

	if err := c.checkCredential(cred, credential.PrivShutdown); err != nil {
		return err
	}
	var ok bool
	args := []interface{}{sliceURN, credList(cred)}
	if err := c.call(ctx, opShutdown, args, &ok); err != nil {
		return err
	}
	if !ok {
		return serrors.New("shutdown refused by aggregate", "slice", sliceURN)
	}
	return nil
}

func (c *Client) checkCredential(cred *credential.Credential, priv string) error {
	if cred == nil {
		return serrors.Join(ErrCredentialRejected, nil, "reason", "no credential")
	}
	if res := c.verify.Verify(cred); !res.Valid {
		return serrors.Join(ErrCredentialRejected, nil,
			"reason", res.Reason, "detail", res.Detail)
	}
	if !cred.Rights.Has(priv) {
		return serrors.Join(ErrMissingPrivilege, nil,
			"privilege", priv, "granted", cred.Rights.Names())
	}
	return nil
}

func (c *Client) call(ctx context.Context, op string, args []interface{}, reply interface{}) error {
	err := classify(c.tr.Call(ctx, op, args, reply))
	metrics.CounterInc(metrics.CounterWith(c.calls,
		"operation", op, "result", resultLabel(err)))
	if err != nil {
		c.logger.Debug("Aggregate call failed", "op", op, "err", err)
		return serrors.Wrap("calling aggregate", err,
			"aggregate", c.desc.Name, "op", op)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		var fault *Error
		if errors.As(err, &fault) {
			return "fault"
		}
		return "error"
	}
}

func credList(cred *credential.Credential) []interface{} {
	return []interface{}{string(cred.Encode())}
}

func inflate(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, serrors.Join(ErrMalformedResponse, err, "field", "rspec")
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, serrors.Join(ErrMalformedResponse, err, "field", "rspec")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, serrors.Join(ErrMalformedResponse, err, "field", "rspec")
	}
	return out, nil
}
