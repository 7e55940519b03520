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
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/kolo/xmlrpc"
)

var (
	// ErrUnreachable indicates the aggregate could not be reached at the
	// transport level. Unreachable calls are safe to retry.
	ErrUnreachable = errors.New("aggregate unreachable")
	// ErrAuthRejected indicates the aggregate refused the client identity
	// during the TLS handshake.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrMalformedResponse indicates a reply that does not decode as a
	// valid RPC response.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrCredentialRejected indicates the credential failed local
	// verification; no network call was made.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrMissingPrivilege indicates the credential verifies but does not
	// grant the privilege the operation needs; no network call was made.
	ErrMissingPrivilege = errors.New("missing privilege")
)

// Error is a fault returned by the aggregate itself: the call was delivered
// and the remote side refused it. The code is preserved verbatim; remote
// faults are never retried.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("aggregate fault (code %s): %s", e.Code, e.Msg)
}

// classify maps transport-level failures onto the error taxonomy. XML-RPC
// faults become *Error, connection-level failures ErrUnreachable, TLS
// identity rejections ErrAuthRejected, everything else malformed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &Error{Code: strconv.Itoa(fault.Code), Msg: fault.String}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if isTLSAuthError(uerr.Err) {
			return fmt.Errorf("%w: %w", ErrAuthRejected, err)
		}
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

// isTLSAuthError detects peer rejection of the client identity. The
// handshake surfaces this as a tls alert with no typed error to match on,
// except for certificate verification failures which are x509 errors.
func isTLSAuthError(err error) bool {
	if err == nil {
		return false
	}
	var certInvalid x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &certInvalid) || errors.As(err, &unknownAuth) {
		return true
	}
	s := err.Error()
	for _, sub := range []string{
		"tls: bad certificate",
		"tls: certificate required",
		"tls: unknown certificate authority",
	} {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
