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

// Package fedpki handles the X.509 material of a federation member: trusted
// root bundles, the caller's identity certificate and private key, and
// chain-of-trust evaluation against the loaded roots.
//
// All loaded material is immutable after construction and safe for
// concurrent use.
package fedpki

import (
	"errors"
)

var (
	// ErrMalformedCertificate indicates PEM or DER contents that do not
	// parse as a certificate.
	ErrMalformedCertificate = errors.New("malformed certificate")
	// ErrKeyMismatch indicates a private key that does not correspond to
	// the certificate's public key.
	ErrKeyMismatch = errors.New("key does not match certificate")
	// ErrSigning indicates a key or algorithm failure during signing.
	ErrSigning = errors.New("signing failed")
)
