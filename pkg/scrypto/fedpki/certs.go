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
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

// ReadPEMCerts reads one file with one or more PEM encoded certificates.
func ReadPEMCerts(file string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, serrors.Wrap("reading certificate file", err, "file", file)
	}
	certs, err := ParsePEMCerts(raw)
	if err != nil {
		return nil, serrors.Wrap("parsing certificate file", err, "file", file)
	}
	return certs, nil
}

// ParsePEMCerts parses a concatenation of PEM encoded certificates.
func ParsePEMCerts(raw []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(raw) > 0 {
		block, rest := pem.Decode(raw)
		if block == nil {
			return nil, serrors.Join(ErrMalformedCertificate, nil,
				"reason", "trailing non-PEM data")
		}
		raw = rest
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, serrors.Join(ErrMalformedCertificate, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, serrors.Join(ErrMalformedCertificate, nil,
			"reason", "no certificate block")
	}
	return certs, nil
}

// readPEMDirOrFiles expands each path: a directory contributes all its
// *.pem files, anything else is read as a bundle file.
func readPEMDirOrFiles(paths []string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, serrors.Wrap("stating path", err, "path", p)
		}
		files := []string{p}
		if info.IsDir() {
			files, err = filepath.Glob(filepath.Join(p, "*.pem"))
			if err != nil {
				return nil, serrors.Wrap("searching for certificates", err, "dir", p)
			}
		}
		for _, f := range files {
			cs, err := ReadPEMCerts(f)
			if err != nil {
				return nil, err
			}
			certs = append(certs, cs...)
		}
	}
	return certs, nil
}
