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

// Package xtest contains helpers for tests.
package xtest

import (
	"os"
	"time"
)

// MustTempDir creates a new temporary directory under dir with the specified
// prefix. If the function encounters an error it panics. The second return
// value is a clean-up function that recursively deletes the directory.
func MustTempDir(dir, prefix string) (string, func()) {
	name, err := os.MkdirTemp(dir, prefix)
	if err != nil {
		panic(err)
	}
	return name, func() {
		os.RemoveAll(name)
	}
}

// MustTempFileName creates a temporary file in dir with the specified
// prefix, then closes and deletes the file and returns its name. Useful for
// testing packages that need a unique path they can create themselves, such
// as database files.
func MustTempFileName(dir, prefix string) string {
	file, err := os.CreateTemp(dir, prefix)
	if err != nil {
		panic(err)
	}
	name := file.Name()
	if err := file.Close(); err != nil {
		panic(err)
	}
	if err := os.Remove(name); err != nil {
		panic(err)
	}
	return name
}

// MustParseTime parses an RFC 3339 timestamp and panics on failure. Intended
// for fixed timestamps in test tables.
func MustParseTime(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return t
}
