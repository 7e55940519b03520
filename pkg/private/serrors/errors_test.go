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

package serrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

type testToTempErr struct {
	msg       string
	timeout   bool
	temporary bool
	cause     error
}

func (e *testToTempErr) Error() string {
	return e.msg
}

func (e *testToTempErr) Timeout() bool {
	return e.timeout
}

func (e *testToTempErr) Temporary() bool {
	return e.temporary
}

func (e *testToTempErr) Unwrap() error {
	return e.cause
}

func TestIsTimeout(t *testing.T) {
	err := serrors.New("no timeout")
	assert.False(t, serrors.IsTimeout(err))
	wrappedErr := serrors.Wrap("timeout",
		&testToTempErr{msg: "to", timeout: true})
	assert.True(t, serrors.IsTimeout(wrappedErr))
}

func TestIsTemporary(t *testing.T) {
	err := serrors.New("not temp")
	assert.False(t, serrors.IsTemporary(err))
	wrappedErr := serrors.Wrap("temp",
		&testToTempErr{msg: "to", temporary: true})
	assert.True(t, serrors.IsTemporary(wrappedErr))
}

func TestWrapSupportsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := serrors.Wrap("wrapping", sentinel, "k", "v")
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, err)
}

func TestJoinSupportsIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := errors.New("cause")

	err := serrors.Join(sentinel, cause, "k", "v")
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, serrors.Join(nil, nil))
}

func TestErrorFormat(t *testing.T) {
	testCases := map[string]struct {
		err      error
		expected string
	}{
		"new with context": {
			err:      serrors.New("failure", "name", "x", "attempt", 1),
			expected: "failure {attempt=1; name=x}",
		},
		"wrap with cause": {
			err:      serrors.Wrap("outer", errors.New("inner")),
			expected: "outer: inner",
		},
		"join with context": {
			err:      serrors.Join(errors.New("base"), errors.New("cause"), "k", "v"),
			expected: "base {k=v}: cause",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestList(t *testing.T) {
	var errs serrors.List
	assert.NoError(t, errs.ToError())

	errs = append(errs, errors.New("first"), errors.New("second"))
	err := errs.ToError()
	assert.Error(t, err)
	assert.Equal(t, "[ first; second ]", fmt.Sprint(err))
}
