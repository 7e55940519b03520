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
	"fmt"
	"time"
)

// Validity is the time window in which a credential is valid.
type Validity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// Contains reports whether the instant is inside the window. The window is
// inclusive on both ends.
func (v Validity) Contains(t time.Time) bool {
	return !t.Before(v.NotBefore) && !t.After(v.NotAfter)
}

// Covers reports whether other is fully contained in this window.
// Delegation must never widen the window.
func (v Validity) Covers(other Validity) bool {
	return !other.NotBefore.Before(v.NotBefore) && !other.NotAfter.After(v.NotAfter)
}

// Intersect clamps this window to the overlap with other. The result is
// empty (IsEmpty) if the windows do not overlap.
func (v Validity) Intersect(other Validity) Validity {
	r := v
	if other.NotBefore.After(r.NotBefore) {
		r.NotBefore = other.NotBefore
	}
	if other.NotAfter.Before(r.NotAfter) {
		r.NotAfter = other.NotAfter
	}
	return r
}

// IsEmpty reports whether the window contains no instant.
func (v Validity) IsEmpty() bool {
	return v.NotAfter.Before(v.NotBefore)
}

func (v Validity) String() string {
	return fmt.Sprintf("[%s, %s]",
		v.NotBefore.Format(time.RFC3339), v.NotAfter.Format(time.RFC3339))
}
