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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedra-project/fedra/pkg/scrypto/credential"
)

func TestRightsSubsetOf(t *testing.T) {
	testCases := map[string]struct {
		child  credential.Rights
		parent credential.Rights
		subset bool
	}{
		"equal sets": {
			child:  credential.Rights{"info": true, "createsliver": true},
			parent: credential.Rights{"info": true, "createsliver": true},
			subset: true,
		},
		"strict subset": {
			child:  credential.Rights{"info": false},
			parent: credential.Rights{"info": true, "createsliver": true},
			subset: true,
		},
		"privilege missing in parent": {
			child:  credential.Rights{"shutdown": false},
			parent: credential.Rights{"info": true},
			subset: false,
		},
		"parent holds without delegation": {
			child:  credential.Rights{"info": false},
			parent: credential.Rights{"info": false},
			subset: false,
		},
		"empty child": {
			child:  credential.Rights{},
			parent: credential.Rights{"info": true},
			subset: true,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.subset, tc.child.SubsetOf(tc.parent))
		})
	}
}

func TestRightsNames(t *testing.T) {
	r := credential.NewRights(
		credential.PrivShutdown, credential.PrivCreateSliver, credential.PrivInfo,
	)
	assert.Equal(t, []string{"createsliver", "info", "shutdown"}, r.Names())
}

func TestRightsClone(t *testing.T) {
	orig := credential.AllSliceRights()
	clone := orig.Clone()
	clone[credential.PrivInfo] = false
	delete(clone, credential.PrivShutdown)
	assert.True(t, orig[credential.PrivInfo])
	assert.True(t, orig.Has(credential.PrivShutdown))
}
