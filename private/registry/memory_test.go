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

package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/private/registry"
	"github.com/fedra-project/fedra/private/registry/registrytest"
)

func TestMemory(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Registry {
		return registry.NewMemory()
	})
}

func TestMemoryConcurrentWrites(t *testing.T) {
	r := registry.NewMemory()
	ctx := context.Background()
	require.NoError(t, r.AddSlice(ctx, registry.Slice{
		URN:     "urn:publicid:IDN+geni.net+slice+alpha",
		Expires: time.Now().Add(time.Hour),
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			agg := fmt.Sprintf("am-%d", i)
			assert.NoError(t, r.RecordSliver(ctx, registry.Sliver{
				SliceURN:  "urn:publicid:IDN+geni.net+slice+alpha",
				Aggregate: agg,
			}))
			assert.NoError(t, r.MarkAllocated(ctx,
				"urn:publicid:IDN+geni.net+slice+alpha", agg,
				time.Now().Add(time.Hour), nil))
		}()
	}
	wg.Wait()

	slivers, err := r.Slivers(ctx, "urn:publicid:IDN+geni.net+slice+alpha")
	require.NoError(t, err)
	assert.Len(t, slivers, 16)
}
