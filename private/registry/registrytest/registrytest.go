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

// Package registrytest runs the behavior suite every Registry
// implementation must pass.
package registrytest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedra-project/fedra/private/registry"
)

const (
	sliceURN  = "urn:publicid:IDN+geni.net+slice+alpha"
	otherURN  = "urn:publicid:IDN+geni.net+slice+beta"
	aggOne    = "am-a"
	aggTwo    = "am-b"
	tolerance = time.Second
)

// Run exercises the Registry contract against a fresh implementation per
// subtest.
func Run(t *testing.T, newRegistry func(t *testing.T) registry.Registry) {
	tests := map[string]func(*testing.T, registry.Registry){
		"slice lifecycle":        testSliceLifecycle,
		"sliver lifecycle":       testSliverLifecycle,
		"duplicate live sliver":  testDuplicateSliver,
		"delete is idempotent":   testIdempotentDelete,
		"renew deleted sliver":   testRenewDeleted,
		"orphan detection":       testOrphans,
		"fan-out targets":        testTargets,
		"lookup missing entries": testNotFound,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test(t, newRegistry(t))
		})
	}
}

func addSlice(t *testing.T, r registry.Registry, urn string, expires time.Time) {
	t.Helper()
	require.NoError(t, r.AddSlice(context.Background(), registry.Slice{
		URN:     urn,
		Expires: expires,
	}))
}

func addSliver(t *testing.T, r registry.Registry, urn, agg string) {
	t.Helper()
	require.NoError(t, r.RecordSliver(context.Background(), registry.Sliver{
		SliceURN:  urn,
		Aggregate: agg,
	}))
}

func testSliceLifecycle(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	expires := time.Now().Add(6 * time.Hour)
	addSlice(t, r, sliceURN, expires)
	addSlice(t, r, otherURN, expires)

	got, err := r.Slice(ctx, sliceURN)
	require.NoError(t, err)
	assert.WithinDuration(t, expires, got.Expires, tolerance)

	// Re-adding moves the credential expiry, e.g. after a slice renewal.
	renewed := expires.Add(12 * time.Hour)
	addSlice(t, r, sliceURN, renewed)
	got, err = r.Slice(ctx, sliceURN)
	require.NoError(t, err)
	assert.WithinDuration(t, renewed, got.Expires, tolerance)

	all, err := r.Slices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sliceURN, all[0].URN)
	assert.Equal(t, otherURN, all[1].URN)
}

func testSliverLifecycle(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	addSlice(t, r, sliceURN, time.Now().Add(6*time.Hour))
	addSliver(t, r, sliceURN, aggOne)

	got, err := r.Sliver(ctx, sliceURN, aggOne)
	require.NoError(t, err)
	assert.Equal(t, registry.StateRequested, got.State)

	expires := time.Now().Add(3 * time.Hour)
	manifest := []byte(`<rspec type="manifest"/>`)
	require.NoError(t, r.MarkAllocated(ctx, sliceURN, aggOne, expires, manifest))
	got, err = r.Sliver(ctx, sliceURN, aggOne)
	require.NoError(t, err)
	want := registry.Sliver{
		SliceURN:  sliceURN,
		Aggregate: aggOne,
		State:     registry.StateAllocated,
		Manifest:  manifest,
	}
	assert.Empty(t, cmp.Diff(want, got,
		cmpopts.IgnoreFields(registry.Sliver{}, "Expires", "Created", "Updated")))
	assert.WithinDuration(t, expires, got.Expires, tolerance)

	renewed := expires.Add(2 * time.Hour)
	require.NoError(t, r.RenewSliver(ctx, sliceURN, aggOne, renewed))
	got, err = r.Sliver(ctx, sliceURN, aggOne)
	require.NoError(t, err)
	assert.WithinDuration(t, renewed, got.Expires, tolerance)

	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggOne))
	got, err = r.Sliver(ctx, sliceURN, aggOne)
	require.NoError(t, err)
	assert.Equal(t, registry.StateDeleted, got.State)
}

func testDuplicateSliver(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	addSlice(t, r, sliceURN, time.Now().Add(6*time.Hour))
	addSliver(t, r, sliceURN, aggOne)

	err := r.RecordSliver(ctx, registry.Sliver{SliceURN: sliceURN, Aggregate: aggOne})
	assert.ErrorIs(t, err, registry.ErrAlreadyExists)

	// A deleted sliver does not block a new reservation on the same
	// aggregate.
	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggOne))
	assert.NoError(t, r.RecordSliver(ctx,
		registry.Sliver{SliceURN: sliceURN, Aggregate: aggOne}))
}

func testIdempotentDelete(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	addSlice(t, r, sliceURN, time.Now().Add(6*time.Hour))
	addSliver(t, r, sliceURN, aggOne)

	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggOne))
	err := r.DeleteSliver(ctx, sliceURN, aggOne)
	assert.ErrorIs(t, err, registry.ErrAlreadyDeleted)
}

func testRenewDeleted(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	addSlice(t, r, sliceURN, time.Now().Add(6*time.Hour))
	addSliver(t, r, sliceURN, aggOne)
	require.NoError(t, r.MarkAllocated(ctx, sliceURN, aggOne,
		time.Now().Add(time.Hour), nil))
	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggOne))

	err := r.RenewSliver(ctx, sliceURN, aggOne, time.Now().Add(2*time.Hour))
	assert.ErrorIs(t, err, registry.ErrDeleted)
}

func testOrphans(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	now := time.Now()

	// Expired slice with one live and one deleted sliver.
	addSlice(t, r, sliceURN, now.Add(-time.Hour))
	addSliver(t, r, sliceURN, aggOne)
	require.NoError(t, r.MarkAllocated(ctx, sliceURN, aggOne, now.Add(time.Hour), nil))
	addSliver(t, r, sliceURN, aggTwo)
	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggTwo))

	// Live slice, must not contribute orphans.
	addSlice(t, r, otherURN, now.Add(6*time.Hour))
	addSliver(t, r, otherURN, aggOne)

	orphans, err := r.Orphans(ctx, now)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, sliceURN, orphans[0].SliceURN)
	assert.Equal(t, aggOne, orphans[0].Aggregate)

	// Orphans are surfaced, never deleted: the sliver must still be there.
	got, err := r.Sliver(ctx, sliceURN, aggOne)
	require.NoError(t, err)
	assert.Equal(t, registry.StateAllocated, got.State)
}

func testTargets(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	cred := []byte("<signed-credential/>")
	require.NoError(t, r.AddSlice(ctx, registry.Slice{
		URN:        sliceURN,
		Credential: cred,
		Expires:    time.Now().Add(6 * time.Hour),
	}))
	addSliver(t, r, sliceURN, aggOne)
	addSliver(t, r, sliceURN, aggTwo)
	require.NoError(t, r.DeleteSliver(ctx, sliceURN, aggTwo))

	targets, err := r.Targets(ctx, sliceURN)
	require.NoError(t, err)
	assert.Equal(t, []string{aggOne}, targets)

	// The stored slice credential is available for later fan-outs.
	slice, err := r.Slice(ctx, sliceURN)
	require.NoError(t, err)
	assert.Equal(t, cred, slice.Credential)
}

func testNotFound(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	_, err := r.Slice(ctx, sliceURN)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = r.Sliver(ctx, sliceURN, aggOne)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	err = r.RecordSliver(ctx, registry.Sliver{SliceURN: sliceURN, Aggregate: aggOne})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}
