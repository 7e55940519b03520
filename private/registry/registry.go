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

// Package registry tracks slices and their slivers across aggregates: what
// was reserved where, until when, and under which credential expiry.
//
// The registry is bookkeeping, not enforcement. In particular it surfaces
// orphaned slivers, reservations that outlive their slice credential, but
// never deletes anything on its own; releasing resources is always an
// explicit operator action.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the slice or sliver is not registered.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a live sliver is already registered for
	// the slice on that aggregate.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyDeleted indicates the sliver was deleted before. Deletion
	// is idempotent; callers typically treat this as success.
	ErrAlreadyDeleted = errors.New("already deleted")
	// ErrDeleted indicates an update to a sliver that no longer exists.
	ErrDeleted = errors.New("sliver deleted")
)

// SliverState is the lifecycle position of a sliver.
type SliverState string

const (
	// StateRequested marks a reservation sent to the aggregate but not yet
	// confirmed.
	StateRequested SliverState = "requested"
	// StateAllocated marks a confirmed reservation.
	StateAllocated SliverState = "allocated"
	// StateDeleted marks a released reservation. Deleted records are kept
	// for audit.
	StateDeleted SliverState = "deleted"
)

// Slice is a registered slice and the expiry of its governing credential.
type Slice struct {
	URN string
	// Credential is the wire form of the slice credential, kept so later
	// renew and delete fan-outs can reuse it.
	Credential []byte
	Expires    time.Time
	Created    time.Time
}

// Sliver is one slice's reservation on one aggregate.
type Sliver struct {
	SliceURN  string
	Aggregate string
	State     SliverState
	// Expires is the aggregate-confirmed reservation expiry.
	Expires  time.Time
	Manifest []byte
	Created  time.Time
	Updated  time.Time
}

// Registry stores slices and slivers. Implementations serialize their own
// writes; coordinating concurrent renew and delete of the same sliver is
// the caller's responsibility.
type Registry interface {
	// AddSlice registers a slice. Re-adding an existing slice updates its
	// credential expiry.
	AddSlice(ctx context.Context, slice Slice) error
	// Slice looks a slice up by URN.
	Slice(ctx context.Context, urn string) (Slice, error)
	// Slices lists all registered slices.
	Slices(ctx context.Context) ([]Slice, error)

	// RecordSliver registers a reservation attempt in StateRequested.
	RecordSliver(ctx context.Context, sliver Sliver) error
	// MarkAllocated confirms a reservation with its expiry and manifest.
	MarkAllocated(ctx context.Context, sliceURN, agg string, expires time.Time, manifest []byte) error
	// RenewSliver moves a confirmed reservation's expiry.
	RenewSliver(ctx context.Context, sliceURN, agg string, expires time.Time) error
	// DeleteSliver marks the reservation deleted. Deleting twice returns
	// ErrAlreadyDeleted.
	DeleteSliver(ctx context.Context, sliceURN, agg string) error
	// Sliver looks up one reservation.
	Sliver(ctx context.Context, sliceURN, agg string) (Sliver, error)
	// Slivers lists a slice's reservations on all aggregates.
	Slivers(ctx context.Context, sliceURN string) ([]Sliver, error)
	// Targets lists the aggregates holding live slivers for the slice, the
	// exact fan-out set for renew and delete.
	Targets(ctx context.Context, sliceURN string) ([]string, error)

	// Orphans lists live slivers whose slice credential has expired at the
	// given time. They are reported, never auto-deleted.
	Orphans(ctx context.Context, at time.Time) ([]Sliver, error)
}
