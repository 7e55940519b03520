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

package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fedra-project/fedra/pkg/private/serrors"
)

type sliceRecord struct {
	slice   Slice
	slivers map[string]*Sliver
}

// Memory is an in-process Registry. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	slices map[string]*sliceRecord
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{slices: make(map[string]*sliceRecord)}
}

func (m *Memory) AddSlice(_ context.Context, slice Slice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.slices[slice.URN]; ok {
		rec.slice.Expires = slice.Expires
		if slice.Credential != nil {
			rec.slice.Credential = slice.Credential
		}
		return nil
	}
	if slice.Created.IsZero() {
		slice.Created = time.Now()
	}
	m.slices[slice.URN] = &sliceRecord{
		slice:   slice,
		slivers: make(map[string]*Sliver),
	}
	return nil
}

func (m *Memory) Slice(_ context.Context, urn string) (Slice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slices[urn]
	if !ok {
		return Slice{}, serrors.Join(ErrNotFound, nil, "slice", urn)
	}
	return rec.slice, nil
}

func (m *Memory) Slices(_ context.Context) ([]Slice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Slice, 0, len(m.slices))
	for _, rec := range m.slices {
		out = append(out, rec.slice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URN < out[j].URN })
	return out, nil
}

func (m *Memory) RecordSliver(_ context.Context, sliver Sliver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.slices[sliver.SliceURN]
	if !ok {
		return serrors.Join(ErrNotFound, nil, "slice", sliver.SliceURN)
	}
	if existing, ok := rec.slivers[sliver.Aggregate]; ok && existing.State != StateDeleted {
		return serrors.Join(ErrAlreadyExists, nil,
			"slice", sliver.SliceURN, "aggregate", sliver.Aggregate)
	}
	now := time.Now()
	sliver.State = StateRequested
	sliver.Created = now
	sliver.Updated = now
	rec.slivers[sliver.Aggregate] = &sliver
	return nil
}

func (m *Memory) MarkAllocated(
	_ context.Context,
	sliceURN, agg string,
	expires time.Time,
	manifest []byte,
) error {

	m.mu.Lock()
	defer m.mu.Unlock()
	sliver, err := m.sliverLocked(sliceURN, agg)
	if err != nil {
		return err
	}
	if sliver.State == StateDeleted {
		return serrors.Join(ErrDeleted, nil, "slice", sliceURN, "aggregate", agg)
	}
	sliver.State = StateAllocated
	sliver.Expires = expires
	sliver.Manifest = manifest
	sliver.Updated = time.Now()
	return nil
}

func (m *Memory) RenewSliver(_ context.Context, sliceURN, agg string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sliver, err := m.sliverLocked(sliceURN, agg)
	if err != nil {
		return err
	}
	if sliver.State == StateDeleted {
		return serrors.Join(ErrDeleted, nil, "slice", sliceURN, "aggregate", agg)
	}
	if sliver.State != StateAllocated {
		return serrors.New("sliver not allocated",
			"slice", sliceURN, "aggregate", agg, "state", string(sliver.State))
	}
	sliver.Expires = expires
	sliver.Updated = time.Now()
	return nil
}

func (m *Memory) DeleteSliver(_ context.Context, sliceURN, agg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sliver, err := m.sliverLocked(sliceURN, agg)
	if err != nil {
		return err
	}
	if sliver.State == StateDeleted {
		return serrors.Join(ErrAlreadyDeleted, nil,
			"slice", sliceURN, "aggregate", agg)
	}
	sliver.State = StateDeleted
	sliver.Updated = time.Now()
	return nil
}

func (m *Memory) Sliver(_ context.Context, sliceURN, agg string) (Sliver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sliver, err := m.sliverLocked(sliceURN, agg)
	if err != nil {
		return Sliver{}, err
	}
	return *sliver, nil
}

func (m *Memory) Slivers(_ context.Context, sliceURN string) ([]Sliver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slices[sliceURN]
	if !ok {
		return nil, serrors.Join(ErrNotFound, nil, "slice", sliceURN)
	}
	out := make([]Sliver, 0, len(rec.slivers))
	for _, s := range rec.slivers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Aggregate < out[j].Aggregate })
	return out, nil
}

func (m *Memory) Targets(_ context.Context, sliceURN string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slices[sliceURN]
	if !ok {
		return nil, serrors.Join(ErrNotFound, nil, "slice", sliceURN)
	}
	var out []string
	for agg, s := range rec.slivers {
		if s.State != StateDeleted {
			out = append(out, agg)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Orphans(_ context.Context, at time.Time) ([]Sliver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Sliver
	for _, rec := range m.slices {
		if !rec.slice.Expires.Before(at) {
			continue
		}
		for _, s := range rec.slivers {
			if s.State != StateDeleted {
				out = append(out, *s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SliceURN != out[j].SliceURN {
			return out[i].SliceURN < out[j].SliceURN
		}
		return out[i].Aggregate < out[j].Aggregate
	})
	return out, nil
}

func (m *Memory) sliverLocked(sliceURN, agg string) (*Sliver, error) {
	rec, ok := m.slices[sliceURN]
	if !ok {
		return nil, serrors.Join(ErrNotFound, nil, "slice", sliceURN)
	}
	sliver, ok := rec.slivers[agg]
	if !ok {
		return nil, serrors.Join(ErrNotFound, nil,
			"slice", sliceURN, "aggregate", agg)
	}
	return sliver, nil
}
