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

// Package registrydb is the durable sqlite backend of the slice registry.
package registrydb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fedra-project/fedra/pkg/private/serrors"
	"github.com/fedra-project/fedra/private/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS slices (
	urn TEXT PRIMARY KEY,
	credential BLOB,
	expires INTEGER NOT NULL,
	created INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS slivers (
	slice_urn TEXT NOT NULL REFERENCES slices (urn),
	aggregate TEXT NOT NULL,
	state TEXT NOT NULL,
	expires INTEGER NOT NULL,
	manifest BLOB,
	created INTEGER NOT NULL,
	updated INTEGER NOT NULL,
	PRIMARY KEY (slice_urn, aggregate)
);
`

// Backend implements registry.Registry on sqlite.
type Backend struct {
	db *sql.DB
}

// New opens or creates the registry database at path.
func New(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, serrors.Wrap("opening registry database", err, "path", path)
	}
	// The sqlite driver does not tolerate concurrent writers on one
	// connection pool; a single connection serializes all access.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, serrors.Wrap("configuring registry database", err,
				"pragma", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, serrors.Wrap("creating registry schema", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) AddSlice(ctx context.Context, slice registry.Slice) error {
	if slice.Created.IsZero() {
		slice.Created = time.Now()
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO slices (urn, credential, expires, created) VALUES (?, ?, ?, ?)
		ON CONFLICT (urn) DO UPDATE SET
			expires = excluded.expires,
			credential = coalesce(excluded.credential, credential)`,
		slice.URN, slice.Credential, slice.Expires.Unix(), slice.Created.Unix(),
	)
	if err != nil {
		return serrors.Wrap("inserting slice", err, "slice", slice.URN)
	}
	return nil
}

func (b *Backend) Slice(ctx context.Context, urn string) (registry.Slice, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT urn, credential, expires, created FROM slices WHERE urn = ?`, urn)
	return scanSlice(row, urn)
}

func (b *Backend) Slices(ctx context.Context) ([]registry.Slice, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT urn, credential, expires, created FROM slices ORDER BY urn`)
	if err != nil {
		return nil, serrors.Wrap("listing slices", err)
	}
	defer rows.Close()
	var out []registry.Slice
	for rows.Next() {
		slice, err := scanSlice(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, slice)
	}
	return out, rows.Err()
}

func (b *Backend) RecordSliver(ctx context.Context, sliver registry.Sliver) error {
	return b.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM slices WHERE urn = ?`, sliver.SliceURN).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return serrors.Join(registry.ErrNotFound, nil, "slice", sliver.SliceURN)
		}
		if err != nil {
			return serrors.Wrap("checking slice", err)
		}
		var state string
		err = tx.QueryRowContext(ctx,
			`SELECT state FROM slivers WHERE slice_urn = ? AND aggregate = ?`,
			sliver.SliceURN, sliver.Aggregate).Scan(&state)
		switch {
		case err == nil && registry.SliverState(state) != registry.StateDeleted:
			return serrors.Join(registry.ErrAlreadyExists, nil,
				"slice", sliver.SliceURN, "aggregate", sliver.Aggregate)
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return serrors.Wrap("checking sliver", err)
		}
		now := time.Now().Unix()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slivers
				(slice_urn, aggregate, state, expires, manifest, created, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (slice_urn, aggregate) DO UPDATE SET
				state = excluded.state, expires = excluded.expires,
				manifest = excluded.manifest, created = excluded.created,
				updated = excluded.updated`,
			sliver.SliceURN, sliver.Aggregate, string(registry.StateRequested),
			sliver.Expires.Unix(), sliver.Manifest, now, now,
		)
		if err != nil {
			return serrors.Wrap("inserting sliver", err)
		}
		return nil
	})
}

func (b *Backend) MarkAllocated(
	ctx context.Context,
	sliceURN, agg string,
	expires time.Time,
	manifest []byte,
) error {

	return b.updateSliver(ctx, sliceURN, agg, func(state registry.SliverState) error {
		if state == registry.StateDeleted {
			return serrors.Join(registry.ErrDeleted, nil,
				"slice", sliceURN, "aggregate", agg)
		}
		return nil
	}, `UPDATE slivers SET state = ?, expires = ?, manifest = ?, updated = ?
		WHERE slice_urn = ? AND aggregate = ?`,
		string(registry.StateAllocated), expires.Unix(), manifest,
		time.Now().Unix(), sliceURN, agg,
	)
}

func (b *Backend) RenewSliver(ctx context.Context, sliceURN, agg string, expires time.Time) error {
	return b.updateSliver(ctx, sliceURN, agg, func(state registry.SliverState) error {
		switch state {
		case registry.StateDeleted:
			return serrors.Join(registry.ErrDeleted, nil,
				"slice", sliceURN, "aggregate", agg)
		case registry.StateAllocated:
			return nil
		default:
			return serrors.New("sliver not allocated",
				"slice", sliceURN, "aggregate", agg, "state", string(state))
		}
	}, `UPDATE slivers SET expires = ?, updated = ?
		WHERE slice_urn = ? AND aggregate = ?`,
		expires.Unix(), time.Now().Unix(), sliceURN, agg,
	)
}

func (b *Backend) DeleteSliver(ctx context.Context, sliceURN, agg string) error {
	return b.updateSliver(ctx, sliceURN, agg, func(state registry.SliverState) error {
		if state == registry.StateDeleted {
			return serrors.Join(registry.ErrAlreadyDeleted, nil,
				"slice", sliceURN, "aggregate", agg)
		}
		return nil
	}, `UPDATE slivers SET state = ?, updated = ?
		WHERE slice_urn = ? AND aggregate = ?`,
		string(registry.StateDeleted), time.Now().Unix(), sliceURN, agg,
	)
}

func (b *Backend) Sliver(ctx context.Context, sliceURN, agg string) (registry.Sliver, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT slice_urn, aggregate, state, expires, manifest, created, updated
		FROM slivers WHERE slice_urn = ? AND aggregate = ?`, sliceURN, agg)
	sliver, err := scanSliver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Sliver{}, serrors.Join(registry.ErrNotFound, nil,
			"slice", sliceURN, "aggregate", agg)
	}
	return sliver, err
}

func (b *Backend) Slivers(ctx context.Context, sliceURN string) ([]registry.Sliver, error) {
	var exists int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM slices WHERE urn = ?`, sliceURN).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.Join(registry.ErrNotFound, nil, "slice", sliceURN)
	}
	if err != nil {
		return nil, serrors.Wrap("checking slice", err)
	}
	return b.querySlivers(ctx, `
		SELECT slice_urn, aggregate, state, expires, manifest, created, updated
		FROM slivers WHERE slice_urn = ? ORDER BY aggregate`, sliceURN)
}

func (b *Backend) Targets(ctx context.Context, sliceURN string) ([]string, error) {
	var exists int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM slices WHERE urn = ?`, sliceURN).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.Join(registry.ErrNotFound, nil, "slice", sliceURN)
	}
	if err != nil {
		return nil, serrors.Wrap("checking slice", err)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT aggregate FROM slivers
		WHERE slice_urn = ? AND state != ? ORDER BY aggregate`,
		sliceURN, string(registry.StateDeleted))
	if err != nil {
		return nil, serrors.Wrap("querying targets", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var agg string
		if err := rows.Scan(&agg); err != nil {
			return nil, serrors.Wrap("scanning target", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

func (b *Backend) Orphans(ctx context.Context, at time.Time) ([]registry.Sliver, error) {
	return b.querySlivers(ctx, `
		SELECT s.slice_urn, s.aggregate, s.state, s.expires, s.manifest,
			s.created, s.updated
		FROM slivers s JOIN slices sl ON s.slice_urn = sl.urn
		WHERE sl.expires < ? AND s.state != ?
		ORDER BY s.slice_urn, s.aggregate`,
		at.Unix(), string(registry.StateDeleted))
}

func (b *Backend) updateSliver(
	ctx context.Context,
	sliceURN, agg string,
	check func(registry.SliverState) error,
	query string,
	args ...interface{},
) error {

	return b.inTx(ctx, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM slivers WHERE slice_urn = ? AND aggregate = ?`,
			sliceURN, agg).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return serrors.Join(registry.ErrNotFound, nil,
				"slice", sliceURN, "aggregate", agg)
		}
		if err != nil {
			return serrors.Wrap("checking sliver", err)
		}
		if err := check(registry.SliverState(state)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return serrors.Wrap("updating sliver", err)
		}
		return nil
	})
}

func (b *Backend) inTx(ctx context.Context, op func(*sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.Wrap("starting transaction", err)
	}
	if err := op(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return serrors.Join(err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return serrors.Wrap("committing transaction", err)
	}
	return nil
}

func (b *Backend) querySlivers(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]registry.Sliver, error) {

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serrors.Wrap("querying slivers", err)
	}
	defer rows.Close()
	var out []registry.Sliver
	for rows.Next() {
		sliver, err := scanSliver(rows)
		if err != nil {
			return nil, serrors.Wrap("scanning sliver", err)
		}
		out = append(out, sliver)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSlice(row scanner, urn string) (registry.Slice, error) {
	var gotURN string
	var credential []byte
	var expires, created int64
	err := row.Scan(&gotURN, &credential, &expires, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Slice{}, serrors.Join(registry.ErrNotFound, nil, "slice", urn)
	}
	if err != nil {
		return registry.Slice{}, serrors.Wrap("scanning slice", err)
	}
	return registry.Slice{
		URN:        gotURN,
		Credential: credential,
		Expires:    time.Unix(expires, 0),
		Created:    time.Unix(created, 0),
	}, nil
}

func scanSliver(row scanner) (registry.Sliver, error) {
	var sliceURN, agg, state string
	var expires, created, updated int64
	var manifest []byte
	err := row.Scan(&sliceURN, &agg, &state, &expires, &manifest, &created, &updated)
	if err != nil {
		return registry.Sliver{}, err
	}
	return registry.Sliver{
		SliceURN:  sliceURN,
		Aggregate: agg,
		State:     registry.SliverState(state),
		Expires:   time.Unix(expires, 0),
		Manifest:  manifest,
		Created:   time.Unix(created, 0),
		Updated:   time.Unix(updated, 0),
	}, nil
}
