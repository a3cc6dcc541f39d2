// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// sources.go - Event Source Tables
//
// The shippers read these tables in ascending time order, in chunks, so
// memory stays bounded at O(chunk) regardless of backlog size. Rows are
// written by the API layer and the journal writer; the shipping subsystem
// never mutates them.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vardaops/logship/internal/models"
)

// ReadAccesses returns up to limit read-access rows with
// time_of_event in [from, until), ordered ascending, skipping offset rows.
func (s *Store) ReadAccesses(ctx context.Context, from, until time.Time, limit, offset int) ([]models.ReadAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_of_event, username, path, query_params
		FROM read_access_log
		WHERE time_of_event >= ? AND time_of_event < ?
		ORDER BY time_of_event
		LIMIT ? OFFSET ?`,
		from, until, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query read accesses: %w", err)
	}
	defer rows.Close()

	var out []models.ReadAccess
	for rows.Next() {
		var r models.ReadAccess
		if err := rows.Scan(&r.TimeOfEvent, &r.Username, &r.Path, &r.QueryParams); err != nil {
			return nil, fmt.Errorf("scan read access: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JournalKinds returns the distinct entity kinds present in the change
// journal. The change-history driver enumerates streams from this.
func (s *Store) JournalKinds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT kind FROM change_journal ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query journal kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan journal kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// Changes returns up to limit journal entries for kind with occurred_at
// in [from, until), ordered ascending, skipping offset rows. With
// createDeleteOnly set, update entries are excluded (the henkilo rule).
func (s *Store) Changes(ctx context.Context, kind string, from, until time.Time, createDeleteOnly bool, limit, offset int) ([]models.ChangeEntry, error) {
	query := `
		SELECT kind, entity_id, op, occurred_at, actor
		FROM change_journal
		WHERE kind = ? AND occurred_at >= ? AND occurred_at < ?`
	if createDeleteOnly {
		query += ` AND op IN ('+', '-')`
	}
	query += `
		ORDER BY occurred_at
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, kind, from, until, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query changes for kind %s: %w", kind, err)
	}
	defer rows.Close()

	var out []models.ChangeEntry
	for rows.Next() {
		var c models.ChangeEntry
		var op string
		if err := rows.Scan(&c.Kind, &c.EntityID, &op, &c.OccurredAt, &c.Actor); err != nil {
			return nil, fmt.Errorf("scan change entry: %w", err)
		}
		c.Op = models.ChangeOp(op)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DataAccesses returns up to limit data-access rows with ts in
// (after, until], ordered ascending, skipping offset rows. The low bound
// is strictly greater-than; this feed's watermark is inclusive of what
// has been shipped.
func (s *Store) DataAccesses(ctx context.Context, after, until time.Time, limit, offset int) ([]models.DataAccess, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, user_oid, organization_oid, henkilo_oid, access_type
		FROM data_access_log
		WHERE ts > ? AND ts <= ?
		ORDER BY ts
		LIMIT ? OFFSET ?`,
		after, until, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query data accesses: %w", err)
	}
	defer rows.Close()

	var out []models.DataAccess
	for rows.Next() {
		var d models.DataAccess
		if err := rows.Scan(&d.Timestamp, &d.UserOID, &d.OrganizationOID, &d.HenkiloOID, &d.AccessType); err != nil {
			return nil, fmt.Errorf("scan data access: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertReadAccess appends one read-access row. Production rows come from
// the API layer's request logging; this writer exists for seeding and
// tests.
func (s *Store) InsertReadAccess(ctx context.Context, r models.ReadAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_access_log (time_of_event, username, path, query_params)
		VALUES (?, ?, ?, ?)`,
		r.TimeOfEvent, r.Username, r.Path, r.QueryParams)
	if err != nil {
		return fmt.Errorf("insert read access: %w", err)
	}
	return nil
}

// InsertChange appends one change-journal entry.
func (s *Store) InsertChange(ctx context.Context, c models.ChangeEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_journal (kind, entity_id, op, occurred_at, actor)
		VALUES (?, ?, ?, ?, ?)`,
		c.Kind, c.EntityID, string(c.Op), c.OccurredAt, c.Actor)
	if err != nil {
		return fmt.Errorf("insert change entry: %w", err)
	}
	return nil
}

// InsertDataAccess appends one data-access row.
func (s *Store) InsertDataAccess(ctx context.Context, d models.DataAccess) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_access_log (ts, user_oid, organization_oid, henkilo_oid, access_type)
		VALUES (?, ?, ?, ?, ?)`,
		d.Timestamp, d.UserOID, d.OrganizationOID, d.HenkiloOID, d.AccessType)
	if err != nil {
		return fmt.Errorf("insert data access: %w", err)
	}
	return nil
}

// scanTime is a helper for nullable timestamps.
func scanTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
