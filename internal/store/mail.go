// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// mail.go - Organization Registry, Message Targets and Message Log
//
// Targets are wiped and rebuilt wholesale by the refresher; the message
// log is append-only. Neither table is ever updated in place.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vardaops/logship/internal/models"
)

// Organizations returns the full organization registry.
func (s *Store) Organizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oid, name, contact_email, municipal, top_level, created_at, last_transfer_at
		FROM organizations
		ORDER BY oid`)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		var o models.Organization
		var lastTransfer sql.NullTime
		if err := rows.Scan(&o.OID, &o.Name, &o.ContactEmail, &o.Municipal,
			&o.TopLevel, &o.CreatedAt, &lastTransfer); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		o.LastTransferAt = scanTime(lastTransfer)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertOrganization inserts or replaces one registry row.
func (s *Store) UpsertOrganization(ctx context.Context, o models.Organization) error {
	var lastTransfer interface{}
	if o.LastTransferAt != nil {
		lastTransfer = *o.LastTransferAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (oid, name, contact_email, municipal, top_level, created_at, last_transfer_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (oid) DO UPDATE SET
			name = EXCLUDED.name,
			contact_email = EXCLUDED.contact_email,
			municipal = EXCLUDED.municipal,
			top_level = EXCLUDED.top_level,
			created_at = EXCLUDED.created_at,
			last_transfer_at = EXCLUDED.last_transfer_at`,
		o.OID, o.Name, o.ContactEmail, o.Municipal, o.TopLevel, o.CreatedAt, lastTransfer)
	if err != nil {
		return fmt.Errorf("upsert organization %s: %w", o.OID, err)
	}
	return nil
}

// Targets returns every message target.
func (s *Store) Targets(ctx context.Context) ([]models.MessageTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_oid, email, language, user_type
		FROM message_targets
		ORDER BY organization_oid, email`)
	if err != nil {
		return nil, fmt.Errorf("query message targets: %w", err)
	}
	defer rows.Close()

	var out []models.MessageTarget
	for rows.Next() {
		var t models.MessageTarget
		if err := rows.Scan(&t.OrganizationOID, &t.Email, &t.Language, &t.UserType); err != nil {
			return nil, fmt.Errorf("scan message target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApplyTargetRefresh replaces the target set in one transaction:
//
//  1. wipe all current targets,
//  2. insert the recomputed ones,
//  3. clear the no-admin watermark of every organization that has a
//     target again,
//  4. create (if absent) a no-admin watermark at now for every top-level
//     organization left without a target.
//
// Running the same refresh twice produces the same state.
func (s *Store) ApplyTargetRefresh(ctx context.Context, targets []models.MessageTarget, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin target refresh: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_targets`); err != nil {
		return fmt.Errorf("wipe message targets: %w", err)
	}

	covered := make(map[string]bool)
	for _, t := range targets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_targets (organization_oid, email, language, user_type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (organization_oid, email) DO UPDATE SET
				language = EXCLUDED.language,
				user_type = EXCLUDED.user_type`,
			t.OrganizationOID, t.Email, t.Language, t.UserType); err != nil {
			return fmt.Errorf("insert target %s/%s: %w", t.OrganizationOID, t.Email, err)
		}
		covered[t.OrganizationOID] = true
	}

	for org := range covered {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM watermarks WHERE feed_key = ? AND organization = ?`,
			models.FeedNoAdmin, org); err != nil {
			return fmt.Errorf("clear no-admin mark for %s: %w", org, err)
		}
	}

	// Top-level organizations without a target get a no-admin mark; an
	// existing (older) mark is left in place so the 30-day clock keeps
	// running.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watermarks (feed_key, organization, ts, updated_at)
		SELECT ?, o.oid, ?, ?
		FROM organizations o
		WHERE o.top_level
		  AND o.oid NOT IN (SELECT organization_oid FROM message_targets)
		  AND NOT EXISTS (
			SELECT 1 FROM watermarks w
			WHERE w.feed_key = ? AND w.organization = o.oid
		  )`,
		models.FeedNoAdmin, now, now, models.FeedNoAdmin); err != nil {
		return fmt.Errorf("mark organizations without admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit target refresh: %w", err)
	}
	return nil
}

// LastMessageTime returns when (class, organization, email) last received
// mail. ok is false when no row exists.
func (s *Store) LastMessageTime(ctx context.Context, class models.MessageClass, organization, email string) (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM message_log
		WHERE class = ? AND organization_oid = ? AND email = ?`,
		string(class), organization, email).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read message log for %s/%s/%s: %w", class, organization, email, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

// AppendMessage records one sent email. Append-only.
func (s *Store) AppendMessage(ctx context.Context, entry models.MessageEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_log (id, class, organization_oid, email, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Class), entry.OrganizationOID, entry.Email, entry.SentAt)
	if err != nil {
		return fmt.Errorf("append message log: %w", err)
	}
	return nil
}

// ErrorReports returns the per-organization error summaries behind the
// incomplete-data flow. Counts are maintained by the reporting side of
// the backend; the mailer only reads them.
func (s *Store) ErrorReports(ctx context.Context) ([]models.ErrorReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_oid, payment_errors, relation_errors, integrity_errors
		FROM org_error_counts`)
	if err != nil {
		return nil, fmt.Errorf("query error reports: %w", err)
	}
	defer rows.Close()

	var out []models.ErrorReport
	for rows.Next() {
		var r models.ErrorReport
		if err := rows.Scan(&r.OrganizationOID, &r.PaymentErrors, &r.RelationErrors, &r.IntegrityErrors); err != nil {
			return nil, fmt.Errorf("scan error report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetErrorCounts replaces one organization's error summary. The reporting
// pipeline calls this; tests use it to stage trigger conditions.
func (s *Store) SetErrorCounts(ctx context.Context, r models.ErrorReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_error_counts (organization_oid, payment_errors, relation_errors, integrity_errors)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (organization_oid) DO UPDATE SET
			payment_errors = EXCLUDED.payment_errors,
			relation_errors = EXCLUDED.relation_errors,
			integrity_errors = EXCLUDED.integrity_errors`,
		r.OrganizationOID, r.PaymentErrors, r.RelationErrors, r.IntegrityErrors)
	if err != nil {
		return fmt.Errorf("set error counts for %s: %w", r.OrganizationOID, err)
	}
	return nil
}
