// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// bookkeeping.go - Per-Stream Sequence State and Per-Feed Watermarks
//
// A stream's log_seq is the last sequence number the sink has durably
// accepted; the next event on that stream carries log_seq+1. A feed's
// watermark is a timestamp such that everything older has been shipped.
// Both advance only after the sink accepts a batch, and they advance
// together in one transaction so a crash between them cannot be observed.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogSeq returns the last accepted sequence number for stream, 0 when the
// stream has never shipped.
func (s *Store) LogSeq(ctx context.Context, stream string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT log_seq FROM log_state WHERE stream = ?`, stream).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read log_seq for stream %s: %w", stream, err)
	}
	return seq, nil
}

// Watermark returns the watermark for (feedKey, organization). The
// organization is empty for the shipping feeds; the no-admin feed keys
// one row per organization. ok is false when no watermark exists.
func (s *Store) Watermark(ctx context.Context, feedKey, organization string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT ts FROM watermarks WHERE feed_key = ? AND organization = ?`,
		feedKey, organization).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s/%s: %w", feedKey, organization, err)
	}
	return ts, true, nil
}

// CommitBatch records a successfully submitted batch: the stream's
// log_seq becomes lastSeq and the feed's watermark becomes the last
// event's source timestamp. Both writes share one transaction and become
// visible atomically, so a provider failure at batch k leaves state
// consistent with "everything up to batch k-1 has been shipped".
//
// CommitBatch never moves a watermark backwards.
func (s *Store) CommitBatch(ctx context.Context, stream, feedKey string, lastSeq int64, lastEventTime time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit for stream %s: %w", stream, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO log_state (stream, log_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (stream) DO UPDATE SET
			log_seq = EXCLUDED.log_seq,
			updated_at = EXCLUDED.updated_at`,
		stream, lastSeq, now); err != nil {
		return fmt.Errorf("store log_seq for stream %s: %w", stream, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watermarks (feed_key, organization, ts, updated_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT (feed_key, organization) DO UPDATE SET
			ts = GREATEST(watermarks.ts, EXCLUDED.ts),
			updated_at = EXCLUDED.updated_at`,
		feedKey, lastEventTime, now); err != nil {
		return fmt.Errorf("store watermark for feed %s: %w", feedKey, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch for stream %s: %w", stream, err)
	}
	return nil
}

// SetWatermark overwrites a watermark unconditionally. Shippers use it to
// close out a clean run at datetime_end; operators use it to move a feed
// backwards for an administrative re-run.
func (s *Store) SetWatermark(ctx context.Context, feedKey, organization string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (feed_key, organization, ts, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (feed_key, organization) DO UPDATE SET
			ts = EXCLUDED.ts,
			updated_at = EXCLUDED.updated_at`,
		feedKey, organization, ts, time.Now())
	if err != nil {
		return fmt.Errorf("set watermark %s/%s: %w", feedKey, organization, err)
	}
	return nil
}

// ClearWatermark deletes a watermark row. Used when an organization
// regains an admin and its no-admin mark must be dropped.
func (s *Store) ClearWatermark(ctx context.Context, feedKey, organization string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watermarks WHERE feed_key = ? AND organization = ?`,
		feedKey, organization)
	if err != nil {
		return fmt.Errorf("clear watermark %s/%s: %w", feedKey, organization, err)
	}
	return nil
}

// WatermarksForFeed returns every (organization, timestamp) pair recorded
// under feedKey. The health mailer reads the no-admin feed this way.
func (s *Store) WatermarksForFeed(ctx context.Context, feedKey string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT organization, ts FROM watermarks WHERE feed_key = ?`, feedKey)
	if err != nil {
		return nil, fmt.Errorf("list watermarks for feed %s: %w", feedKey, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var org string
		var ts time.Time
		if err := rows.Scan(&org, &ts); err != nil {
			return nil, fmt.Errorf("scan watermark row: %w", err)
		}
		out[org] = ts
	}
	return out, rows.Err()
}
