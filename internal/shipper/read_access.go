// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package shipper

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/vardaops/logship/internal/models"
)

// RunReadAccess ships pending read-access rows to the "get" stream.
func (e *Engine) RunReadAccess(ctx context.Context) error {
	log := componentLogger("read_access_shipper")
	return e.runFeed(ctx, log, models.StreamGet, models.FeedReadAccess, e.fetchReadAccesses)
}

func (e *Engine) fetchReadAccesses(ctx context.Context, from, until time.Time, limit, offset int) ([]record, error) {
	rows, err := e.store.ReadAccesses(ctx, from, until, limit, offset)
	if err != nil {
		return nil, err
	}

	records := make([]record, len(rows))
	for i, row := range rows {
		row := row
		records[i] = record{
			at: row.TimeOfEvent,
			marshal: func(seq int64) ([]byte, error) {
				return json.Marshal(models.AccessEnvelope{
					Envelope:    models.NewEnvelope(models.EventTypeLog, seq, e.cfg.Hostname, e.cfg.Environment, row.TimeOfEvent),
					Operation:   "GET",
					Target:      row.Path,
					QueryParams: row.QueryParams,
					User:        row.Username,
				})
			},
		}
	}
	return records, nil
}
