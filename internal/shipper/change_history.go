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

// RunChangeHistory ships change-journal entries for every entity kind
// present in the journal, each kind to its own stream behind its own
// watermark. Person entries ("henkilo") ship only creations and
// deletions: attribute updates of persons stay out of the audit trail.
//
// Kinds are processed independently so a permanent failure on one stream
// never starves the others; the first transient failure aborts the run
// because the sink is unlikely to accept the remaining kinds either.
func (e *Engine) RunChangeHistory(ctx context.Context) error {
	log := componentLogger("change_history_shipper")

	kinds, err := e.store.JournalKinds(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, kind := range kinds {
		if !models.KnownEntityKind(kind) {
			log.Warn().Str("kind", kind).Msg("Unknown entity kind in change journal, skipped")
			continue
		}
		err := e.runFeed(ctx, log.With().Str("kind", kind).Logger(),
			models.ChangeStream(kind), models.ChangeFeed(kind), e.changeFetcher(kind))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil || isTransient(err) {
				break
			}
		}
	}
	return firstErr
}

func (e *Engine) changeFetcher(kind string) fetchFunc {
	createDeleteOnly := kind == models.EntityKindHenkilo
	return func(ctx context.Context, from, until time.Time, limit, offset int) ([]record, error) {
		rows, err := e.store.Changes(ctx, kind, from, until, createDeleteOnly, limit, offset)
		if err != nil {
			return nil, err
		}

		records := make([]record, len(rows))
		for i, row := range rows {
			row := row
			records[i] = record{
				at: row.OccurredAt,
				marshal: func(seq int64) ([]byte, error) {
					return json.Marshal(models.AccessEnvelope{
						Envelope:  models.NewEnvelope(models.EventTypeLog, seq, e.cfg.Hostname, e.cfg.Environment, row.OccurredAt),
						Operation: row.Op.Operation(),
						Target:    models.TargetURL(row.Kind, row.EntityID),
						User:      row.Actor,
					})
				},
			}
		}
		return records, nil
	}
}
