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

// RunDataAccess ships structured data-access rows to the "data-access"
// stream. The envelope carries the boot identity from the shared runtime
// cache; when the heartbeat emitter has not seeded it yet the field is
// shipped as null rather than blocking the run.
func (e *Engine) RunDataAccess(ctx context.Context) error {
	log := componentLogger("data_access_shipper")

	var bootTime *string
	if e.boot != nil {
		bt, ok, err := e.boot.BootTime()
		if err != nil {
			return err
		}
		if ok {
			s := bt.Format(models.TimestampLayout)
			bootTime = &s
		}
	}
	if bootTime == nil {
		log.Warn().Msg("Boot time not cached yet, shipping data accesses without it")
	}

	fetch := func(ctx context.Context, from, until time.Time, limit, offset int) ([]record, error) {
		rows, err := e.store.DataAccesses(ctx, from, until, limit, offset)
		if err != nil {
			return nil, err
		}

		records := make([]record, len(rows))
		for i, row := range rows {
			row := row
			records[i] = record{
				at: row.Timestamp,
				marshal: func(seq int64) ([]byte, error) {
					return json.Marshal(models.DataAccessEnvelope{
						Envelope:        models.NewEnvelope(models.EventTypeDataAccess, seq, e.cfg.Hostname, e.cfg.Environment, row.Timestamp),
						BootTime:        bootTime,
						User:            models.OIDRef{OID: row.UserOID},
						Target:          models.OppijaRef{OppijaHenkiloOID: row.HenkiloOID},
						OrganizationOID: row.OrganizationOID,
						Operation:       row.AccessType,
					})
				},
			}
		}
		return records, nil
	}

	return e.runFeed(ctx, log, models.StreamDataAccess, models.FeedDataAccess, fetch)
}
