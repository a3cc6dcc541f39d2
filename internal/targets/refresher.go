// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package targets recomputes the message-target registry from the
// external identity service.
//
// The refresher is idempotent and fail-closed: it resolves the complete
// new target set first and applies it in one store transaction. An
// identity service failure aborts the run before anything is wiped, so a
// degraded upstream never erases working targets or raises false
// no-admin marks.
package targets

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/models"
)

// Store is the slice of the transactional store the refresher uses.
type Store interface {
	Organizations(ctx context.Context) ([]models.Organization, error)

	// ApplyTargetRefresh replaces all targets in one transaction, clears
	// no-admin marks for organizations that gained a target and marks
	// top-level organizations that ended up without one.
	ApplyTargetRefresh(ctx context.Context, targets []models.MessageTarget, now time.Time) error
}

// Refresher recomputes message targets.
type Refresher struct {
	store    Store
	identity IdentityClient

	now func() time.Time
}

// New creates a targets refresher.
func New(st Store, identity IdentityClient) *Refresher {
	return &Refresher{store: st, identity: identity, now: time.Now}
}

// Run recomputes the target set and applies it.
func (r *Refresher) Run(ctx context.Context) error {
	log := logging.With().Str("component", "targets_refresher").Logger()

	admins, err := r.identity.AdminUsers(ctx)
	if err != nil {
		return fmt.Errorf("list admin users: %w", err)
	}

	orgs, err := r.store.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("load organizations: %w", err)
	}
	topLevel := make(map[string]bool, len(orgs))
	for _, o := range orgs {
		if o.TopLevel {
			topLevel[o.OID] = true
		}
	}

	// (user, organization) pairs restricted to recognized top-level
	// organizations.
	type pair struct{ userOID, orgOID string }
	var pairs []pair
	oidSet := make(map[string]bool)
	for _, admin := range admins {
		for _, orgOID := range admin.OrganizationOIDs {
			if !topLevel[orgOID] {
				continue
			}
			pairs = append(pairs, pair{userOID: admin.OID, orgOID: orgOID})
			oidSet[admin.OID] = true
		}
	}

	oids := make([]string, 0, len(oidSet))
	for oid := range oidSet {
		oids = append(oids, oid)
	}
	sort.Strings(oids)

	contacts, err := r.identity.Contacts(ctx, oids)
	if err != nil {
		return fmt.Errorf("resolve admin contacts: %w", err)
	}

	// An admin without a usable work email cannot receive mail; the
	// organization is treated as uncovered.
	seen := make(map[string]bool)
	var targets []models.MessageTarget
	for _, p := range pairs {
		contact, ok := contacts[p.userOID]
		if !ok {
			log.Warn().
				Str("user", p.userOID).
				Str("organization", p.orgOID).
				Msg("Admin user has no work email")
			continue
		}
		key := p.orgOID + "|" + contact.Email
		if seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, models.MessageTarget{
			OrganizationOID: p.orgOID,
			Email:           contact.Email,
			Language:        contact.Language,
			UserType:        AdminRole,
		})
	}

	if err := r.store.ApplyTargetRefresh(ctx, targets, r.now()); err != nil {
		return fmt.Errorf("apply target refresh: %w", err)
	}

	log.Info().
		Int("admins", len(admins)).
		Int("targets", len(targets)).
		Msg("Message targets refreshed")
	return nil
}
