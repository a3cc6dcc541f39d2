// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package mailer sends the operational health emails: missing admin
// users, incomplete organization data and stalled data transfers.
//
// Each run recomputes the set of triggered organizations from the store,
// resolves recipients, suppresses sends still inside their class's
// frequency window and appends a message-log row for every accepted
// delivery. A failed delivery leaves no log row, so the next run retries
// it.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vardaops/logship/internal/logging"
	"github.com/vardaops/logship/internal/metrics"
	"github.com/vardaops/logship/internal/models"
)

// Default trigger and frequency windows.
const (
	// NoAdminWindow is both the trigger age and the resend interval for
	// the no-admin flow.
	NoAdminWindow = 30 * 24 * time.Hour

	// NoTransfersMunicipalWindow applies to municipal organizers.
	NoTransfersMunicipalWindow = 30 * 24 * time.Hour

	// NoTransfersPrivateWindow applies to private organizers.
	NoTransfersPrivateWindow = 180 * 24 * time.Hour
)

// Store is the slice of the transactional store the mailer uses.
type Store interface {
	Organizations(ctx context.Context) ([]models.Organization, error)
	Targets(ctx context.Context) ([]models.MessageTarget, error)
	WatermarksForFeed(ctx context.Context, feedKey string) (map[string]time.Time, error)
	ErrorReports(ctx context.Context) ([]models.ErrorReport, error)
	LastMessageTime(ctx context.Context, class models.MessageClass, organization, email string) (time.Time, bool, error)
	AppendMessage(ctx context.Context, entry models.MessageEntry) error
}

// Config holds the mailer settings.
type Config struct {
	// OperatorEmail is the dead-letter address used when an organization
	// has neither targets nor a contact email.
	OperatorEmail string `koanf:"operator_email" validate:"required,email"`
}

// Mailer runs the three health-message flows.
type Mailer struct {
	store  Store
	sender Sender
	cfg    Config

	now func() time.Time
}

// New creates a mailer.
func New(st Store, sender Sender, cfg Config) *Mailer {
	return &Mailer{store: st, sender: sender, cfg: cfg, now: time.Now}
}

// recipient is one resolved (email, locale) destination for an
// organization's messages.
type recipient struct {
	email  string
	locale string
}

// Run executes all three flows. Individual delivery failures are logged
// and joined into the returned error; they never stop the remaining
// recipients or flows.
func (m *Mailer) Run(ctx context.Context) error {
	log := logging.With().Str("component", "mailer").Logger()

	orgs, err := m.store.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("load organizations: %w", err)
	}
	byOID := make(map[string]models.Organization, len(orgs))
	for _, o := range orgs {
		byOID[o.OID] = o
	}

	targets, err := m.store.Targets(ctx)
	if err != nil {
		return fmt.Errorf("load message targets: %w", err)
	}
	byOrg := make(map[string][]recipient)
	for _, t := range targets {
		byOrg[t.OrganizationOID] = append(byOrg[t.OrganizationOID], recipient{email: t.Email, locale: t.Language})
	}
	metrics.MessageTargets.Set(float64(len(targets)))

	var errs []error
	if err := m.runNoAdmin(ctx, log, byOID, byOrg); err != nil {
		errs = append(errs, err)
	}
	if err := m.runIncompleteData(ctx, log, byOID, byOrg); err != nil {
		errs = append(errs, err)
	}
	if err := m.runNoTransfers(ctx, log, byOID, byOrg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runNoAdmin mails organizations whose no-admin watermark has aged past
// the window.
func (m *Mailer) runNoAdmin(ctx context.Context, log zerolog.Logger, orgs map[string]models.Organization, targets map[string][]recipient) error {
	marks, err := m.store.WatermarksForFeed(ctx, models.FeedNoAdmin)
	if err != nil {
		return fmt.Errorf("load no-admin watermarks: %w", err)
	}

	now := m.now()
	var errs []error
	for oid, since := range marks {
		if now.Sub(since) < NoAdminWindow {
			continue
		}
		org, ok := orgs[oid]
		if !ok {
			log.Warn().Str("organization", oid).Msg("No-admin watermark for unknown organization")
			continue
		}
		errs = append(errs, m.deliver(ctx, log, models.MessageClassNoAdmin, org, targets[oid], NoAdminWindow))
	}
	return errors.Join(errs...)
}

// runIncompleteData mails organizations whose error report found at
// least one error. No frequency window: the report is recomputed per run
// and a still-broken organization is mailed again.
func (m *Mailer) runIncompleteData(ctx context.Context, log zerolog.Logger, orgs map[string]models.Organization, targets map[string][]recipient) error {
	reports, err := m.store.ErrorReports(ctx)
	if err != nil {
		return fmt.Errorf("load error reports: %w", err)
	}

	var errs []error
	for _, r := range reports {
		if r.Total() < 1 {
			continue
		}
		org, ok := orgs[r.OrganizationOID]
		if !ok {
			continue
		}
		errs = append(errs, m.deliver(ctx, log, models.MessageClassIncompleteData, org, targets[org.OID], 0))
	}
	return errors.Join(errs...)
}

// runNoTransfers mails organizations whose last successful transfer is
// older than their limit. Young organizations are exempt: an organization
// created inside its own limit cannot have stalled yet.
func (m *Mailer) runNoTransfers(ctx context.Context, log zerolog.Logger, orgs map[string]models.Organization, targets map[string][]recipient) error {
	now := m.now()
	var errs []error
	for _, org := range orgs {
		if !org.TopLevel {
			continue
		}
		limit := NoTransfersPrivateWindow
		if org.Municipal {
			limit = NoTransfersMunicipalWindow
		}
		if now.Sub(org.CreatedAt) < limit {
			continue
		}
		if org.LastTransferAt != nil && now.Sub(*org.LastTransferAt) < limit {
			continue
		}
		errs = append(errs, m.deliver(ctx, log, models.MessageClassNoTransfers, org, targets[org.OID], limit))
	}
	return errors.Join(errs...)
}

// deliver sends one class of message to every resolved recipient of one
// organization, honoring the frequency window. window == 0 disables
// suppression.
func (m *Mailer) deliver(ctx context.Context, log zerolog.Logger, class models.MessageClass, org models.Organization, recipients []recipient, window time.Duration) error {
	var errs []error
	for _, rcpt := range m.resolveRecipients(org, recipients) {
		if window > 0 {
			last, ok, err := m.store.LastMessageTime(ctx, class, org.OID, rcpt.email)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok && m.now().Sub(last) < window {
				metrics.MailSuppressed.WithLabelValues(string(class)).Inc()
				log.Debug().
					Str("class", string(class)).
					Str("organization", org.OID).
					Msg("Message suppressed inside frequency window")
				continue
			}
		}

		subject, text, htmlBody := render(class, rcpt.locale, org.Name)
		err := m.sender.Send(ctx, Message{
			To:       rcpt.email,
			Subject:  subject,
			TextBody: text,
			HTMLBody: htmlBody,
		})
		if err != nil {
			metrics.MailFailed.WithLabelValues(string(class)).Inc()
			log.Error().Err(err).
				Str("class", string(class)).
				Str("organization", org.OID).
				Msg("Message delivery failed")
			errs = append(errs, fmt.Errorf("send %s to organization %s: %w", class, org.OID, err))
			continue
		}

		entry := models.MessageEntry{
			ID:              uuid.NewString(),
			Class:           class,
			OrganizationOID: org.OID,
			Email:           rcpt.email,
			SentAt:          m.now(),
		}
		if err := m.store.AppendMessage(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("append message log for organization %s: %w", org.OID, err))
			continue
		}
		metrics.MailSent.WithLabelValues(string(class)).Inc()
		log.Info().
			Str("class", string(class)).
			Str("organization", org.OID).
			Msg("Message sent")
	}
	return errors.Join(errs...)
}

// resolveRecipients applies the precedence rules: refreshed targets,
// then the organization's contact email, then the operator dead-letter.
func (m *Mailer) resolveRecipients(org models.Organization, fromTargets []recipient) []recipient {
	if len(fromTargets) > 0 {
		return fromTargets
	}
	if org.ContactEmail != "" {
		return []recipient{{email: org.ContactEmail, locale: DefaultLocale}}
	}
	return []recipient{{email: m.cfg.OperatorEmail, locale: DefaultLocale}}
}
