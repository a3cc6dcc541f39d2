// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package models provides data structures for the Logship application.
//
// mail.go - Operational Mail Domain
//
// Message targets are recomputed by the targets refresher and consulted by
// the health mailer. The message log is append-only and enforces the
// per-class frequency limits.
package models

import (
	"time"
)

// MessageClass identifies one operational email flow.
type MessageClass string

const (
	// MessageClassNoAdmin: the organization has had no admin-role user for
	// at least the no-admin window.
	MessageClassNoAdmin MessageClass = "no-admin"

	// MessageClassIncompleteData: the organization's error report found at
	// least one error across the tracked categories.
	MessageClassIncompleteData MessageClass = "incomplete-data"

	// MessageClassNoTransfers: the organization's last successful transfer
	// is older than its age limit.
	MessageClassNoTransfers MessageClass = "no-transfers"
)

// MessageTarget is one (organization, email) recipient of operational mail.
// No two targets share the same organization and email.
type MessageTarget struct {
	OrganizationOID string

	Email string

	// Language is the recipient's preferred locale code, e.g. "fi" or "sv".
	Language string

	// UserType records the role that made this address a target.
	UserType string
}

// MessageEntry is one append-only message-log row.
type MessageEntry struct {
	ID              string
	Class           MessageClass
	OrganizationOID string
	Email           string
	SentAt          time.Time
}

// Organization is one row of the organization registry consulted by the
// mailer triggers.
type Organization struct {
	OID  string
	Name string

	// ContactEmail is the organization's own contact address, used when no
	// refreshed target exists.
	ContactEmail string

	// Municipal distinguishes municipal organizers from private ones; the
	// no-transfers limit differs between the two.
	Municipal bool

	// TopLevel marks recognized top-level organizations; only these get
	// message targets and NO_PAAKAYTTAJA watermarks.
	TopLevel bool

	CreatedAt time.Time

	// LastTransferAt is the time of the last successful data transfer,
	// nil when the organization has never transferred.
	LastTransferAt *time.Time
}

// ErrorReport is the per-organization error summary behind the
// incomplete-data flow.
type ErrorReport struct {
	OrganizationOID string

	// Per-category error counts.
	PaymentErrors   int
	RelationErrors  int
	IntegrityErrors int
}

// Total returns the error count across all categories.
func (r ErrorReport) Total() int {
	return r.PaymentErrors + r.RelationErrors + r.IntegrityErrors
}
