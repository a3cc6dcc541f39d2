// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package models provides data structures for the Logship application.
//
// records.go - Source Records Drained by the Shippers
//
// These rows are produced elsewhere (the API layer, the change journal
// writer) and are read-only from the shipping subsystem's point of view.
package models

import (
	"time"
)

// ReadAccess is one read-access row written by the API layer on every GET.
type ReadAccess struct {
	// TimeOfEvent is when the request was served.
	TimeOfEvent time.Time

	// Username is the authenticated caller.
	Username string

	// Path is the request path.
	Path string

	// QueryParams is the raw query string, possibly empty.
	QueryParams string
}

// ChangeOp encodes the kind of mutation recorded in the change journal.
type ChangeOp string

const (
	ChangeOpCreate ChangeOp = "+"
	ChangeOpUpdate ChangeOp = "~"
	ChangeOpDelete ChangeOp = "-"
)

// Operation returns the wire operation code for a journal entry.
func (op ChangeOp) Operation() string {
	switch op {
	case ChangeOpCreate:
		return "CREATE"
	case ChangeOpDelete:
		return "DELETE"
	default:
		return "CHANGE"
	}
}

// ChangeEntry is one row of the append-only change journal. The journal
// replaces per-entity history shadow tables: every auditable entity kind
// writes create/update/delete entries here and the shipper projects them
// onto per-kind streams.
type ChangeEntry struct {
	// Kind is the auditable entity kind, e.g. "henkilo" or "toimipaikka".
	Kind string

	// EntityID is the primary key of the mutated entity.
	EntityID int64

	// Op is the recorded mutation.
	Op ChangeOp

	// OccurredAt is the mutation timestamp.
	OccurredAt time.Time

	// Actor is the username that performed the mutation.
	Actor string
}

// DataAccess is one structured data-access row.
type DataAccess struct {
	// Timestamp is when the access happened.
	Timestamp time.Time

	// UserOID is the OID of the accessing user.
	UserOID string

	// OrganizationOID is the organization context of the access.
	OrganizationOID string

	// HenkiloOID is the OID of the person whose data was accessed.
	HenkiloOID string

	// AccessType is the recorded operation, e.g. "katselu".
	AccessType string
}
