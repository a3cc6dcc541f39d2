// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package models provides data structures for the Logship application.
//
// event.go - In-Transit Events and Sink Envelopes
//
// A LogEvent is the unit handed to the sink: a source timestamp in
// milliseconds and an opaque UTF-8 message. The message is always one of
// the envelope shapes below, serialized as JSON. Envelopes share a common
// header (version, logSeq, host identity) and diverge per event type.
package models

import (
	"time"
)

// EnvelopeVersion is the wire format version stamped on every envelope.
const EnvelopeVersion = 1

// ServiceName identifies the producing service in every envelope.
const ServiceName = "varda"

// ApplicationType identifies the producing tier in every envelope.
const ApplicationType = "backend"

// TimestampLayout is the ISO-8601 layout used for envelope timestamps.
const TimestampLayout = time.RFC3339

// EventType discriminates envelope shapes on the wire.
type EventType string

const (
	// EventTypeLog is a read-access or change-history event.
	EventTypeLog EventType = "log"

	// EventTypeDataAccess is a structured data-access event.
	EventTypeDataAccess EventType = "dataAccess"

	// EventTypeAlive is a liveness heartbeat event.
	EventTypeAlive EventType = "alive"
)

// LogEvent is one event in transit to the sink.
type LogEvent struct {
	// TimestampMS is the source timestamp in milliseconds since the Unix epoch.
	TimestampMS int64 `json:"timestamp"`

	// Message is the serialized JSON envelope.
	Message string `json:"message"`
}

// Envelope is the header common to every event shipped to the sink.
type Envelope struct {
	Version         int       `json:"version"`
	LogSeq          int64     `json:"logSeq"`
	Type            EventType `json:"type"`
	Hostname        string    `json:"hostname"`
	Timestamp       string    `json:"timestamp"`
	Environment     string    `json:"environment"`
	ServiceName     string    `json:"serviceName"`
	ApplicationType string    `json:"applicationType"`
}

// AccessEnvelope is the envelope for type "log": read accesses and
// change-history events.
type AccessEnvelope struct {
	Envelope

	// Operation is GET for read accesses, CREATE/CHANGE/DELETE for history.
	Operation string `json:"operation"`

	// Target is the request path or the derived entity URL.
	Target string `json:"target"`

	// QueryParams carries the raw query string for read accesses.
	QueryParams string `json:"query_params"`

	// User is the acting username.
	User string `json:"user"`
}

// OIDRef wraps a bare user OID for the dataAccess envelope.
type OIDRef struct {
	OID string `json:"oid"`
}

// OppijaRef wraps the subject person OID for the dataAccess envelope.
type OppijaRef struct {
	OppijaHenkiloOID string `json:"oppijaHenkiloOid"`
}

// DataAccessEnvelope is the envelope for type "dataAccess".
type DataAccessEnvelope struct {
	Envelope

	// BootTime is the boot identity from the shared cache; nil when the
	// cache has not been initialized by the heartbeat emitter yet.
	BootTime *string `json:"bootTime"`

	User            OIDRef    `json:"user"`
	Target          OppijaRef `json:"target"`
	OrganizationOID string    `json:"organizationOid"`
	Operation       string    `json:"operation"`
}

// AliveEnvelope is the envelope for type "alive".
type AliveEnvelope struct {
	Envelope

	BootTime *string `json:"bootTime"`

	// Message is "started" for the first heartbeat after boot, "alive" after.
	Message string `json:"message"`
}

// Heartbeat message values.
const (
	AliveMessageStarted = "started"
	AliveMessageAlive   = "alive"
)

// NewEnvelope builds the common header for one event.
func NewEnvelope(typ EventType, logSeq int64, hostname, environment string, at time.Time) Envelope {
	return Envelope{
		Version:         EnvelopeVersion,
		LogSeq:          logSeq,
		Type:            typ,
		Hostname:        hostname,
		Timestamp:       at.Format(TimestampLayout),
		Environment:     environment,
		ServiceName:     ServiceName,
		ApplicationType: ApplicationType,
	}
}

// ToMillis converts a timestamp to milliseconds since the Unix epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
