// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package models provides the data structures shared by the shipping
// subsystem: in-transit log events, the JSON envelope dialect expected by
// the external log sink, the source records drained from the store, and
// the operational-mail domain (targets, message classes, organizations).
//
// All structures here are plain data. Behavior lives in the packages that
// consume them (batch, sink, shipper, mailer, targets).
package models
