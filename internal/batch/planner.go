// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package batch slices ordered event lists into submission batches that
// honor the sink provider's limits: a maximum event count per request, a
// maximum request size in bytes (each event carries a fixed per-event
// overhead), and a maximum time span between the first and last event of
// a batch.
//
// The planner is pure: it never touches the store or the network.
package batch

import (
	"errors"
	"fmt"

	"github.com/vardaops/logship/internal/models"
)

// Provider limits for one batch submission.
const (
	// MaxCount is the maximum number of events per batch.
	MaxCount = 10_000

	// MaxBytes is the maximum batch payload size in bytes.
	MaxBytes = 1_048_576

	// PerEventOverhead is the fixed byte overhead the provider charges per
	// event on top of the message body.
	PerEventOverhead = 26

	// MaxSpanMS is the maximum distance in milliseconds between the first
	// and last event timestamp of a batch (22 hours).
	MaxSpanMS = 22 * 3600 * 1000
)

// ErrEventTooLarge reports a single event whose message cannot fit in one
// batch even alone. This is an input-validation failure: the producing
// side wrote an oversized record and the event cannot be shipped.
var ErrEventTooLarge = errors.New("batch: single event exceeds byte limit")

// Plan returns the exclusive end index of the next batch starting at
// start, such that events[start:end] is the largest slice satisfying the
// count, byte and span limits. events must be ordered by ascending
// TimestampMS.
//
// Plan starts from the largest count-satisfying slice, shrinks it on a
// 1000/100/10/1 schedule until the byte and span limits hold, then grows
// it back at finer granularity to the largest fitting size. Both limits
// are monotone in slice size, so the search is exact. The 1-event slice
// trivially satisfies the span limit; if it still violates the byte
// limit, Plan returns ErrEventTooLarge.
func Plan(events []models.LogEvent, start int) (int, error) {
	if start < 0 || start >= len(events) {
		return 0, fmt.Errorf("batch: start index %d out of range [0,%d)", start, len(events))
	}

	max := len(events) - start
	if max > MaxCount {
		max = MaxCount
	}

	size := max
	for !fits(events[start : start+size]) {
		if size == 1 {
			return 0, fmt.Errorf("%w: event at index %d is %d bytes",
				ErrEventTooLarge, start, eventBytes(events[start]))
		}
		switch {
		case size > 1000:
			size -= 1000
		case size > 100:
			size -= 100
		case size > 10:
			size -= 10
		default:
			size--
		}
	}

	// The coarse shrink can overshoot; refine upward to the boundary.
	for _, step := range []int{100, 10, 1} {
		for size+step <= max && fits(events[start:start+size+step]) {
			size += step
		}
	}

	return start + size, nil
}

// fits reports whether the slice satisfies the byte and span limits.
// The count limit is enforced by the caller's initial size.
func fits(events []models.LogEvent) bool {
	var total int64
	for i := range events {
		total += int64(eventBytes(events[i]))
		if total > MaxBytes {
			return false
		}
	}
	span := events[len(events)-1].TimestampMS - events[0].TimestampMS
	return span <= MaxSpanMS
}

// eventBytes is the billed size of one event.
func eventBytes(ev models.LogEvent) int {
	return len(ev.Message) + PerEventOverhead
}
