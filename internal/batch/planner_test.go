// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package batch

import (
	"errors"
	"strings"
	"testing"

	"github.com/vardaops/logship/internal/models"
)

// uniformEvents builds n events with the given billed size (message plus
// per-event overhead) spaced stepMS apart starting at startMS.
func uniformEvents(t *testing.T, n, billedBytes int, startMS, stepMS int64) []models.LogEvent {
	t.Helper()
	if billedBytes < PerEventOverhead {
		t.Fatalf("billed size %d below per-event overhead", billedBytes)
	}
	events := make([]models.LogEvent, n)
	msg := strings.Repeat("x", billedBytes-PerEventOverhead)
	for i := range events {
		events[i] = models.LogEvent{
			TimestampMS: startMS + int64(i)*stepMS,
			Message:     msg,
		}
	}
	return events
}

// planAll runs Plan repeatedly and returns the batch sizes.
func planAll(t *testing.T, events []models.LogEvent) []int {
	t.Helper()
	var sizes []int
	for s := 0; s < len(events); {
		e, err := Plan(events, s)
		if err != nil {
			t.Fatalf("Plan(start=%d): %v", s, err)
		}
		if e <= s {
			t.Fatalf("Plan(start=%d) returned non-advancing end %d", s, e)
		}
		sizes = append(sizes, e-s)
		s = e
	}
	return sizes
}

// checkBounds verifies the three provider limits for one batch.
func checkBounds(t *testing.T, events []models.LogEvent, start, end int) {
	t.Helper()
	if end-start > MaxCount {
		t.Errorf("batch [%d,%d) exceeds count limit", start, end)
	}
	var bytes int64
	for _, ev := range events[start:end] {
		bytes += int64(len(ev.Message) + PerEventOverhead)
	}
	if bytes > MaxBytes {
		t.Errorf("batch [%d,%d) is %d bytes, over limit", start, end, bytes)
	}
	if span := events[end-1].TimestampMS - events[start].TimestampMS; span > MaxSpanMS {
		t.Errorf("batch [%d,%d) spans %dms, over limit", start, end, span)
	}
}

func TestPlanCountBoundary(t *testing.T) {
	// 10,001 events of billed size 100, all within one minute.
	events := uniformEvents(t, 10_001, 100, 0, 5)

	sizes := planAll(t, events)
	if len(sizes) != 2 || sizes[0] != 10_000 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [10000 1]", sizes)
	}

	checkBounds(t, events, 0, 10_000)
	checkBounds(t, events, 10_000, 10_001)
}

func TestPlanByteOverflowIsolatesLargeEvent(t *testing.T) {
	events := uniformEvents(t, 5_000, 326, 0, 1)
	big := models.LogEvent{
		TimestampMS: 5_000,
		Message:     strings.Repeat("y", 500_000),
	}
	events = append(events, big)

	var starts, ends []int
	for s := 0; s < len(events); {
		e, err := Plan(events, s)
		if err != nil {
			t.Fatalf("Plan(start=%d): %v", s, err)
		}
		checkBounds(t, events, s, e)
		starts = append(starts, s)
		ends = append(ends, e)
		s = e
	}

	// The large event must end up alone in the final batch.
	last := len(starts) - 1
	if starts[last] != 5_000 || ends[last] != 5_001 {
		t.Fatalf("final batch [%d,%d), want the large event isolated at [5000,5001)", starts[last], ends[last])
	}
}

func TestPlanTimespanCutsAtTwentyTwoHours(t *testing.T) {
	// Events at minute offsets 0..1380 (23 hours). A 22-hour span is
	// inclusive, so the first batch carries offsets 0..1320.
	const minuteMS = 60_000
	events := uniformEvents(t, 1_381, 100, 0, minuteMS)

	end, err := Plan(events, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if end != 1_321 {
		t.Fatalf("end = %d, want 1321 (last offset 1320)", end)
	}
	checkBounds(t, events, 0, end)

	// The next batch starts at offset 1321 and takes the rest.
	end2, err := Plan(events, end)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if end2 != len(events) {
		t.Fatalf("second end = %d, want %d", end2, len(events))
	}
}

func TestPlanSingleOversizedEventIsFatal(t *testing.T) {
	events := []models.LogEvent{{
		TimestampMS: 0,
		Message:     strings.Repeat("z", MaxBytes),
	}}

	_, err := Plan(events, 0)
	if !errors.Is(err, ErrEventTooLarge) {
		t.Fatalf("err = %v, want ErrEventTooLarge", err)
	}
}

func TestPlanSingleEventJustFits(t *testing.T) {
	events := []models.LogEvent{{
		TimestampMS: 0,
		Message:     strings.Repeat("z", MaxBytes-PerEventOverhead),
	}}

	end, err := Plan(events, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if end != 1 {
		t.Fatalf("end = %d, want 1", end)
	}
}

func TestPlanStartOutOfRange(t *testing.T) {
	events := uniformEvents(t, 3, 100, 0, 1)
	for _, start := range []int{-1, 3, 7} {
		if _, err := Plan(events, start); err == nil {
			t.Errorf("Plan(start=%d): expected error", start)
		}
	}
}

func TestPlanMaximality(t *testing.T) {
	// The planner must return the largest fitting slice, not merely a
	// fitting one: growing any returned batch by one event must violate
	// a limit (or run past the input).
	events := uniformEvents(t, 9_000, 326, 0, 1)

	for s := 0; s < len(events); {
		e, err := Plan(events, s)
		if err != nil {
			t.Fatalf("Plan(start=%d): %v", s, err)
		}
		checkBounds(t, events, s, e)

		if e < len(events) && e-s < MaxCount {
			var bytes int64
			for _, ev := range events[s : e+1] {
				bytes += int64(len(ev.Message) + PerEventOverhead)
			}
			span := events[e].TimestampMS - events[s].TimestampMS
			if bytes <= MaxBytes && span <= MaxSpanMS {
				t.Fatalf("batch [%d,%d) is not maximal", s, e)
			}
		}
		s = e
	}
}
