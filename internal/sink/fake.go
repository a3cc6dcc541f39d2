// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/vardaops/logship/internal/models"
)

// Submission records one PutEvents call observed by the fake.
type Submission struct {
	Stream string
	Events []models.LogEvent

	// Disposition is what the fake answered for this call.
	Disposition Disposition
}

// Fake is an in-memory Client for shipper and heartbeat tests. Each call
// consumes the next scripted disposition; when the script is exhausted
// every call is Accepted.
type Fake struct {
	mu     sync.Mutex
	script []Disposition

	// Submissions holds every call in order, including rejected ones.
	Submissions []Submission
}

// NewFake creates a fake sink with the given scripted dispositions.
func NewFake(script ...Disposition) *Fake {
	return &Fake{script: script}
}

// PutEvents implements Client.
func (f *Fake) PutEvents(_ context.Context, stream string, events []models.LogEvent) (Disposition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := Accepted
	if len(f.script) > 0 {
		d = f.script[0]
		f.script = f.script[1:]
	}

	copied := make([]models.LogEvent, len(events))
	copy(copied, events)
	f.Submissions = append(f.Submissions, Submission{Stream: stream, Events: copied, Disposition: d})

	switch d {
	case Accepted:
		return Accepted, nil
	case Retryable:
		return Retryable, errors.New("fake sink: transient failure")
	default:
		return Fatal, errors.New("fake sink: rejected")
	}
}

// AcceptedSubmissions returns the submissions answered with Accepted, in
// order.
func (f *Fake) AcceptedSubmissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Submission
	for _, sub := range f.Submissions {
		if sub.Disposition == Accepted {
			out = append(out, sub)
		}
	}
	return out
}
