// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vardaops/logship/internal/models"
)

func testEvents() []models.LogEvent {
	return []models.LogEvent{
		{TimestampMS: 1000, Message: `{"logSeq":1}`},
		{TimestampMS: 2000, Message: `{"logSeq":2}`},
	}
}

func newTestClient(t *testing.T, endpoint string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(Config{
		Endpoint: endpoint,
		Timeout:  2 * time.Second,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Timeout:          time.Minute,
		},
	})
}

func TestPutEventsAccepted(t *testing.T) {
	var gotPath string
	var gotBody putRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	d, err := c.PutEvents(context.Background(), "get", testEvents())
	if err != nil {
		t.Fatalf("PutEvents: %v", err)
	}
	if d != Accepted {
		t.Fatalf("disposition = %v, want Accepted", d)
	}
	if gotPath != "/get" {
		t.Errorf("path = %q, want /get", gotPath)
	}
	if len(gotBody.Events) != 2 || gotBody.Events[0].TimestampMS != 1000 {
		t.Errorf("body events = %+v", gotBody.Events)
	}
}

func TestPutEventsServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	d, err := c.PutEvents(context.Background(), "get", testEvents())
	if err == nil {
		t.Fatal("expected error")
	}
	if d != Retryable {
		t.Fatalf("disposition = %v, want Retryable", d)
	}
}

func TestPutEventsThrottleIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	d, _ := c.PutEvents(context.Background(), "get", testEvents())
	if d != Retryable {
		t.Fatalf("disposition = %v, want Retryable", d)
	}
}

func TestPutEventsClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	d, err := c.PutEvents(context.Background(), "get", testEvents())
	if err == nil {
		t.Fatal("expected error")
	}
	if d != Fatal {
		t.Fatalf("disposition = %v, want Fatal", d)
	}
}

func TestPutEventsTransportErrorIsRetryable(t *testing.T) {
	// Closed listener: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL)
	d, err := c.PutEvents(context.Background(), "get", testEvents())
	if err == nil {
		t.Fatal("expected error")
	}
	if d != Retryable {
		t.Fatalf("disposition = %v, want Retryable", d)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	// Threshold is 3; the breaker must be open afterwards.
	for i := 0; i < 3; i++ {
		if d, _ := c.PutEvents(ctx, "get", testEvents()); d != Retryable {
			t.Fatalf("call %d: disposition = %v, want Retryable", i, d)
		}
	}
	before := requests.Load()

	d, err := c.PutEvents(ctx, "get", testEvents())
	if d != Retryable || err == nil {
		t.Fatalf("open breaker: disposition = %v, err = %v", d, err)
	}
	if requests.Load() != before {
		t.Fatal("open breaker still reached the server")
	}
}

func TestFakeScript(t *testing.T) {
	f := NewFake(Accepted, Retryable)

	if d, err := f.PutEvents(context.Background(), "get", testEvents()); d != Accepted || err != nil {
		t.Fatalf("first call: %v, %v", d, err)
	}
	if d, err := f.PutEvents(context.Background(), "get", testEvents()); d != Retryable || err == nil {
		t.Fatalf("second call: %v, %v", d, err)
	}
	// Script exhausted: default Accepted.
	if d, _ := f.PutEvents(context.Background(), "get", testEvents()); d != Accepted {
		t.Fatalf("third call: %v", d)
	}

	if got := len(f.AcceptedSubmissions()); got != 2 {
		t.Fatalf("accepted submissions = %d, want 2", got)
	}
}
