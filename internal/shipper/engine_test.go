// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package shipper

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vardaops/logship/internal/models"
	"github.com/vardaops/logship/internal/sink"
)

// fakeStore is an in-memory Store with the same interval semantics as
// the real one: read accesses and changes use [from, until), data
// accesses use (after, until].
type fakeStore struct {
	mu sync.Mutex

	logSeqs    map[string]int64
	watermarks map[string]time.Time

	readAccesses []models.ReadAccess
	changes      []models.ChangeEntry
	dataAccesses []models.DataAccess
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logSeqs:    make(map[string]int64),
		watermarks: make(map[string]time.Time),
	}
}

func wmKey(feedKey, organization string) string { return feedKey + "|" + organization }

func (s *fakeStore) LogSeq(_ context.Context, stream string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logSeqs[stream], nil
}

func (s *fakeStore) Watermark(_ context.Context, feedKey, organization string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.watermarks[wmKey(feedKey, organization)]
	return ts, ok, nil
}

func (s *fakeStore) CommitBatch(_ context.Context, stream, feedKey string, lastSeq int64, lastEventTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSeqs[stream] = lastSeq
	key := wmKey(feedKey, "")
	if lastEventTime.After(s.watermarks[key]) {
		s.watermarks[key] = lastEventTime
	}
	return nil
}

func (s *fakeStore) SetWatermark(_ context.Context, feedKey, organization string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[wmKey(feedKey, organization)] = ts
	return nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func (s *fakeStore) ReadAccesses(_ context.Context, from, until time.Time, limit, offset int) ([]models.ReadAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.ReadAccess
	for _, r := range s.readAccesses {
		if !r.TimeOfEvent.Before(from) && r.TimeOfEvent.Before(until) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TimeOfEvent.Before(rows[j].TimeOfEvent) })
	return page(rows, limit, offset), nil
}

func (s *fakeStore) JournalKinds(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	for _, c := range s.changes {
		seen[c.Kind] = true
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, nil
}

func (s *fakeStore) Changes(_ context.Context, kind string, from, until time.Time, createDeleteOnly bool, limit, offset int) ([]models.ChangeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.ChangeEntry
	for _, c := range s.changes {
		if c.Kind != kind {
			continue
		}
		if createDeleteOnly && c.Op == models.ChangeOpUpdate {
			continue
		}
		if !c.OccurredAt.Before(from) && c.OccurredAt.Before(until) {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OccurredAt.Before(rows[j].OccurredAt) })
	return page(rows, limit, offset), nil
}

func (s *fakeStore) DataAccesses(_ context.Context, after, until time.Time, limit, offset int) ([]models.DataAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.DataAccess
	for _, d := range s.dataAccesses {
		if d.Timestamp.After(after) && !d.Timestamp.After(until) {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return page(rows, limit, offset), nil
}

type fixedBoot struct {
	t  time.Time
	ok bool
}

func (f fixedBoot) BootTime() (time.Time, bool, error) { return f.t, f.ok, nil }

func testEngine(t *testing.T, st Store, sc sink.Client, boot BootTimeSource, now time.Time) *Engine {
	t.Helper()
	e := New(st, sc, boot, Config{Hostname: "app1", Environment: "test"})
	e.now = func() time.Time { return now }
	return e
}

func decodeAccess(t *testing.T, ev models.LogEvent) models.AccessEnvelope {
	t.Helper()
	var env models.AccessEnvelope
	if err := json.Unmarshal([]byte(ev.Message), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func acceptedEvents(fake *sink.Fake, stream string) []models.LogEvent {
	var out []models.LogEvent
	for _, sub := range fake.AcceptedSubmissions() {
		if sub.Stream == stream {
			out = append(out, sub.Events...)
		}
	}
	return out
}

func TestReadAccessRunAssignsContiguousSequences(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	for i := 0; i < 5; i++ {
		st.readAccesses = append(st.readAccesses, models.ReadAccess{
			TimeOfEvent: base.Add(time.Duration(i) * time.Second),
			Username:    "tester",
			Path:        "/api/v1/lapset/",
			QueryParams: "page=1",
		})
	}

	fake := sink.NewFake()
	now := base.Add(time.Hour)
	e := testEngine(t, st, fake, nil, now)

	if err := e.RunReadAccess(context.Background()); err != nil {
		t.Fatalf("RunReadAccess: %v", err)
	}

	events := acceptedEvents(fake, models.StreamGet)
	if len(events) != 5 {
		t.Fatalf("accepted events = %d, want 5", len(events))
	}
	for i, ev := range events {
		env := decodeAccess(t, ev)
		if env.LogSeq != int64(i+1) {
			t.Errorf("event %d: logSeq = %d, want %d", i, env.LogSeq, i+1)
		}
		if env.Operation != "GET" || env.User != "tester" || env.Target != "/api/v1/lapset/" {
			t.Errorf("event %d: unexpected envelope %+v", i, env)
		}
		if env.Version != models.EnvelopeVersion || env.ServiceName != "varda" || env.ApplicationType != "backend" {
			t.Errorf("event %d: bad header %+v", i, env.Envelope)
		}
		if ev.TimestampMS != base.Add(time.Duration(i)*time.Second).UnixMilli() {
			t.Errorf("event %d: timestamp = %d", i, ev.TimestampMS)
		}
	}

	seq, _ := st.LogSeq(context.Background(), models.StreamGet)
	if seq != 5 {
		t.Fatalf("log_seq = %d, want 5", seq)
	}
	wm, ok, _ := st.Watermark(context.Background(), models.FeedReadAccess, "")
	if !ok || !wm.Equal(now) {
		t.Fatalf("watermark = %v %v, want %v", wm, ok, now)
	}
}

func TestReadAccessRunResumesAfterTransientFailure(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := newFakeStore()
	for i := 0; i < 25_000; i++ {
		st.readAccesses = append(st.readAccesses, models.ReadAccess{
			TimeOfEvent: base.Add(time.Duration(i) * time.Second),
			Username:    "tester",
			Path:        "/api/v1/lapset/",
		})
	}

	fake := sink.NewFake(sink.Accepted, sink.Accepted, sink.Retryable)
	now := base.Add(30_000 * time.Second)
	e := testEngine(t, st, fake, nil, now)

	err := e.RunReadAccess(context.Background())
	if err == nil {
		t.Fatal("expected run to abort on transient failure")
	}
	if !isTransient(err) {
		t.Fatalf("error not transient: %v", err)
	}

	events := acceptedEvents(fake, models.StreamGet)
	if len(events) != 20_000 {
		t.Fatalf("accepted events = %d, want 20000", len(events))
	}
	seq, _ := st.LogSeq(context.Background(), models.StreamGet)
	if seq != 20_000 {
		t.Fatalf("log_seq = %d, want 20000", seq)
	}

	// Interrupted run: the watermark is the source time of the last
	// accepted event, not the run's upper bound.
	last := base.Add(19_999 * time.Second)
	wm, ok, _ := st.Watermark(context.Background(), models.FeedReadAccess, "")
	if !ok || !wm.Equal(last) {
		t.Fatalf("watermark = %v, want %v", wm, last)
	}

	// Second run resumes from the watermark. The low bound is inclusive,
	// so the boundary event is submitted again under a fresh sequence
	// number; the sink deduplicates on its side.
	fake2 := sink.NewFake()
	now2 := base.Add(31_000 * time.Second)
	e2 := testEngine(t, st, fake2, nil, now2)
	if err := e2.RunReadAccess(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	events2 := acceptedEvents(fake2, models.StreamGet)
	if len(events2) != 5_001 {
		t.Fatalf("second run accepted = %d, want 5001", len(events2))
	}
	first := decodeAccess(t, events2[0])
	if first.LogSeq != 20_001 {
		t.Fatalf("second run first logSeq = %d, want 20001", first.LogSeq)
	}
	seq, _ = st.LogSeq(context.Background(), models.StreamGet)
	if seq != 25_001 {
		t.Fatalf("log_seq after second run = %d, want 25001", seq)
	}
	wm, _, _ = st.Watermark(context.Background(), models.FeedReadAccess, "")
	if !wm.Equal(now2) {
		t.Fatalf("final watermark = %v, want %v", wm, now2)
	}
}

func TestReadAccessRerunWithNoNewDataIsNoop(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.readAccesses = append(st.readAccesses, models.ReadAccess{
		TimeOfEvent: base, Username: "tester", Path: "/api/v1/lapset/",
	})

	fake := sink.NewFake()
	now := base.Add(time.Hour)
	e := testEngine(t, st, fake, nil, now)
	if err := e.RunReadAccess(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got := len(fake.Submissions); got != 1 {
		t.Fatalf("first run submissions = %d, want 1", got)
	}

	if err := e.RunReadAccess(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(fake.Submissions); got != 1 {
		t.Fatalf("no-op run submitted events: submissions = %d", got)
	}
	wm, _, _ := st.Watermark(context.Background(), models.FeedReadAccess, "")
	if !wm.Equal(now) {
		t.Fatalf("watermark = %v, want %v", wm, now)
	}
}

func TestChangeHistoryShipsPerKindStreams(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.changes = []models.ChangeEntry{
		{Kind: "henkilo", EntityID: 1, Op: models.ChangeOpCreate, OccurredAt: base, Actor: "a"},
		{Kind: "henkilo", EntityID: 1, Op: models.ChangeOpUpdate, OccurredAt: base.Add(time.Second), Actor: "a"},
		{Kind: "henkilo", EntityID: 1, Op: models.ChangeOpDelete, OccurredAt: base.Add(2 * time.Second), Actor: "a"},
		{Kind: "toimipaikka", EntityID: 7, Op: models.ChangeOpUpdate, OccurredAt: base, Actor: "b"},
	}

	fake := sink.NewFake()
	e := testEngine(t, st, fake, nil, base.Add(time.Hour))
	if err := e.RunChangeHistory(context.Background()); err != nil {
		t.Fatalf("RunChangeHistory: %v", err)
	}

	// Person history carries creations and deletions only.
	henkilo := acceptedEvents(fake, models.ChangeStream("henkilo"))
	if len(henkilo) != 2 {
		t.Fatalf("henkilo events = %d, want 2", len(henkilo))
	}
	ops := []string{
		decodeAccess(t, henkilo[0]).Operation,
		decodeAccess(t, henkilo[1]).Operation,
	}
	if ops[0] != "CREATE" || ops[1] != "DELETE" {
		t.Fatalf("henkilo operations = %v", ops)
	}

	tp := acceptedEvents(fake, models.ChangeStream("toimipaikka"))
	if len(tp) != 1 {
		t.Fatalf("toimipaikka events = %d, want 1", len(tp))
	}
	env := decodeAccess(t, tp[0])
	if env.Operation != "CHANGE" {
		t.Errorf("toimipaikka operation = %q", env.Operation)
	}
	if env.Target != "/api/v1/toimipaikat/7/" {
		t.Errorf("toimipaikka target = %q", env.Target)
	}

	// Each kind advances its own stream and watermark.
	seq, _ := st.LogSeq(context.Background(), models.ChangeStream("henkilo"))
	if seq != 2 {
		t.Errorf("henkilo log_seq = %d, want 2", seq)
	}
	if _, ok, _ := st.Watermark(context.Background(), models.ChangeFeed("toimipaikka"), ""); !ok {
		t.Error("toimipaikka watermark not set")
	}
}

func TestChangeHistoryContinuesAfterFatalKind(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.changes = []models.ChangeEntry{
		{Kind: "henkilo", EntityID: 1, Op: models.ChangeOpCreate, OccurredAt: base, Actor: "a"},
		{Kind: "toimipaikka", EntityID: 7, Op: models.ChangeOpCreate, OccurredAt: base, Actor: "b"},
	}

	// Kinds run in sorted order: henkilo first gets a permanent
	// rejection, toimipaikka must still ship.
	fake := sink.NewFake(sink.Fatal, sink.Accepted)
	e := testEngine(t, st, fake, nil, base.Add(time.Hour))

	err := e.RunChangeHistory(context.Background())
	if err == nil {
		t.Fatal("expected error from rejected kind")
	}
	if isTransient(err) {
		t.Fatalf("fatal rejection reported as transient: %v", err)
	}

	if got := len(acceptedEvents(fake, models.ChangeStream("henkilo"))); got != 0 {
		t.Errorf("henkilo accepted = %d, want 0", got)
	}
	if got := len(acceptedEvents(fake, models.ChangeStream("toimipaikka"))); got != 1 {
		t.Errorf("toimipaikka accepted = %d, want 1", got)
	}
	if _, ok, _ := st.Watermark(context.Background(), models.ChangeFeed("henkilo"), ""); ok {
		t.Error("henkilo watermark set despite rejection")
	}
}

func TestDataAccessExclusiveLowBound(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.dataAccesses = []models.DataAccess{
		{Timestamp: base, UserOID: "1.2.3", OrganizationOID: "1.2.9", HenkiloOID: "1.2.4", AccessType: "katselu"},
		{Timestamp: base.Add(time.Minute), UserOID: "1.2.3", OrganizationOID: "1.2.9", HenkiloOID: "1.2.5", AccessType: "katselu"},
	}
	// A previous run already shipped the row at base.
	if err := st.SetWatermark(context.Background(), models.FeedDataAccess, "", base); err != nil {
		t.Fatal(err)
	}

	boot := fixedBoot{t: base.Add(-time.Hour), ok: true}
	fake := sink.NewFake()
	e := testEngine(t, st, fake, boot, base.Add(time.Hour))
	if err := e.RunDataAccess(context.Background()); err != nil {
		t.Fatalf("RunDataAccess: %v", err)
	}

	events := acceptedEvents(fake, models.StreamDataAccess)
	if len(events) != 1 {
		t.Fatalf("accepted events = %d, want 1", len(events))
	}
	var env models.DataAccessEnvelope
	if err := json.Unmarshal([]byte(events[0].Message), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Target.OppijaHenkiloOID != "1.2.5" {
		t.Errorf("shipped wrong row: %+v", env)
	}
	if env.BootTime == nil || *env.BootTime != boot.t.Format(models.TimestampLayout) {
		t.Errorf("bootTime = %v", env.BootTime)
	}
	if env.User.OID != "1.2.3" || env.OrganizationOID != "1.2.9" || env.Operation != "katselu" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestDataAccessShipsNullBootTimeWhenUncached(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.dataAccesses = []models.DataAccess{
		{Timestamp: base, UserOID: "1.2.3", OrganizationOID: "1.2.9", HenkiloOID: "1.2.4", AccessType: "katselu"},
	}

	fake := sink.NewFake()
	e := testEngine(t, st, fake, fixedBoot{ok: false}, base.Add(time.Hour))
	if err := e.RunDataAccess(context.Background()); err != nil {
		t.Fatalf("RunDataAccess: %v", err)
	}

	events := acceptedEvents(fake, models.StreamDataAccess)
	if len(events) != 1 {
		t.Fatalf("accepted events = %d, want 1", len(events))
	}
	if !strings.Contains(events[0].Message, `"bootTime":null`) {
		t.Errorf("message does not carry null bootTime: %s", events[0].Message)
	}
}

func TestOversizedEventSkippedWithoutSequenceGap(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := newFakeStore()
	st.readAccesses = []models.ReadAccess{
		{TimeOfEvent: base, Username: "a", Path: "/api/v1/lapset/"},
		{TimeOfEvent: base.Add(time.Second), Username: "b", Path: "/api/v1/lapset/", QueryParams: strings.Repeat("x", 1_100_000)},
		{TimeOfEvent: base.Add(2 * time.Second), Username: "c", Path: "/api/v1/lapset/"},
	}

	fake := sink.NewFake()
	e := testEngine(t, st, fake, nil, base.Add(time.Hour))
	if err := e.RunReadAccess(context.Background()); err != nil {
		t.Fatalf("RunReadAccess: %v", err)
	}

	events := acceptedEvents(fake, models.StreamGet)
	if len(events) != 2 {
		t.Fatalf("accepted events = %d, want 2", len(events))
	}
	first, second := decodeAccess(t, events[0]), decodeAccess(t, events[1])
	if first.LogSeq != 1 || second.LogSeq != 2 {
		t.Fatalf("sequences = %d, %d; want 1, 2", first.LogSeq, second.LogSeq)
	}
	if first.User != "a" || second.User != "c" {
		t.Fatalf("users = %q, %q", first.User, second.User)
	}
}
