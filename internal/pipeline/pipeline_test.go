package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gradewatch/gradewatch/internal/differ"
	"github.com/gradewatch/gradewatch/internal/journal"
	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/storage/memory"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func snapshotWith(assignments ...model.Assignment) *model.Snapshot {
	return &model.Snapshot{
		Timestamp: time.Now(),
		Sections: []model.Section{
			{
				SectionID:   "S1",
				CourseTitle: "Algebra",
				Periods: []model.Period{
					{
						PeriodID: "S1:Q1",
						Name:     "Q1",
						Categories: []model.Category{
							{CategoryID: "C1", Name: "Homework", Assignments: assignments},
						},
					},
				},
			},
		},
	}
}

type fakeFetcher struct {
	snap     *model.Snapshot
	err      error
	failures int // fail this many times, then succeed
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*model.Snapshot, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeProvider struct {
	name string
	ok   bool
	got  []notify.Message
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }
func (f *fakeProvider) Send(ctx context.Context, msg notify.Message) bool {
	f.got = append(f.got, msg)
	return f.ok
}

func newOrchestrator(t *testing.T, fetcher Fetcher, providers ...notify.Provider) (*Orchestrator, *memory.MemoryStore, *journal.Writer) {
	t.Helper()
	store := memory.New()
	jw := journal.New(filepath.Join(t.TempDir(), "journal.jsonl"), 90)
	o := &Orchestrator{
		Fetcher:    fetcher,
		Store:      store,
		Differ:     differ.New(store, nil),
		Journal:    jw,
		Notifier:   notify.NewManager(providers, time.Second, nil),
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
	return o, store, jw
}

func TestInitialCycleIsQuiet(t *testing.T) {
	provider := &fakeProvider{name: "push", ok: true}
	snap := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	o, store, jw := newOrchestrator(t, &fakeFetcher{snap: snap}, provider)

	result := o.RunCycle(context.Background())
	if result != OKNoChanges {
		t.Fatalf("result = %s, want ok", result)
	}
	if len(provider.got) != 0 {
		t.Errorf("initial cycle sent notifications: %+v", provider.got)
	}

	a, err := store.GetAssignment(context.Background(), "100")
	if err != nil || a == nil {
		t.Fatalf("snapshot not persisted: %v, %v", a, err)
	}

	entries, err := jw.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("empty report was journaled: %+v", entries)
	}
}

func TestChangeCycleNotifiesJournalsPersists(t *testing.T) {
	provider := &fakeProvider{name: "push", ok: true}
	ctx := context.Background()

	old := snapshotWith(model.Assignment{AssignmentID: "100", Title: "Quiz", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	updated := snapshotWith(model.Assignment{AssignmentID: "100", Title: "Quiz", EarnedPoints: dec("4"), MaxPoints: dec("5")})

	o, store, jw := newOrchestrator(t, &fakeFetcher{snap: updated}, provider)
	if err := store.ReplaceAll(ctx, old); err != nil {
		t.Fatal(err)
	}

	result := o.RunCycle(ctx)
	if result != OKChanges {
		t.Fatalf("result = %s, want ok_changes", result)
	}

	if len(provider.got) != 1 {
		t.Fatalf("provider received %d messages, want 1", len(provider.got))
	}
	msg := provider.got[0]
	if msg.Title != "Changes detected" {
		t.Errorf("Title = %q", msg.Title)
	}
	if msg.Priority != notify.PriorityNormal {
		t.Errorf("Priority = %s", msg.Priority)
	}
	if msg.Metadata["grade_updates"] != "1" {
		t.Errorf("Metadata = %v", msg.Metadata)
	}

	entries, err := jw.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].HasChanges || !entries[0].Delivered["push"] {
		t.Errorf("journal entries = %+v", entries)
	}

	a, err := store.GetAssignment(ctx, "100")
	if err != nil || a == nil {
		t.Fatal("snapshot not persisted")
	}
	if !a.EarnedPoints.Equal(decimal.RequireFromString("4")) {
		t.Errorf("persisted EarnedPoints = %v, want 4", a.EarnedPoints)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	snap := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	fetcher := &fakeFetcher{snap: snap, failures: 2}
	o, _, _ := newOrchestrator(t, fetcher)

	result := o.RunCycle(context.Background())
	if result != OKNoChanges {
		t.Fatalf("result = %s, want ok", result)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
}

func TestFetchFailureAlertsAndJournals(t *testing.T) {
	provider := &fakeProvider{name: "push", ok: true}
	fetcher := &fakeFetcher{err: errors.New("credentials expired")}
	o, store, jw := newOrchestrator(t, fetcher, provider)

	result := o.RunCycle(context.Background())
	if result != FetchFailed {
		t.Fatalf("result = %s, want fetch_failed", result)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want MaxRetries", fetcher.calls)
	}

	if len(provider.got) != 1 {
		t.Fatalf("alert not sent: %+v", provider.got)
	}
	alert := provider.got[0]
	if alert.Title != "Pipeline error" || alert.Priority != notify.PriorityHigh {
		t.Errorf("alert = %+v", alert)
	}

	entries, err := jw.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != "error" {
		t.Errorf("journal entries = %+v", entries)
	}

	// Store untouched.
	ts, err := store.LatestTimestamp(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ts != nil {
		t.Errorf("store mutated on fetch failure: %v", ts)
	}
}

type failingStore struct {
	*memory.MemoryStore
}

func (f *failingStore) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	return errors.New("disk full")
}

func TestPersistFailureRetainsState(t *testing.T) {
	snap := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	store := &failingStore{MemoryStore: memory.New()}
	o := &Orchestrator{
		Fetcher:    &fakeFetcher{snap: snap},
		Store:      store,
		Differ:     differ.New(store, nil),
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}

	result := o.RunCycle(context.Background())
	if result != PersistFailed {
		t.Fatalf("result = %s, want persist_failed", result)
	}
}

func TestDeliveryFailureIsPartial(t *testing.T) {
	provider := &fakeProvider{name: "push", ok: false}
	ctx := context.Background()

	old := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	updated := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("4"), MaxPoints: dec("5")})

	o, store, _ := newOrchestrator(t, &fakeFetcher{snap: updated}, provider)
	if err := store.ReplaceAll(ctx, old); err != nil {
		t.Fatal(err)
	}

	result := o.RunCycle(ctx)
	if result != Partial {
		t.Fatalf("result = %s, want partial", result)
	}

	// The snapshot still persisted despite the failed delivery.
	a, err := store.GetAssignment(ctx, "100")
	if err != nil || a == nil {
		t.Fatal("snapshot not persisted")
	}
	if !a.EarnedPoints.Equal(decimal.RequireFromString("4")) {
		t.Errorf("persisted EarnedPoints = %v, want 4", a.EarnedPoints)
	}
}

func TestJournalFailureIsPartialAtWarning(t *testing.T) {
	provider := &fakeProvider{name: "push", ok: true}
	ctx := context.Background()

	old := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	updated := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("4"), MaxPoints: dec("5")})

	var logBuf bytes.Buffer
	store := memory.New()
	o := &Orchestrator{
		Fetcher: &fakeFetcher{snap: updated},
		Store:   store,
		Differ:  differ.New(store, nil),
		// A directory as the journal path makes every append fail.
		Journal:    journal.New(t.TempDir(), 90),
		Notifier:   notify.NewManager([]notify.Provider{provider}, time.Second, nil),
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(&logBuf, nil)),
	}
	if err := store.ReplaceAll(ctx, old); err != nil {
		t.Fatal(err)
	}

	result := o.RunCycle(ctx)
	if result != Partial {
		t.Fatalf("result = %s, want partial", result)
	}

	logs := logBuf.String()
	if !strings.Contains(logs, "level=WARN") || !strings.Contains(logs, "failed to journal cycle") {
		t.Errorf("journal failure not logged as warning:\n%s", logs)
	}
	if strings.Contains(logs, "level=ERROR") {
		t.Errorf("journal failure escalated to error:\n%s", logs)
	}

	// The snapshot still persisted and the delivery still went out.
	a, err := store.GetAssignment(ctx, "100")
	if err != nil || a == nil {
		t.Fatal("snapshot not persisted")
	}
	if len(provider.got) != 1 {
		t.Errorf("provider received %d messages, want 1", len(provider.got))
	}
}

func TestHealthPing(t *testing.T) {
	var gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
	}))
	defer srv.Close()

	snap := snapshotWith(model.Assignment{AssignmentID: "100", EarnedPoints: dec("5"), MaxPoints: dec("5")})
	o, _, _ := newOrchestrator(t, &fakeFetcher{snap: snap})
	o.HealthURL = srv.URL

	o.RunCycle(context.Background())
	if gotStatus != "ok" {
		t.Errorf("health status = %q, want ok", gotStatus)
	}

	o2, _, _ := newOrchestrator(t, &fakeFetcher{err: errors.New("down")})
	o2.HealthURL = srv.URL
	o2.RunCycle(context.Background())
	if gotStatus != "fail" {
		t.Errorf("health status = %q, want fail", gotStatus)
	}
}
