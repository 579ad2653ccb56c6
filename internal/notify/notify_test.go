package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeProvider is a scriptable provider for manager tests.
type fakeProvider struct {
	name      string
	available bool
	ok        bool
	panics    bool

	got []Message
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) Send(ctx context.Context, msg Message) bool {
	if f.panics {
		panic("provider exploded")
	}
	f.got = append(f.got, msg)
	return f.ok
}

type fakeEnricher struct {
	fakeProvider
	enrichErr error
}

func (f *fakeEnricher) Enrich(ctx context.Context, msg Message) (Message, error) {
	if f.enrichErr != nil {
		return msg, f.enrichErr
	}
	out := msg
	out.Content = msg.Content + "\n[enriched]"
	return out, nil
}

func TestBroadcastResults(t *testing.T) {
	ok := &fakeProvider{name: "alpha", available: true, ok: true}
	bad := &fakeProvider{name: "beta", available: true, ok: false}
	off := &fakeProvider{name: "gamma", available: false}

	m := NewManager([]Provider{bad, ok, off}, time.Second, nil)

	results := m.Broadcast(context.Background(), Message{Title: "t"})
	if len(results) != 2 {
		t.Fatalf("results = %v, want two entries", results)
	}
	if !results["alpha"] || results["beta"] {
		t.Errorf("results = %v", results)
	}
	if _, present := results["gamma"]; present {
		t.Error("unavailable provider appeared in results")
	}
}

func TestBroadcastOrderIsSortedByName(t *testing.T) {
	a := &fakeProvider{name: "alpha", available: true, ok: true}
	z := &fakeProvider{name: "zulu", available: true, ok: true}

	m := NewManager([]Provider{z, a}, time.Second, nil)
	active := m.Active()
	if len(active) != 2 || active[0] != "alpha" || active[1] != "zulu" {
		t.Errorf("Active() = %v, want [alpha zulu]", active)
	}
}

func TestEnricherRunsFirstAndRewrites(t *testing.T) {
	enricher := &fakeEnricher{fakeProvider: fakeProvider{name: "zz-enricher", available: true, ok: true}}
	sender := &fakeProvider{name: "alpha", available: true, ok: true}

	m := NewManager([]Provider{sender, enricher}, time.Second, nil)
	results := m.Broadcast(context.Background(), Message{Title: "t", Content: "body"})

	if !results["zz-enricher"] {
		t.Error("enricher result missing or false")
	}
	if len(sender.got) != 1 {
		t.Fatalf("sender received %d messages", len(sender.got))
	}
	if !strings.Contains(sender.got[0].Content, "[enriched]") {
		t.Errorf("sender got unenriched content: %q", sender.got[0].Content)
	}
}

func TestEnrichmentFailureDegrades(t *testing.T) {
	enricher := &fakeEnricher{
		fakeProvider: fakeProvider{name: "enricher", available: true},
		enrichErr:    errors.New("api down"),
	}
	sender := &fakeProvider{name: "push", available: true, ok: true}

	m := NewManager([]Provider{enricher, sender}, time.Second, nil)
	results := m.Broadcast(context.Background(), Message{Content: "body"})

	if results["enricher"] {
		t.Error("failed enrichment recorded as success")
	}
	if !results["push"] {
		t.Error("sender should still deliver")
	}
	if len(sender.got) != 1 || sender.got[0].Content != "body" {
		t.Errorf("sender should get the original message, got %+v", sender.got)
	}
}

func TestPanickingProviderIsContained(t *testing.T) {
	boom := &fakeProvider{name: "boom", available: true, panics: true}
	ok := &fakeProvider{name: "ok", available: true, ok: true}

	m := NewManager([]Provider{boom, ok}, time.Second, nil)
	results := m.Broadcast(context.Background(), Message{})

	if results["boom"] {
		t.Error("panicking provider recorded as success")
	}
	if !results["ok"] {
		t.Error("other providers should run after a panic")
	}
}

func TestPushoverSend(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover(PushoverConfig{APIToken: "tok", UserKey: "usr"}, nil)
	p.endpoint = srv.URL

	ok := p.Send(context.Background(), Message{
		Title:    "Changes detected",
		Content:  "1 new",
		Priority: PriorityHigh,
	})
	if !ok {
		t.Fatal("Send = false")
	}
	if gotForm["token"] != "tok" || gotForm["user"] != "usr" {
		t.Errorf("credentials not sent: %v", gotForm)
	}
	if gotForm["priority"] != "1" {
		t.Errorf("priority = %q, want 1 for high", gotForm["priority"])
	}
	if gotForm["title"] != "Changes detected" {
		t.Errorf("title = %q", gotForm["title"])
	}
}

func TestPushoverRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["invalid token"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPushover(PushoverConfig{APIToken: "bad", UserKey: "usr"}, nil)
	p.endpoint = srv.URL

	if p.Send(context.Background(), Message{}) {
		t.Error("Send = true on 400 response")
	}
}

func TestPushoverPriorityMap(t *testing.T) {
	tests := []struct {
		pr   Priority
		want int
	}{
		{PriorityLow, -2},
		{PriorityNormal, 0},
		{PriorityHigh, 1},
		{Priority("other"), 0},
	}
	for _, tt := range tests {
		if got := pushoverPriority(tt.pr); got != tt.want {
			t.Errorf("pushoverPriority(%s) = %d, want %d", tt.pr, got, tt.want)
		}
	}
}

func TestAvailability(t *testing.T) {
	if NewPushover(PushoverConfig{APIToken: "t"}, nil).Available() {
		t.Error("pushover available without user key")
	}
	if !NewPushover(PushoverConfig{APIToken: "t", UserKey: "u"}, nil).Available() {
		t.Error("pushover unavailable with full config")
	}
	if NewEmail(EmailConfig{Host: "smtp.example.com"}, nil).Available() {
		t.Error("email available without from/recipients")
	}
	if !NewEmail(EmailConfig{Host: "h", From: "a@b", Recipients: "c@d"}, nil).Available() {
		t.Error("email unavailable with full config")
	}
}

func TestClaudeUnavailableWithoutKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if NewClaude(ClaudeConfig{}, nil).Available() {
		t.Error("claude available without key")
	}
	if !NewClaude(ClaudeConfig{APIKey: "sk-test"}, nil).Available() {
		t.Error("claude unavailable with key")
	}
}
