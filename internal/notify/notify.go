// Package notify delivers change reports to configured channels. A
// Manager fans a single message out to every active provider; delivery
// is best effort and per-provider failure never aborts the fan-out.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Priority classifies the urgency of a message. Providers map it onto
// whatever their transport supports.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is a provider-independent notification.
type Message struct {
	Title    string
	Content  string
	Priority Priority
	URL      string
	Metadata map[string]string
}

// Provider delivers messages over one channel.
type Provider interface {
	// Name identifies the provider in results and logs.
	Name() string
	// Available reports whether the provider is configured well enough
	// to attempt delivery.
	Available() bool
	// Send delivers the message, returning whether delivery succeeded.
	Send(ctx context.Context, msg Message) bool
}

// Enricher is an optional provider capability: rewrite the message
// before it fans out to the other channels. An enricher that also
// delivers does so inside Enrich.
type Enricher interface {
	Provider
	Enrich(ctx context.Context, msg Message) (Message, error)
}

// DefaultSendTimeout bounds each provider's Send call.
const DefaultSendTimeout = 30 * time.Second

// Manager owns the active provider set and runs the fan-out.
type Manager struct {
	providers   []Provider
	sendTimeout time.Duration
	log         *slog.Logger
}

// NewManager builds a Manager over the available subset of providers.
// Unavailable providers are dropped up front so every cycle works from
// the same active set.
func NewManager(providers []Provider, sendTimeout time.Duration, log *slog.Logger) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	active := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Available() {
			active = append(active, p)
		} else {
			log.Warn("notification provider not configured, skipping", "provider", p.Name())
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name() < active[j].Name() })
	return &Manager{providers: active, sendTimeout: sendTimeout, log: log}
}

// Active returns the names of the active providers in send order.
func (m *Manager) Active() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

// Broadcast fans msg out to every active provider and returns the
// per-provider delivery outcome. It never returns an error: a cycle
// with a dead channel still completes, and the results map records
// what happened.
//
// If an enricher is active, it runs first and its rewritten message is
// what the remaining providers receive. At most one enricher
// participates; with several configured, the first by name wins.
func (m *Manager) Broadcast(ctx context.Context, msg Message) map[string]bool {
	results := make(map[string]bool, len(m.providers))

	enricher, rest := m.splitEnricher()
	if enricher != nil {
		enriched, ok := m.runEnricher(ctx, enricher, msg)
		results[enricher.Name()] = ok
		if ok {
			msg = enriched
		}
	}

	for _, p := range rest {
		results[p.Name()] = m.send(ctx, p, msg)
	}
	return results
}

func (m *Manager) splitEnricher() (Enricher, []Provider) {
	var (
		enricher Enricher
		rest     []Provider
	)
	for _, p := range m.providers {
		if e, ok := p.(Enricher); ok && enricher == nil {
			enricher = e
			continue
		}
		rest = append(rest, p)
	}
	return enricher, rest
}

func (m *Manager) runEnricher(ctx context.Context, e Enricher, msg Message) (out Message, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("enricher panicked", "provider", e.Name(), "panic", fmt.Sprint(r))
			out, ok = msg, false
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	enriched, err := e.Enrich(sendCtx, msg)
	if err != nil {
		m.log.Warn("enrichment failed, delivering original message", "provider", e.Name(), "error", err)
		return msg, false
	}
	return enriched, true
}

// send runs one provider under the per-send timeout. A panicking
// provider is contained and recorded as a failed delivery.
func (m *Manager) send(ctx context.Context, p Provider, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("provider panicked", "provider", p.Name(), "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	ok = p.Send(sendCtx, msg)
	if ok {
		m.log.Info("notification delivered", "provider", p.Name(), "title", msg.Title)
	} else {
		m.log.Warn("notification delivery failed", "provider", p.Name(), "title", msg.Title)
	}
	return ok
}
