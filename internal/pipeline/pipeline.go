// Package pipeline orchestrates one change-detection cycle: fetch a
// snapshot, diff it against the store, fan out notifications, journal
// the outcome, and atomically persist the new state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gradewatch/gradewatch/internal/differ"
	"github.com/gradewatch/gradewatch/internal/journal"
	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/storage"
)

// Result classifies the outcome of one cycle.
type Result int

const (
	// OKNoChanges: cycle completed, nothing changed.
	OKNoChanges Result = iota
	// OKChanges: cycle completed, changes detected and persisted.
	OKChanges
	// FetchFailed: no snapshot could be obtained; state untouched.
	FetchFailed
	// PersistFailed: snapshot obtained but not stored; next cycle
	// re-detects the same changes.
	PersistFailed
	// Partial: persisted, but journaling or some delivery failed.
	Partial
)

func (r Result) String() string {
	switch r {
	case OKNoChanges:
		return "ok_no_changes"
	case OKChanges:
		return "ok_changes"
	case FetchFailed:
		return "fetch_failed"
	case PersistFailed:
		return "persist_failed"
	case Partial:
		return "partial"
	}
	return "unknown"
}

// OK reports whether the cycle completed fully.
func (r Result) OK() bool { return r == OKNoChanges || r == OKChanges }

// Fetcher obtains a fresh grade snapshot from the upstream source.
type Fetcher interface {
	Fetch(ctx context.Context) (*model.Snapshot, error)
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 5 * time.Second
	healthTimeout     = 10 * time.Second
)

// Orchestrator wires the pipeline stages together and runs cycles.
type Orchestrator struct {
	Fetcher  Fetcher
	Store    storage.Store
	Differ   *differ.Differ
	Journal  *journal.Writer
	Notifier *notify.Manager

	// HealthURL, when set, gets a GET ping with the cycle status.
	HealthURL string

	// MaxRetries and RetryDelay govern fetch attempts. Zero values
	// select the defaults.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// RunCycle executes one full cycle and returns its outcome. Stage
// failures after a successful fetch degrade the result rather than
// abort: a notification channel being down must never cost the
// persisted state, and a persist failure must never lose the journal
// record of what was seen.
func (o *Orchestrator) RunCycle(ctx context.Context) Result {
	log := o.log()
	start := time.Now()
	log.Info("cycle started")

	snap, err := o.fetchWithRetry(ctx)
	if err != nil {
		log.Error("fetch failed, giving up", "error", err)
		o.reportFetchFailure(ctx, err)
		o.ping(ctx, false)
		return FetchFailed
	}

	report := o.Differ.Detect(ctx, snap)
	log.Info("change detection complete",
		"changes", len(report.Changes), "initial", report.IsInitial)

	partial := false

	var delivered map[string]bool
	if report.HasChanges() && !report.IsInitial {
		delivered = o.notifyChanges(ctx, report)
		for name, ok := range delivered {
			if !ok {
				log.Warn("delivery incomplete", "provider", name)
				partial = true
			}
		}
	}

	// Empty reports are not journaled; the journal holds changes and
	// failures, not heartbeats.
	if o.Journal != nil && report.HasChanges() {
		if err := o.Journal.Record(report, delivered); err != nil {
			log.Warn("failed to journal cycle", "error", err)
			partial = true
		}
	}

	if err := o.Store.ReplaceAll(ctx, snap); err != nil {
		log.Error("failed to persist snapshot, previous state retained", "error", err)
		o.ping(ctx, false)
		return PersistFailed
	}

	if o.Journal != nil {
		if err := o.Journal.Prune(time.Now()); err != nil {
			log.Warn("journal prune failed", "error", err)
		}
	}

	log.Info("cycle complete", "result", report.Summary(), "duration", time.Since(start).Round(time.Millisecond))
	// Health reflects fetch and persist only; a flaky notification
	// channel is not an unhealthy pipeline.
	o.ping(ctx, true)

	switch {
	case partial:
		return Partial
	case report.HasChanges():
		return OKChanges
	default:
		return OKNoChanges
	}
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context) (*model.Snapshot, error) {
	maxRetries := o.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	delay := o.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			o.log().Warn("retrying fetch", "attempt", attempt, "of", maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		snap, err := o.Fetcher.Fetch(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		o.log().Warn("fetch attempt failed", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (o *Orchestrator) notifyChanges(ctx context.Context, report *differ.Report) map[string]bool {
	if o.Notifier == nil {
		return nil
	}
	msg := notify.Message{
		Title:    "Changes detected",
		Content:  report.FormatNotification(),
		Priority: notify.PriorityNormal,
		Metadata: map[string]string{
			"new_assignments": strconv.Itoa(report.Counts.NewAssignments),
			"grade_updates":   strconv.Itoa(report.Counts.GradeUpdates),
			"comment_updates": strconv.Itoa(report.Counts.CommentUpdates),
		},
	}
	return o.Notifier.Broadcast(ctx, msg)
}

// reportFetchFailure journals the failed cycle and raises a
// high-priority alert so an expired credential or API outage surfaces
// the day it happens.
func (o *Orchestrator) reportFetchFailure(ctx context.Context, fetchErr error) {
	if o.Journal != nil {
		if err := o.Journal.RecordError(time.Now(), fetchErr); err != nil {
			o.log().Error("failed to journal fetch failure", "error", err)
		}
	}
	if o.Notifier != nil {
		o.Notifier.Broadcast(ctx, notify.Message{
			Title:    "Pipeline error",
			Content:  fmt.Sprintf("Grade fetch failed: %v", fetchErr),
			Priority: notify.PriorityHigh,
		})
	}
}

// ping notifies an external healthcheck endpoint of the cycle status.
// Failures are logged and otherwise ignored; monitoring must never
// affect the pipeline.
func (o *Orchestrator) ping(ctx context.Context, ok bool) {
	if o.HealthURL == "" {
		return
	}
	status := "ok"
	if !ok {
		status = "fail"
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, o.HealthURL+"?status="+status, nil)
	if err != nil {
		o.log().Info("healthcheck ping skipped", "error", err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		o.log().Info("healthcheck ping failed", "error", err)
		return
	}
	resp.Body.Close()
	o.log().Info("healthcheck ping sent", "status", status)
}
