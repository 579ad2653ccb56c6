// Package differ computes categorized change reports by matching a new
// snapshot against the stored state on stable assignment IDs.
//
// All comparison goes through identifiers and the model's equality
// predicates; there is no structural diffing, so formatting drift in
// the upstream payload ("5" vs "5.00", "" vs "No comment") never
// produces a change.
package differ

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/storage"
)

// ChangeType categorizes a single detected change.
type ChangeType string

const (
	ChangeNewAssignment    ChangeType = "new_assignment"
	ChangeGradeUpdated     ChangeType = "grade_updated"
	ChangeExceptionUpdated ChangeType = "exception_updated"
	ChangeCommentUpdated   ChangeType = "comment_updated"
)

// Change is one semantic delta between the stored state and the new
// snapshot. Old and New are preformatted display strings.
type Change struct {
	Type            ChangeType
	SectionTitle    string
	PeriodName      string
	CategoryName    string
	AssignmentTitle string
	AssignmentID    string
	SectionID       string
	PeriodID        string
	CategoryID      string
	Old             string
	New             string

	// Raw points for percentage enrichment in summaries.
	newAssignment model.Assignment
	oldAssignment *model.Assignment
}

// Summary renders a one-line human summary of the change, with
// percentage and letter grade appended where the points allow it.
func (c Change) Summary() string {
	switch c.Type {
	case ChangeNewAssignment:
		return fmt.Sprintf("New: %s = %s", c.AssignmentTitle, withPercent(c.New, c.newAssignment))
	case ChangeGradeUpdated, ChangeExceptionUpdated:
		old := c.Old
		if c.oldAssignment != nil {
			old = withPercent(c.Old, *c.oldAssignment)
		}
		return fmt.Sprintf("%s: %s -> %s", c.AssignmentTitle, old, withPercent(c.New, c.newAssignment))
	case ChangeCommentUpdated:
		return fmt.Sprintf("%s: Comment updated", c.AssignmentTitle)
	}
	return fmt.Sprintf("%s: Changed", c.AssignmentTitle)
}

func withPercent(grade string, a model.Assignment) string {
	pct := a.Percentage()
	if pct == nil {
		return grade
	}
	return fmt.Sprintf("%s (%s%% %s)", grade, model.FormatDecimal(pct.Round(0)), model.LetterGrade(pct))
}

// Counts aggregates changes by category. Exception transitions count
// as grade updates.
type Counts struct {
	NewAssignments int `json:"new_assignments"`
	GradeUpdates   int `json:"grade_updates"`
	CommentUpdates int `json:"comment_updates"`
}

// Total returns the total number of changes.
func (c Counts) Total() int {
	return c.NewAssignments + c.GradeUpdates + c.CommentUpdates
}

// Report is the structured diff output of one cycle.
type Report struct {
	Timestamp time.Time
	Changes   []Change
	Counts    Counts

	// IsInitial is set when no prior state existed, or when an
	// internal error forced the fail-safe empty report.
	IsInitial bool
}

// HasChanges reports whether any changes were detected.
func (r *Report) HasChanges() bool {
	return len(r.Changes) > 0
}

// Summary renders the report's one-sentence summary, suppressing
// zero-count terms.
func (r *Report) Summary() string {
	if r.IsInitial {
		return "Initial grade data captured"
	}
	if !r.HasChanges() {
		return "No changes detected"
	}
	var parts []string
	if r.Counts.NewAssignments > 0 {
		parts = append(parts, fmt.Sprintf("%d new", r.Counts.NewAssignments))
	}
	if r.Counts.GradeUpdates > 0 {
		parts = append(parts, fmt.Sprintf("%d grade update(s)", r.Counts.GradeUpdates))
	}
	if r.Counts.CommentUpdates > 0 {
		parts = append(parts, fmt.Sprintf("%d comment update(s)", r.Counts.CommentUpdates))
	}
	return joinComma(parts)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Differ matches a new snapshot against the store.
type Differ struct {
	store storage.Store
	log   *slog.Logger
}

// New creates a Differ reading previous state from store.
func New(store storage.Store, log *slog.Logger) *Differ {
	if log == nil {
		log = slog.Default()
	}
	return &Differ{store: store, log: log}
}

// Detect computes the change report for snap against the stored state.
//
// Detect never fails: any storage or decoding error degrades to an
// empty report with IsInitial set, so the caller persists the snapshot
// without emitting notifications. When in doubt, do not notify.
func (d *Differ) Detect(ctx context.Context, snap *model.Snapshot) *Report {
	report, err := d.detect(ctx, snap)
	if err != nil {
		d.log.Warn("change detection failed, degrading to initial report", "error", err)
		return &Report{Timestamp: snap.Timestamp, IsInitial: true}
	}
	return report
}

func (d *Differ) detect(ctx context.Context, snap *model.Snapshot) (*Report, error) {
	last, err := d.store.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest timestamp: %w", err)
	}
	if last == nil {
		d.log.Info("no previous data found, treating as initial capture")
		return &Report{Timestamp: snap.Timestamp, IsInitial: true}, nil
	}

	report := &Report{Timestamp: snap.Timestamp}

	// model.Walk visits section -> period -> category -> assignment,
	// each level sorted by identifier, which makes the change order
	// deterministic for any given snapshot pair.
	err = snap.Walk(func(ref model.AssignmentRef) error {
		newA := *ref.Assignment
		if !newA.Graded() {
			return nil
		}

		stored, err := d.store.GetAssignment(ctx, newA.AssignmentID)
		if err != nil {
			return err
		}

		change := d.classify(stored, newA)
		if change == nil {
			return nil
		}

		change.SectionTitle = ref.Section.FullName()
		change.SectionID = ref.Section.SectionID
		change.PeriodName = ref.Period.Name
		change.PeriodID = ref.Period.PeriodID
		change.CategoryName = ref.Category.Name
		change.CategoryID = ref.Category.CategoryID
		change.AssignmentTitle = newA.Title
		change.AssignmentID = newA.AssignmentID

		switch change.Type {
		case ChangeNewAssignment:
			report.Counts.NewAssignments++
		case ChangeGradeUpdated, ChangeExceptionUpdated:
			report.Counts.GradeUpdates++
		case ChangeCommentUpdated:
			report.Counts.CommentUpdates++
		}
		report.Changes = append(report.Changes, *change)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// classify decides which change, if any, a graded assignment
// represents relative to its stored counterpart. Assignments present
// in the store but absent from the snapshot are deliberately not
// reported; they drop out silently at persist time.
func (d *Differ) classify(stored *storage.Assignment, newA model.Assignment) *Change {
	// No stored row, or a stored row that was never graded: no prior
	// graded state exists for this ID, so the first graded sighting is
	// a new assignment even when the row itself is old.
	if stored == nil || !stored.Graded() {
		return &Change{
			Type:          ChangeNewAssignment,
			Old:           model.Absent,
			New:           newA.GradeString(),
			newAssignment: newA,
		}
	}

	oldA := stored.Assignment
	if oldA.Exception != newA.Exception {
		return &Change{
			Type:          ChangeExceptionUpdated,
			Old:           oldA.GradeString(),
			New:           newA.GradeString(),
			newAssignment: newA,
			oldAssignment: &oldA,
		}
	}
	if !oldA.GradeEquals(newA) {
		return &Change{
			Type:          ChangeGradeUpdated,
			Old:           oldA.GradeString(),
			New:           newA.GradeString(),
			newAssignment: newA,
			oldAssignment: &oldA,
		}
	}
	if !oldA.CommentEquivalent(newA) && substantiveCommentChange(oldA.Comment, newA.Comment) {
		return &Change{
			Type:          ChangeCommentUpdated,
			Old:           oldA.Comment,
			New:           newA.Comment,
			newAssignment: newA,
			oldAssignment: &oldA,
		}
	}
	return nil
}

// substantiveCommentChange is true only when both sides normalize to
// non-empty text. Adding a first comment or clearing one is not
// reported.
func substantiveCommentChange(oldComment, newComment string) bool {
	return model.NormalizeComment(oldComment) != "" && model.NormalizeComment(newComment) != ""
}
