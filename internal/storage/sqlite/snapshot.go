package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/storage"
)

// querier is satisfied by *sql.DB and *sql.Conn so the row helpers can
// serve both plain reads and reads inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetAssignment returns the stored assignment with its parent keys, or
// nil when absent.
func (s *SQLiteStore) GetAssignment(ctx context.Context, assignmentID string) (*storage.Assignment, error) {
	return getAssignment(ctx, s.db, assignmentID)
}

func getAssignment(ctx context.Context, q querier, assignmentID string) (*storage.Assignment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT assignment_id, category_id, period_id, title,
		       earned_points, max_points, exception, comment, due_date
		FROM assignments WHERE assignment_id = ?
	`, assignmentID)

	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment %s: %w", assignmentID, err)
	}
	return a, nil
}

// GetCategory returns the category for (categoryID, periodID) without
// its assignments, or nil when absent.
func (s *SQLiteStore) GetCategory(ctx context.Context, categoryID, periodID string) (*model.Category, error) {
	var (
		cat    model.Category
		weight sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT category_id, name, weight FROM categories
		WHERE category_id = ? AND period_id = ?
	`, categoryID, periodID).Scan(&cat.CategoryID, &cat.Name, &weight)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category (%s, %s): %w", categoryID, periodID, err)
	}
	if weight.Valid {
		w, err := decimal.NewFromString(weight.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse category weight %q: %w", weight.String, err)
		}
		cat.Weight = &w
	}
	return &cat, nil
}

// IterAssignments streams every stored assignment ordered by ID.
func (s *SQLiteStore) IterAssignments(ctx context.Context, fn func(a storage.Assignment) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assignment_id, category_id, period_id, title,
		       earned_points, max_points, exception, comment, due_date
		FROM assignments ORDER BY assignment_id
	`)
	if err != nil {
		return fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		if err := fn(*a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*storage.Assignment, error) {
	var (
		a         storage.Assignment
		earned    sql.NullString
		maxPts    sql.NullString
		exception int
		due       sql.NullString
	)
	err := row.Scan(&a.AssignmentID, &a.CategoryID, &a.PeriodID, &a.Title,
		&earned, &maxPts, &exception, &a.Comment, &due)
	if err != nil {
		return nil, err
	}

	if a.EarnedPoints, err = parseNullDecimal(earned); err != nil {
		return nil, fmt.Errorf("earned_points: %w", err)
	}
	if a.MaxPoints, err = parseNullDecimal(maxPts); err != nil {
		return nil, fmt.Errorf("max_points: %w", err)
	}
	if a.Exception, err = model.ParseException(exception); err != nil {
		return nil, err
	}
	if due.Valid {
		t, err := time.Parse(time.RFC3339Nano, due.String)
		if err != nil {
			return nil, fmt.Errorf("due_date %q: %w", due.String, err)
		}
		a.DueDate = &t
	}
	return &a, nil
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decimal %q: %w", v.String, err)
	}
	return &d, nil
}

func encodeDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return model.FormatDecimal(*d)
}

func encodeInstant(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// replaceAll rewrites all five tables plus the meta row on the given
// transaction connection. Deletes run leaves-first so foreign keys
// stay satisfied without relying on cascade order.
func replaceAll(ctx context.Context, conn querier, snap *model.Snapshot) error {
	for _, table := range []string{"assignments", "categories", "periods", "sections", "meta"} {
		if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for si := range snap.Sections {
		section := &snap.Sections[si]
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO sections (section_id, course_title, section_title) VALUES (?, ?, ?)
		`, section.SectionID, section.CourseTitle, section.SectionTitle); err != nil {
			return fmt.Errorf("failed to insert section %s: %w", section.SectionID, err)
		}

		for pi := range section.Periods {
			period := &section.Periods[pi]
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO periods (period_id, section_id, name) VALUES (?, ?, ?)
			`, period.PeriodID, section.SectionID, period.Name); err != nil {
				return fmt.Errorf("failed to insert period %s: %w", period.PeriodID, err)
			}

			for ci := range period.Categories {
				category := &period.Categories[ci]
				if _, err := conn.ExecContext(ctx, `
					INSERT INTO categories (category_id, period_id, name, weight) VALUES (?, ?, ?, ?)
				`, category.CategoryID, period.PeriodID, category.Name, encodeDecimal(category.Weight)); err != nil {
					return fmt.Errorf("failed to insert category (%s, %s): %w", category.CategoryID, period.PeriodID, err)
				}

				for ai := range category.Assignments {
					a := &category.Assignments[ai]
					if _, err := conn.ExecContext(ctx, `
						INSERT INTO assignments (assignment_id, category_id, period_id, title,
						                         earned_points, max_points, exception, comment, due_date)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
					`, a.AssignmentID, category.CategoryID, period.PeriodID, a.Title,
						encodeDecimal(a.EarnedPoints), encodeDecimal(a.MaxPoints),
						int(a.Exception), a.Comment, encodeInstant(a.DueDate)); err != nil {
						return fmt.Errorf("failed to insert assignment %s: %w", a.AssignmentID, err)
					}
				}
			}
		}
	}

	if _, err := conn.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
	`, metaTimestampKey, snap.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write snapshot timestamp: %w", err)
	}
	return nil
}
