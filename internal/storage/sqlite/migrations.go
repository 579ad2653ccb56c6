// Package sqlite - database migrations
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a single database migration. Migrations run in
// order during initialization and must be idempotent.
type Migration struct {
	Name string
	Func func(ctx context.Context, db *sql.DB) error
}

var migrationsList = []Migration{
	{"due_date_index", migrateDueDateIndex},
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(ctx, db); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// migrateDueDateIndex adds the due-date index used by the status
// command. Not part of the base schema: early databases predate it.
func migrateDueDateIndex(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_assignments_due ON assignments(due_date)`)
	return err
}
