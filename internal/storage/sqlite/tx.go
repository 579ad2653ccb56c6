package sqlite

import (
	"context"
	"fmt"

	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/storage"
)

type sqliteTx struct {
	conn querier
}

func (t *sqliteTx) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	return replaceAll(ctx, t.conn, snap)
}

func (t *sqliteTx) GetAssignment(ctx context.Context, assignmentID string) (*storage.Assignment, error) {
	return getAssignment(ctx, t.conn, assignmentID)
}

// RunInTransaction executes fn within a single transaction. BEGIN
// IMMEDIATE acquires the write lock up front so competing transactions
// serialize instead of deadlocking. A nil return from fn commits; an
// error or panic rolls back.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// ReplaceAll atomically swaps the stored snapshot for snap. On any
// error the previous snapshot remains fully intact.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.ReplaceAll(ctx, snap)
	})
}

// ClearAll wipes every row including the meta record. Test-only.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		stx := tx.(*sqliteTx)
		for _, table := range []string{"assignments", "categories", "periods", "sections", "meta"} {
			if _, err := stx.conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}
