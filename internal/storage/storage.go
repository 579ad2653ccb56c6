// Package storage defines the interface for snapshot storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gradewatch/gradewatch/internal/model"
)

// ErrLocked is returned when the store's file lock is held by another
// process. Running two instances against the same store is undefined,
// so open fails instead.
var ErrLocked = errors.New("store is locked by another process")

// Assignment is a stored assignment together with its parent keys,
// as returned by point lookups during diffing.
type Assignment struct {
	model.Assignment
	CategoryID string
	PeriodID   string
}

// Tx exposes the subset of store operations that execute within a
// single transaction.
//
// Transaction semantics:
//   - If the callback returns nil, the transaction is committed
//   - If the callback returns an error, the transaction is rolled back
//   - If the callback panics, the transaction is rolled back and the
//     panic is re-raised
//   - SQLite uses BEGIN IMMEDIATE to acquire the write lock early
type Tx interface {
	// ReplaceAll swaps the stored snapshot for the given one. Either
	// the whole new snapshot is visible after commit, or the old one
	// remains untouched.
	ReplaceAll(ctx context.Context, snap *model.Snapshot) error

	// GetAssignment returns the stored assignment for read-your-writes
	// within the transaction, or nil when absent.
	GetAssignment(ctx context.Context, assignmentID string) (*Assignment, error)
}

// Store is the durable, ID-keyed home of the current snapshot. It
// holds exactly one logical snapshot plus a meta record of its
// observation timestamp; history lives in the change journal, not
// here. Single-writer: the pipeline orchestrator is the only mutator.
type Store interface {
	// LatestTimestamp returns the observation timestamp of the stored
	// snapshot, or nil when the store is empty.
	LatestTimestamp(ctx context.Context) (*time.Time, error)

	// GetAssignment returns the stored assignment with its parent
	// category/period keys, or nil when no such assignment exists.
	GetAssignment(ctx context.Context, assignmentID string) (*Assignment, error)

	// GetCategory returns the category for the compound key, without
	// its assignments, or nil when absent.
	GetCategory(ctx context.Context, categoryID, periodID string) (*model.Category, error)

	// IterAssignments streams every stored assignment, ordered by
	// assignment ID. Returning an error from fn stops the iteration.
	IterAssignments(ctx context.Context, fn func(a Assignment) error) error

	// ReplaceAll atomically replaces the entire stored snapshot.
	ReplaceAll(ctx context.Context, snap *model.Snapshot) error

	// ClearAll wipes every row including the meta record. Test-only.
	ClearAll(ctx context.Context) error

	// RunInTransaction executes fn within a single transaction.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Close() error

	// Path returns the backing file path ("" for in-memory backends).
	Path() string
}
