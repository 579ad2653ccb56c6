// Package memory implements an in-memory snapshot store. It backs
// tests and dry runs; nothing survives process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gradewatch/gradewatch/internal/model"
	"github.com/gradewatch/gradewatch/internal/storage"
)

// MemoryStore keeps the current snapshot in maps keyed the same way
// the sqlite backend keys its tables.
type MemoryStore struct {
	mu          sync.Mutex
	timestamp   *time.Time
	assignments map[string]storage.Assignment
	categories  map[[2]string]model.Category // keyed (category_id, period_id), no assignments
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]storage.Assignment),
		categories:  make(map[[2]string]model.Category),
	}
}

func (m *MemoryStore) LatestTimestamp(ctx context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timestamp == nil {
		return nil, nil
	}
	ts := *m.timestamp
	return &ts, nil
}

func (m *MemoryStore) GetAssignment(ctx context.Context, assignmentID string) (*storage.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[assignmentID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) GetCategory(ctx context.Context, categoryID, periodID string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat, ok := m.categories[[2]string{categoryID, periodID}]
	if !ok {
		return nil, nil
	}
	return &cat, nil
}

func (m *MemoryStore) IterAssignments(ctx context.Context, fn func(a storage.Assignment) error) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.assignments))
	for id := range m.assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshot := make([]storage.Assignment, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, m.assignments[id])
	}
	m.mu.Unlock()

	for _, a := range snapshot {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked(snap)
	return nil
}

func (m *MemoryStore) replaceLocked(snap *model.Snapshot) {
	m.assignments = make(map[string]storage.Assignment)
	m.categories = make(map[[2]string]model.Category)
	for _, section := range snap.Sections {
		for _, period := range section.Periods {
			for _, category := range period.Categories {
				m.categories[[2]string{category.CategoryID, period.PeriodID}] = model.Category{
					CategoryID: category.CategoryID,
					Name:       category.Name,
					Weight:     category.Weight,
				}
				for _, a := range category.Assignments {
					m.assignments[a.AssignmentID] = storage.Assignment{
						Assignment: a,
						CategoryID: category.CategoryID,
						PeriodID:   period.PeriodID,
					}
				}
			}
		}
	}
	ts := snap.Timestamp
	m.timestamp = &ts
}

func (m *MemoryStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timestamp = nil
	m.assignments = make(map[string]storage.Assignment)
	m.categories = make(map[[2]string]model.Category)
	return nil
}

type memoryTx struct {
	store *MemoryStore
	// staged state; applied on commit
	snap *model.Snapshot
}

func (t *memoryTx) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	t.snap = snap
	return nil
}

func (t *memoryTx) GetAssignment(ctx context.Context, assignmentID string) (*storage.Assignment, error) {
	if t.snap != nil {
		// read-your-writes against the staged snapshot
		for _, section := range t.snap.Sections {
			for _, period := range section.Periods {
				for _, category := range period.Categories {
					for _, a := range category.Assignments {
						if a.AssignmentID == assignmentID {
							return &storage.Assignment{Assignment: a, CategoryID: category.CategoryID, PeriodID: period.PeriodID}, nil
						}
					}
				}
			}
		}
		return nil, nil
	}
	return t.store.GetAssignment(ctx, assignmentID)
}

// RunInTransaction stages mutations and applies them only when fn
// returns nil, mirroring the sqlite backend's commit semantics.
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx := &memoryTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.snap != nil {
		m.mu.Lock()
		m.replaceLocked(tx.snap)
		m.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Path() string { return "" }

var _ storage.Store = (*MemoryStore)(nil)
