// Package board implements the drag-and-drop synchronization engine shared by
// the deal board (columns = stages) and the task board (columns = statuses):
// optimistic apply, persist, and rollback on failure.
package board

import (
	"context"
	"errors"
	"sync"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/observability"
)

// ErrConfirmationRequired is returned when a drop targets a gated column and
// no Confirm callback was configured to collect the required metadata.
var ErrConfirmationRequired = errors.New("column requires confirmation metadata")

// ErrClosed is returned when a drop is issued after the board was torn down.
var ErrClosed = errors.New("board is closed")

// Config parameterizes the engine over an entity type T and its partial
// mutation type M.
type Config[T any, M any] struct {
	// Name labels the board in metrics and diagnostics.
	Name string
	// Columns is the set of valid column ids.
	Columns []string
	// KeyOf extracts an entity's identifier.
	KeyOf func(T) string
	// ColumnOf extracts an entity's current column.
	ColumnOf func(T) string
	// Move produces the mutation relocating an entity to a new column.
	Move func(entity T, column string) (M, error)
	// Apply folds a mutation into a value copy of an entity. It is the same
	// projection the persistence layer performs, applied locally for the
	// optimistic update.
	Apply func(entity T, mut M) T
	// ConfirmColumns marks columns whose moves need caller-supplied metadata
	// before the mutation may proceed.
	ConfirmColumns map[string]bool
	// Confirm collects the metadata-bearing mutation for a gated column.
	// Returning ok=false cancels the drag; the collection is left unchanged
	// as if the drag never happened.
	Confirm func(ctx context.Context, entity T, column string) (M, bool, error)
	// Persist applies the partial update to the backing store. A non-nil
	// entity in the result is absorbed into local state to pick up
	// server-side derived fields.
	Persist func(ctx context.Context, id string, mut M) (*T, error)
}

// Engine owns the in-memory collection backing one board instance. The
// collection is never shared between boards; cross-board consistency comes
// from each board re-fetching from its source.
//
// Overlapping drops are tolerated: for a single entity the last completion
// wins. Completion order is intentionally not sequenced — only one column
// move per entity is meaningful at a time, and rapid re-drags are rare.
type Engine[T any, M any] struct {
	cfg Config[T, M]

	mu     sync.Mutex
	items  []T
	gen    map[string]uint64
	closed bool
}

// New constructs an engine seeded with the authoritative snapshot.
func New[T any, M any](cfg Config[T, M], items []T) *Engine[T, M] {
	e := &Engine[T, M]{cfg: cfg, gen: make(map[string]uint64)}
	e.items = append([]T(nil), items...)
	return e
}

// Snapshot returns a copy of the current collection.
func (e *Engine[T, M]) Snapshot() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.items...)
}

// Replace swaps in a freshly fetched collection.
func (e *Engine[T, M]) Replace(items []T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append([]T(nil), items...)
}

// Close tears the board down. In-flight persist results are discarded rather
// than written to a closed board.
func (e *Engine[T, M]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Columns groups the current collection by column id, preserving collection
// order inside each column. Every configured column is present even when
// empty; columns are recomputed from the collection and never persisted.
func (e *Engine[T, M]) Columns() map[string][]T {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]T, len(e.cfg.Columns))
	for _, col := range e.cfg.Columns {
		out[col] = []T{}
	}
	for _, item := range e.items {
		col := e.cfg.ColumnOf(item)
		out[col] = append(out[col], item)
	}
	return out
}

// Drop moves the dragged entity into the target column, applying the change
// optimistically and reconciling with the persist contract. The target may be
// a column id or a sibling entity id, in which case it resolves to the column
// currently containing that sibling.
//
// Unknown ids and same-column drops are no-ops. On persist failure the
// collection is restored deep-equal to its pre-drop state, except that a
// not-found failure drops the vanished entity from local state instead.
func (e *Engine[T, M]) Drop(ctx context.Context, draggedID, target string) ([]T, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}

	column, ok := e.resolveColumnLocked(target)
	if !ok {
		snapshot := append([]T(nil), e.items...)
		e.mu.Unlock()
		return snapshot, domain.NewValidation("unknown board column %q", target)
	}

	idx := e.indexOfLocked(draggedID)
	if idx < 0 || e.cfg.ColumnOf(e.items[idx]) == column {
		snapshot := append([]T(nil), e.items...)
		e.mu.Unlock()
		return snapshot, nil
	}
	entity := e.items[idx]
	e.mu.Unlock()

	// Build the mutation outside the lock: confirmation may block on the
	// caller collecting metadata.
	var mut M
	if e.cfg.ConfirmColumns[column] {
		if e.cfg.Confirm == nil {
			return e.Snapshot(), ErrConfirmationRequired
		}
		confirmed, proceed, err := e.cfg.Confirm(ctx, entity, column)
		if err != nil {
			return e.Snapshot(), err
		}
		if !proceed {
			// Cancelled: the drag never happened.
			return e.Snapshot(), nil
		}
		mut = confirmed
	} else {
		built, err := e.cfg.Move(entity, column)
		if err != nil {
			return e.Snapshot(), err
		}
		mut = built
	}

	before, generation, applied := e.applyOptimistic(draggedID, mut)
	if !applied {
		return e.Snapshot(), nil
	}

	refreshed, err := e.cfg.Persist(ctx, draggedID, mut)
	if err != nil {
		e.reconcileFailure(draggedID, generation, before, err)
		return e.Snapshot(), err
	}

	e.reconcileSuccess(draggedID, generation, refreshed)
	return e.Snapshot(), nil
}

// applyOptimistic folds the mutation into local state and returns the
// entity's pre-drop value alongside the generation guarding this drop.
func (e *Engine[T, M]) applyOptimistic(id string, mut M) (before T, generation uint64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOfLocked(id)
	if idx < 0 {
		var zero T
		return zero, 0, false
	}
	before = e.items[idx]
	e.items[idx] = e.cfg.Apply(e.items[idx], mut)
	e.gen[id]++
	return before, e.gen[id], true
}

func (e *Engine[T, M]) reconcileSuccess(id string, generation uint64, refreshed *T) {
	if refreshed == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.gen[id] != generation {
		return
	}
	if idx := e.indexOfLocked(id); idx >= 0 {
		e.items[idx] = *refreshed
	}
}

func (e *Engine[T, M]) reconcileFailure(id string, generation uint64, before T, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.gen[id] != generation {
		// A later drop owns this entity now; its completion wins.
		return
	}

	idx := e.indexOfLocked(id)
	if idx < 0 {
		return
	}

	if domain.CategoryOf(cause) == domain.FailureNotFound {
		// Deleted concurrently server-side: drop it locally.
		e.items = append(e.items[:idx], e.items[idx+1:]...)
		return
	}

	// Only the dragged entity changed during the optimistic apply and its
	// index is stable, so restoring it restores the whole collection to its
	// pre-drop value.
	e.items[idx] = before
	observability.RecordBoardRollback(e.cfg.Name)
}

func (e *Engine[T, M]) resolveColumnLocked(target string) (string, bool) {
	for _, col := range e.cfg.Columns {
		if col == target {
			return col, true
		}
	}
	// Dropped onto a sibling card: the target is the column containing it.
	if idx := e.indexOfLocked(target); idx >= 0 {
		return e.cfg.ColumnOf(e.items[idx]), true
	}
	return "", false
}

func (e *Engine[T, M]) indexOfLocked(id string) int {
	for i, item := range e.items {
		if e.cfg.KeyOf(item) == id {
			return i
		}
	}
	return -1
}
