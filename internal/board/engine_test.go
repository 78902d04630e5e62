package board

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/stage"
)

type persistCall struct {
	id  string
	mut domain.TaskMutation
}

type stubTaskStore struct {
	mu    sync.Mutex
	calls []persistCall
	err   error
	block chan struct{}
}

func (s *stubTaskStore) persist(ctx context.Context, id string, mut domain.TaskMutation) (*domain.Task, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.calls = append(s.calls, persistCall{id: id, mut: mut})
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func sampleTasks() []domain.Task {
	now := time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Task{
		{ID: "task-1", TenantID: "t1", Title: "Send quote", Status: domain.TaskStatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "task-2", TenantID: "t1", Title: "Call back", Status: domain.TaskStatusInProgress, CreatedAt: now, UpdatedAt: now},
		{ID: "task-3", TenantID: "t1", Title: "File paperwork", Status: domain.TaskStatusCompleted, CreatedAt: now, UpdatedAt: now},
	}
}

func TestDropMovesTaskOptimistically(t *testing.T) {
	store := &stubTaskStore{}
	engine := NewTaskBoard(sampleTasks(), store.persist)

	items, err := engine.Drop(context.Background(), "task-1", string(domain.TaskStatusCompleted))
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, items[0].Status)
	require.Len(t, store.calls, 1)
	require.Equal(t, "task-1", store.calls[0].id)
	require.Equal(t, domain.TaskStatusCompleted, *store.calls[0].mut.Status)
}

func TestDropRollsBackOnPersistFailure(t *testing.T) {
	store := &stubTaskStore{err: domain.NewTransient("network down")}
	before := sampleTasks()
	engine := NewTaskBoard(before, store.persist)

	items, err := engine.Drop(context.Background(), "task-1", string(domain.TaskStatusCompleted))
	require.Error(t, err)
	require.Equal(t, domain.FailureTransient, domain.CategoryOf(err))
	// Every entity restored to its pre-drop value, not only the dragged one.
	require.Equal(t, before, items)
	require.Equal(t, before, engine.Snapshot())
}

func TestDropRemovesEntityOnNotFound(t *testing.T) {
	store := &stubTaskStore{err: domain.NewNotFound("task deleted")}
	engine := NewTaskBoard(sampleTasks(), store.persist)

	items, err := engine.Drop(context.Background(), "task-1", string(domain.TaskStatusCompleted))
	require.Error(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.NotEqual(t, "task-1", item.ID)
	}
}

func TestDropNoOps(t *testing.T) {
	store := &stubTaskStore{}
	before := sampleTasks()
	engine := NewTaskBoard(before, store.persist)

	// Unknown dragged id.
	items, err := engine.Drop(context.Background(), "task-99", string(domain.TaskStatusCompleted))
	require.NoError(t, err)
	require.Equal(t, before, items)

	// Already in the target column.
	items, err = engine.Drop(context.Background(), "task-1", string(domain.TaskStatusPending))
	require.NoError(t, err)
	require.Equal(t, before, items)

	require.Empty(t, store.calls)
}

func TestDropOntoSiblingResolvesColumn(t *testing.T) {
	store := &stubTaskStore{}
	engine := NewTaskBoard(sampleTasks(), store.persist)

	// task-3 sits in completed; dropping onto it targets that column.
	items, err := engine.Drop(context.Background(), "task-1", "task-3")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, items[0].Status)
}

func TestDropUnknownTargetFailsValidation(t *testing.T) {
	store := &stubTaskStore{}
	before := sampleTasks()
	engine := NewTaskBoard(before, store.persist)

	items, err := engine.Drop(context.Background(), "task-1", "archived")
	require.Error(t, err)
	require.Equal(t, domain.FailureValidation, domain.CategoryOf(err))
	require.Equal(t, before, items)
	require.Empty(t, store.calls)
}

func TestCloseDiscardsInFlightCompletion(t *testing.T) {
	store := &stubTaskStore{err: domain.NewTransient("slow failure"), block: make(chan struct{})}
	engine := NewTaskBoard(sampleTasks(), store.persist)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Drop(context.Background(), "task-1", string(domain.TaskStatusCompleted))
	}()

	// Tear the board down while the persist call is in flight; the failure
	// completion must be discarded without touching closed state.
	engine.Close()
	close(store.block)
	<-done

	_, err := engine.Drop(context.Background(), "task-2", string(domain.TaskStatusCompleted))
	require.ErrorIs(t, err, ErrClosed)
}

func TestOverlappingDropsLastCompletionWins(t *testing.T) {
	blocker := make(chan struct{})
	var calls int32
	persist := func(ctx context.Context, id string, mut domain.TaskMutation) (*domain.Task, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-blocker
			return nil, domain.NewTransient("stale failure")
		}
		return nil, nil
	}
	engine := NewTaskBoard(sampleTasks(), persist)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Drop(context.Background(), "task-1", string(domain.TaskStatusInProgress))
	}()

	// Give the first drop time to apply optimistically and park in persist.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)

	// Re-drag the same task before the first persist resolves.
	_, err := engine.Drop(context.Background(), "task-1", string(domain.TaskStatusCompleted))
	require.NoError(t, err)

	// Let the stale failure resolve; it must not revert the newer move.
	close(blocker)
	<-done

	for _, item := range engine.Snapshot() {
		if item.ID == "task-1" {
			require.Equal(t, domain.TaskStatusCompleted, item.Status)
		}
	}
}

func sampleDeals() []domain.Deal {
	now := time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Deal{
		{ID: "deal-1", TenantID: "t1", Title: "Retrofit", Value: 1000, Stage: domain.StageProposal, CreatedAt: now, UpdatedAt: now},
		{ID: "deal-2", TenantID: "t1", Title: "Expansion", Value: 2500, Stage: domain.StageDiscovery, CreatedAt: now, UpdatedAt: now},
	}
}

func TestDealBoardGatesTerminalColumns(t *testing.T) {
	var persisted []domain.DealMutation
	persist := func(ctx context.Context, id string, mut domain.DealMutation) (*domain.Deal, error) {
		persisted = append(persisted, mut)
		return nil, nil
	}

	// Cancelled confirmation: the drag never happened.
	cancel := func(ctx context.Context, d domain.Deal, target domain.Stage) (stage.Input, bool, error) {
		return stage.Input{}, false, nil
	}
	before := sampleDeals()
	engine := NewDealBoard(before, cancel, persist)

	items, err := engine.Drop(context.Background(), "deal-1", string(domain.StageWon))
	require.NoError(t, err)
	require.Equal(t, before, items)
	require.Empty(t, persisted)
}

func TestDealBoardLostWithoutReasonNeverPersists(t *testing.T) {
	var persisted []domain.DealMutation
	persist := func(ctx context.Context, id string, mut domain.DealMutation) (*domain.Deal, error) {
		persisted = append(persisted, mut)
		return nil, nil
	}
	confirm := func(ctx context.Context, d domain.Deal, target domain.Stage) (stage.Input, bool, error) {
		return stage.Input{LossReason: ""}, true, nil
	}
	before := sampleDeals()
	engine := NewDealBoard(before, confirm, persist)

	items, err := engine.Drop(context.Background(), "deal-1", string(domain.StageLost))
	require.Error(t, err)
	require.Equal(t, domain.FailureValidation, domain.CategoryOf(err))
	require.Equal(t, before, items)
	require.Empty(t, persisted)
}

func TestDealBoardConfirmedWinCarriesMetadata(t *testing.T) {
	closed := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	var persisted []domain.DealMutation
	persist := func(ctx context.Context, id string, mut domain.DealMutation) (*domain.Deal, error) {
		persisted = append(persisted, mut)
		return nil, nil
	}
	confirm := func(ctx context.Context, d domain.Deal, target domain.Stage) (stage.Input, bool, error) {
		return stage.Input{ClosedDate: &closed}, true, nil
	}
	engine := NewDealBoard(sampleDeals(), confirm, persist)

	items, err := engine.Drop(context.Background(), "deal-1", string(domain.StageWon))
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.Equal(t, domain.StageWon, *persisted[0].Stage)
	require.Equal(t, closed, *persisted[0].ClosedDate)
	require.Equal(t, domain.StageWon, items[0].Stage)
	require.Equal(t, closed, *items[0].ClosedDate)
}

func TestColumnsGroupsEveryConfiguredColumn(t *testing.T) {
	engine := NewTaskBoard(sampleTasks(), (&stubTaskStore{}).persist)

	columns := engine.Columns()
	require.Len(t, columns, 3)
	require.Len(t, columns[string(domain.TaskStatusPending)], 1)
	require.Len(t, columns[string(domain.TaskStatusInProgress)], 1)
	require.Len(t, columns[string(domain.TaskStatusCompleted)], 1)
}
