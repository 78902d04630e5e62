package api

import (
	"context"
	"sync"
	"time"

	"example.com/salesops/internal/board"
	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/stage"
)

type confirmKey struct{}

// withConfirm threads the request's confirmation payload to the board's
// Confirm callback.
func withConfirm(ctx context.Context, req MoveRequest) context.Context {
	return context.WithValue(ctx, confirmKey{}, req)
}

// BoardRegistry owns one board engine per caller scope and entity kind.
// Engines are created lazily from the authoritative repository snapshot and
// kept so that optimistic state and drop generations survive across requests.
// Admin sessions (unscoped) and per-assignee sessions are tracked separately;
// a scoped session never holds rows its caller could not list.
type BoardRegistry struct {
	deals domain.DealRepository
	tasks domain.TaskRepository

	mu         sync.Mutex
	dealBoards map[string]*dealSession
	taskBoards map[string]*taskSession
}

type dealSession struct {
	scope  domain.ListScope
	engine *board.DealEngine
}

type taskSession struct {
	scope  domain.ListScope
	engine *board.TaskEngine
}

func sessionKey(scope domain.ListScope) string {
	return scope.TenantID + "|" + scope.AssignedTo
}

// NewBoardRegistry constructs a registry over the given repositories.
func NewBoardRegistry(deals domain.DealRepository, tasks domain.TaskRepository) *BoardRegistry {
	return &BoardRegistry{
		deals:      deals,
		tasks:      tasks,
		dealBoards: make(map[string]*dealSession),
		taskBoards: make(map[string]*taskSession),
	}
}

// DealBoard returns the caller's deal board, seeding it on first use.
func (r *BoardRegistry) DealBoard(ctx context.Context, scope domain.ListScope) (*board.DealEngine, error) {
	key := sessionKey(scope)

	r.mu.Lock()
	if session, ok := r.dealBoards[key]; ok {
		r.mu.Unlock()
		return session.engine, nil
	}
	r.mu.Unlock()

	deals, err := r.deals.ListDeals(ctx, scope)
	if err != nil {
		return nil, err
	}

	confirm := func(ctx context.Context, d domain.Deal, target domain.Stage) (stage.Input, bool, error) {
		req, ok := ctx.Value(confirmKey{}).(MoveRequest)
		if !ok || req.Confirm == nil {
			if ok && req.Cancel {
				return stage.Input{}, false, nil
			}
			return stage.Input{}, false, board.ErrConfirmationRequired
		}
		if req.Cancel {
			return stage.Input{}, false, nil
		}
		return stage.Input{
			ClosedDate: req.Confirm.ClosedDate,
			LostDate:   req.Confirm.LostDate,
			LossReason: req.Confirm.LossReason,
			Now:        time.Now().UTC(),
		}, true, nil
	}

	persist := func(ctx context.Context, id string, mut domain.DealMutation) (*domain.Deal, error) {
		return r.deals.ApplyDealMutation(ctx, scope.TenantID, id, mut)
	}

	engine := board.NewDealBoard(deals, confirm, persist)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.dealBoards[key]; ok {
		// Raced with another request; keep the first engine.
		engine.Close()
		return existing.engine, nil
	}
	r.dealBoards[key] = &dealSession{scope: scope, engine: engine}
	return engine, nil
}

// TaskBoard returns the caller's task board, seeding it on first use.
func (r *BoardRegistry) TaskBoard(ctx context.Context, scope domain.ListScope) (*board.TaskEngine, error) {
	key := sessionKey(scope)

	r.mu.Lock()
	if session, ok := r.taskBoards[key]; ok {
		r.mu.Unlock()
		return session.engine, nil
	}
	r.mu.Unlock()

	tasks, err := r.tasks.ListTasks(ctx, scope)
	if err != nil {
		return nil, err
	}

	persist := func(ctx context.Context, id string, mut domain.TaskMutation) (*domain.Task, error) {
		return r.tasks.ApplyTaskMutation(ctx, scope.TenantID, id, mut)
	}

	engine := board.NewTaskBoard(tasks, persist)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.taskBoards[key]; ok {
		engine.Close()
		return existing.engine, nil
	}
	r.taskBoards[key] = &taskSession{scope: scope, engine: engine}
	return engine, nil
}

// RefreshDealBoard re-seeds every active deal board for the tenant after an
// out-of-band write, such as a create or an explicit stage transition. Each
// session is re-listed under its own scope. No-op when the tenant has no
// board sessions.
func (r *BoardRegistry) RefreshDealBoard(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	sessions := make([]*dealSession, 0, len(r.dealBoards))
	for _, session := range r.dealBoards {
		if session.scope.TenantID == tenantID {
			sessions = append(sessions, session)
		}
	}
	r.mu.Unlock()

	for _, session := range sessions {
		deals, err := r.deals.ListDeals(ctx, session.scope)
		if err != nil {
			return err
		}
		session.engine.Replace(deals)
	}
	return nil
}

// RefreshTaskBoard re-seeds every active task board for the tenant after an
// out-of-band write.
func (r *BoardRegistry) RefreshTaskBoard(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	sessions := make([]*taskSession, 0, len(r.taskBoards))
	for _, session := range r.taskBoards {
		if session.scope.TenantID == tenantID {
			sessions = append(sessions, session)
		}
	}
	r.mu.Unlock()

	for _, session := range sessions {
		tasks, err := r.tasks.ListTasks(ctx, session.scope)
		if err != nil {
			return err
		}
		session.engine.Replace(tasks)
	}
	return nil
}

// CloseDealBoard tears down the caller's deal board session. The next access
// reseeds from the repository.
func (r *BoardRegistry) CloseDealBoard(scope domain.ListScope) {
	key := sessionKey(scope)
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.dealBoards[key]; ok {
		session.engine.Close()
		delete(r.dealBoards, key)
	}
}

// CloseTaskBoard tears down the caller's task board session.
func (r *BoardRegistry) CloseTaskBoard(scope domain.ListScope) {
	key := sessionKey(scope)
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.taskBoards[key]; ok {
		session.engine.Close()
		delete(r.taskBoards, key)
	}
}
