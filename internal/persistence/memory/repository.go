// Package memory provides an in-memory repository for local development and
// unit tests, mirroring the Postgres repository's semantics.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/taxonomy"
)

// Repository stores deals and tasks in process memory. It enforces the same
// task-type enumeration the Postgres CHECK constraint does, so allow-list
// drift is observable in tests.
type Repository struct {
	mu    sync.RWMutex
	deals map[string]domain.Deal
	tasks map[string]domain.Task

	// acceptedTypes defaults to the taxonomy activity allow-list; tests
	// shrink it to simulate backend enumeration drift.
	acceptedTypes map[taxonomy.CanonicalType]struct{}
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	accepted := make(map[taxonomy.CanonicalType]struct{})
	for _, t := range taxonomy.AllowList(taxonomy.KindActivity) {
		accepted[t] = struct{}{}
	}
	return &Repository{
		deals:         make(map[string]domain.Deal),
		tasks:         make(map[string]domain.Task),
		acceptedTypes: accepted,
	}
}

// RestrictTypes narrows the accepted task-type enumeration, simulating a
// backend constraint the taxonomy has drifted from.
func (r *Repository) RestrictTypes(types ...taxonomy.CanonicalType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acceptedTypes = make(map[taxonomy.CanonicalType]struct{}, len(types))
	for _, t := range types {
		r.acceptedTypes[t] = struct{}{}
	}
}

// CreateDeal implements domain.DealRepository.
func (r *Repository) CreateDeal(ctx context.Context, deal domain.Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deals[deal.ID] = deal
	return nil
}

// GetDeal implements domain.DealRepository.
func (r *Repository) GetDeal(ctx context.Context, tenantID, dealID string) (*domain.Deal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deal, ok := r.deals[dealID]
	if !ok || deal.TenantID != tenantID {
		return nil, nil
	}
	return &deal, nil
}

// ListDeals implements domain.DealRepository.
func (r *Repository) ListDeals(ctx context.Context, scope domain.ListScope) ([]domain.Deal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Deal, 0, len(r.deals))
	for _, deal := range r.deals {
		if deal.TenantID != scope.TenantID {
			continue
		}
		if scope.AssignedTo != "" {
			if deal.AssignedTo == nil || *deal.AssignedTo != scope.AssignedTo {
				continue
			}
		}
		out = append(out, deal)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyDealMutation implements domain.DealRepository.
func (r *Repository) ApplyDealMutation(ctx context.Context, tenantID, dealID string, mut domain.DealMutation) (*domain.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deal, ok := r.deals[dealID]
	if !ok || deal.TenantID != tenantID {
		return nil, domain.NewNotFound("deal %s not found", dealID)
	}
	updated := mut.Apply(deal)
	r.deals[dealID] = updated
	return &updated, nil
}

// CreateTask implements domain.TaskRepository.
func (r *Repository) CreateTask(ctx context.Context, task domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acceptedTypes[task.Type]; !ok {
		return domain.NewConstraint("task type %q violates task_type check", task.Type)
	}
	r.tasks[task.ID] = task
	return nil
}

// GetTask implements domain.TaskRepository.
func (r *Repository) GetTask(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[taskID]
	if !ok || task.TenantID != tenantID {
		return nil, nil
	}
	return &task, nil
}

// ListTasks implements domain.TaskRepository.
func (r *Repository) ListTasks(ctx context.Context, scope domain.ListScope) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if task.TenantID != scope.TenantID {
			continue
		}
		if scope.AssignedTo != "" {
			if task.AssignedTo == nil || *task.AssignedTo != scope.AssignedTo {
				continue
			}
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ApplyTaskMutation implements domain.TaskRepository.
func (r *Repository) ApplyTaskMutation(ctx context.Context, tenantID, taskID string, mut domain.TaskMutation) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok || task.TenantID != tenantID {
		return nil, domain.NewNotFound("task %s not found", taskID)
	}
	if mut.Type != nil {
		if _, accepted := r.acceptedTypes[*mut.Type]; !accepted {
			return nil, domain.NewConstraint("task type %q violates task_type check", *mut.Type)
		}
	}
	updated := mut.Apply(task)
	r.tasks[taskID] = updated
	return &updated, nil
}
