package domain

import "context"

// ListScope restricts which rows a fetch returns. An empty AssignedTo means
// the caller may see every row for the tenant.
type ListScope struct {
	TenantID   string
	AssignedTo string
}

// DealRepository captures deal persistence operations.
type DealRepository interface {
	CreateDeal(ctx context.Context, deal Deal) error
	GetDeal(ctx context.Context, tenantID, dealID string) (*Deal, error)
	ListDeals(ctx context.Context, scope ListScope) ([]Deal, error)
	ApplyDealMutation(ctx context.Context, tenantID, dealID string, mut DealMutation) (*Deal, error)
}

// TaskRepository captures task persistence operations.
type TaskRepository interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, tenantID, taskID string) (*Task, error)
	ListTasks(ctx context.Context, scope ListScope) ([]Task, error)
	ApplyTaskMutation(ctx context.Context, tenantID, taskID string, mut TaskMutation) (*Task, error)
}
