// Package postgres provides Postgres-backed persistence for deals, tasks,
// and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/events"
	"example.com/salesops/internal/observability"
)

const dealColumns = `deal_id, tenant_id, title, value, stage, priority, channel, assigned_to, closed_date, lost_date, loss_reason, created_at, updated_at`

const taskColumns = `task_id, tenant_id, title, description, task_type, status, priority, due_at, deal_id, company_id, contact_id, assigned_to, created_at, updated_at`

// Repository persists deals, tasks, and their outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateDeal persists the deal and records its outbox event in one
// transaction.
func (r *Repository) CreateDeal(ctx context.Context, deal domain.Deal) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", deal.TenantID); err != nil {
		return classify(err)
	}

	const insertDeal = `INSERT INTO deals (` + dealColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = tx.Exec(ctx, insertDeal,
		deal.ID,
		deal.TenantID,
		deal.Title,
		deal.Value,
		deal.Stage,
		deal.Priority,
		nullIfEmpty(deal.Channel),
		deal.AssignedTo,
		deal.ClosedDate,
		deal.LostDate,
		nullIfEmpty(deal.LossReason),
		deal.CreatedAt,
		deal.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}

	if err = insertOutbox(ctx, tx, deal.TenantID, "deal", deal.ID, "deal.created", events.DealCreated{
		DealID:     deal.ID,
		TenantID:   deal.TenantID,
		Title:      deal.Title,
		Value:      deal.Value,
		Stage:      string(deal.Stage),
		Channel:    deal.Channel,
		AssignedTo: deref(deal.AssignedTo),
		CreatedAt:  deal.CreatedAt,
	}); err != nil {
		return classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(err)
	}
	observability.RecordDealPersisted(deal.UpdatedAt)
	return nil
}

// GetDeal retrieves a deal by ID, or nil when absent.
func (r *Repository) GetDeal(ctx context.Context, tenantID, dealID string) (*domain.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE tenant_id=$1 AND deal_id=$2`

	row, err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) (any, error) {
		deal, scanErr := scanDeal(tx.QueryRow(ctx, query, tenantID, dealID))
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return (*domain.Deal)(nil), nil
			}
			return nil, scanErr
		}
		return deal, nil
	})
	if err != nil {
		return nil, err
	}
	return row.(*domain.Deal), nil
}

// ListDeals returns the tenant's deals, optionally restricted to one
// assignee, ordered by creation time.
func (r *Repository) ListDeals(ctx context.Context, scope domain.ListScope) ([]domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE tenant_id=$1`
	args := []any{scope.TenantID}
	if scope.AssignedTo != "" {
		query += ` AND assigned_to=$2`
		args = append(args, scope.AssignedTo)
	}
	query += ` ORDER BY created_at, deal_id`

	result, err := r.withTenant(ctx, scope.TenantID, func(tx pgx.Tx) (any, error) {
		rows, queryErr := tx.Query(ctx, query, args...)
		if queryErr != nil {
			return nil, queryErr
		}
		defer rows.Close()

		deals := make([]domain.Deal, 0)
		for rows.Next() {
			deal, scanErr := scanDeal(rows)
			if scanErr != nil {
				return nil, scanErr
			}
			deals = append(deals, *deal)
		}
		return deals, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Deal), nil
}

// ApplyDealMutation applies a partial update and records a stage-changed
// outbox event when the stage moved, all in one transaction.
func (r *Repository) ApplyDealMutation(ctx context.Context, tenantID, dealID string, mut domain.DealMutation) (*domain.Deal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, classify(err)
	}

	sets := []string{"updated_at=$3"}
	args := []any{tenantID, dealID, mut.UpdatedAt}
	next := 4
	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, next))
		args = append(args, value)
		next++
	}
	if mut.Stage != nil {
		appendSet("stage", *mut.Stage)
	}
	if mut.ClosedDate != nil {
		appendSet("closed_date", *mut.ClosedDate)
	}
	if mut.LostDate != nil {
		appendSet("lost_date", *mut.LostDate)
	}
	if mut.LossReason != nil {
		appendSet("loss_reason", *mut.LossReason)
	}

	query := `UPDATE deals SET ` + strings.Join(sets, ", ") +
		` WHERE tenant_id=$1 AND deal_id=$2 RETURNING ` + dealColumns

	deal, err := scanDeal(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.NewNotFound("deal %s not found", dealID)
			return nil, err
		}
		err = classify(err)
		return nil, err
	}

	if mut.Stage != nil {
		if err = insertOutbox(ctx, tx, tenantID, "deal", dealID, "deal.stage_changed", events.DealStageChanged{
			DealID:     deal.ID,
			TenantID:   deal.TenantID,
			Stage:      string(deal.Stage),
			Value:      deal.Value,
			Channel:    deal.Channel,
			ClosedDate: deal.ClosedDate,
			LostDate:   deal.LostDate,
			LossReason: deal.LossReason,
			OccurredAt: deal.UpdatedAt,
		}); err != nil {
			err = classify(err)
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	observability.RecordDealPersisted(deal.UpdatedAt)
	return deal, nil
}

// CreateTask persists the task and records its outbox event in one
// transaction.
func (r *Repository) CreateTask(ctx context.Context, task domain.Task) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", task.TenantID); err != nil {
		return classify(err)
	}

	const insertTask = `INSERT INTO tasks (` + taskColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err = tx.Exec(ctx, insertTask,
		task.ID,
		task.TenantID,
		task.Title,
		nullIfEmpty(task.Description),
		task.Type,
		task.Status,
		task.Priority,
		task.Due,
		task.DealID,
		task.CompanyID,
		task.ContactID,
		task.AssignedTo,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return classify(err)
	}

	if err = insertOutbox(ctx, tx, task.TenantID, "task", task.ID, "activity.logged", events.ActivityLogged{
		TaskID:     task.ID,
		TenantID:   task.TenantID,
		Title:      task.Title,
		Type:       string(task.Type),
		Status:     string(task.Status),
		Priority:   string(task.Priority),
		DealID:     deref(task.DealID),
		AssignedTo: deref(task.AssignedTo),
		Due:        task.Due,
		CreatedAt:  task.CreatedAt,
	}); err != nil {
		return classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(err)
	}
	observability.RecordTaskPersisted(task.UpdatedAt)
	return nil
}

// GetTask retrieves a task by ID, or nil when absent.
func (r *Repository) GetTask(ctx context.Context, tenantID, taskID string) (*domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id=$1 AND task_id=$2`

	row, err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) (any, error) {
		task, scanErr := scanTask(tx.QueryRow(ctx, query, tenantID, taskID))
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return (*domain.Task)(nil), nil
			}
			return nil, scanErr
		}
		return task, nil
	})
	if err != nil {
		return nil, err
	}
	return row.(*domain.Task), nil
}

// ListTasks returns the tenant's tasks, optionally restricted to one
// assignee, ordered by creation time.
func (r *Repository) ListTasks(ctx context.Context, scope domain.ListScope) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id=$1`
	args := []any{scope.TenantID}
	if scope.AssignedTo != "" {
		query += ` AND assigned_to=$2`
		args = append(args, scope.AssignedTo)
	}
	query += ` ORDER BY created_at, task_id`

	result, err := r.withTenant(ctx, scope.TenantID, func(tx pgx.Tx) (any, error) {
		rows, queryErr := tx.Query(ctx, query, args...)
		if queryErr != nil {
			return nil, queryErr
		}
		defer rows.Close()

		tasks := make([]domain.Task, 0)
		for rows.Next() {
			task, scanErr := scanTask(rows)
			if scanErr != nil {
				return nil, scanErr
			}
			tasks = append(tasks, *task)
		}
		return tasks, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Task), nil
}

// ApplyTaskMutation applies a partial update to a task.
func (r *Repository) ApplyTaskMutation(ctx context.Context, tenantID, taskID string, mut domain.TaskMutation) (*domain.Task, error) {
	sets := []string{"updated_at=$3"}
	args := []any{tenantID, taskID, mut.UpdatedAt}
	next := 4
	if mut.Status != nil {
		sets = append(sets, fmt.Sprintf("status=$%d", next))
		args = append(args, *mut.Status)
		next++
	}
	if mut.Type != nil {
		sets = append(sets, fmt.Sprintf("task_type=$%d", next))
		args = append(args, *mut.Type)
		next++
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE tenant_id=$1 AND task_id=$2 RETURNING ` + taskColumns

	row, err := r.withTenant(ctx, tenantID, func(tx pgx.Tx) (any, error) {
		task, scanErr := scanTask(tx.QueryRow(ctx, query, args...))
		if scanErr != nil {
			return nil, scanErr
		}
		return task, nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("task %s not found", taskID)
		}
		return nil, err
	}
	task := row.(*domain.Task)
	observability.RecordTaskPersisted(task.UpdatedAt)
	return task, nil
}

// withTenant runs fn inside a transaction with the tenant GUC set.
func (r *Repository) withTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) (any, error)) (any, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, classify(err)
	}

	result, err := fn(tx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, len(body))

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKey(tenantID, aggregateID),
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	PartitionKey  func(tenantID, aggregateID string) string
}

var eventCatalog = map[string]EventMetadata{
	"deal.created": {
		Topic:         "deal_events",
		SchemaSubject: "deal_events-value",
		PartitionKey: func(tenantID, aggregateID string) string {
			return fmt.Sprintf("%s:%s", tenantID, aggregateID)
		},
	},
	"deal.stage_changed": {
		Topic:         "deal_stage_changed",
		SchemaSubject: "deal_stage_changed-value",
		PartitionKey: func(tenantID, aggregateID string) string {
			return aggregateID
		},
	},
	"activity.logged": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
		PartitionKey: func(tenantID, aggregateID string) string {
			return fmt.Sprintf("%s:%s", tenantID, aggregateID)
		},
	},
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*domain.Deal, error) {
	var deal domain.Deal
	var channel, lossReason *string
	if err := row.Scan(
		&deal.ID, &deal.TenantID, &deal.Title, &deal.Value, &deal.Stage,
		&deal.Priority, &channel, &deal.AssignedTo, &deal.ClosedDate,
		&deal.LostDate, &lossReason, &deal.CreatedAt, &deal.UpdatedAt,
	); err != nil {
		return nil, err
	}
	deal.Channel = deref(channel)
	deal.LossReason = deref(lossReason)
	return &deal, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var description *string
	if err := row.Scan(
		&task.ID, &task.TenantID, &task.Title, &description, &task.Type,
		&task.Status, &task.Priority, &task.Due, &task.DealID,
		&task.CompanyID, &task.ContactID, &task.AssignedTo,
		&task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Description = deref(description)
	return &task, nil
}

// classify maps driver errors onto the failure taxonomy. Check and enum
// violations become constraint rejections; everything else unclassified is
// treated as transient so callers roll back and let the user retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var failure *domain.Failure
	if errors.As(err, &failure) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514", "22P02", "23503", "23505":
			return domain.NewConstraint("%s", pgErr.Message)
		}
	}
	return domain.NewTransient("%v", err)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
