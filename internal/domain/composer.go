package domain

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/salesops/internal/taxonomy"
)

// Composer builds persistable task, calendar-event, and logged-activity
// records, embedding the normalized type and default fields.
type Composer struct {
	tasks  TaskRepository
	logger *log.Logger
}

// NewComposer constructs a Composer.
func NewComposer(tasks TaskRepository) *Composer {
	return &Composer{
		tasks:  tasks,
		logger: log.New(log.Writer(), "[composer] ", log.LstdFlags),
	}
}

// ComposeTaskInput captures the payload from the API layer. RawType accepts
// any human-entered label; it is normalized before persistence and never
// stored as-is.
type ComposeTaskInput struct {
	TenantID    string
	Title       string
	Description string
	RawType     string
	Kind        taxonomy.Kind
	Status      TaskStatus
	Priority    Priority
	Due         *time.Time
	DealID      *string
	CompanyID   *string
	ContactID   *string
	AssignedTo  *string
}

// ComposeTask validates, normalizes, and persists a task record. When the
// persistence layer rejects the type enumeration the write is retried once
// with the kind's fallback type; that path means the taxonomy allow-list has
// drifted from the backend constraint and is logged loudly.
func (c *Composer) ComposeTask(ctx context.Context, input ComposeTaskInput) (*Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, NewValidation("title is required")
	}
	kind := input.Kind
	if kind == "" {
		kind = taxonomy.KindActivity
	}
	if input.Status == "" {
		input.Status = TaskStatusPending
	}
	if !ValidTaskStatus(input.Status) {
		return nil, NewValidation("unknown status %q", input.Status)
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !ValidPriority(input.Priority) {
		return nil, NewValidation("unknown priority %q", input.Priority)
	}

	description := strings.TrimSpace(input.Description)
	if raw := strings.TrimSpace(input.RawType); raw != "" && !taxonomy.Recognized(raw) {
		description = EmbedOriginalType(description, raw)
	}

	now := time.Now().UTC()
	task := Task{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		Title:       strings.TrimSpace(input.Title),
		Description: description,
		Type:        taxonomy.Normalize(kind, input.RawType),
		Status:      input.Status,
		Priority:    input.Priority,
		Due:         input.Due,
		DealID:      input.DealID,
		CompanyID:   input.CompanyID,
		ContactID:   input.ContactID,
		AssignedTo:  input.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := c.tasks.CreateTask(ctx, task)
	if err == nil {
		return &task, nil
	}
	if !IsCategory(err, FailureConstraint) {
		return nil, err
	}

	// Allow-list drift: the backend enumeration no longer accepts a type the
	// taxonomy considered valid. Retry once with the known-safe fallback and
	// make the drift visible to operators.
	fallback := taxonomy.Fallback(kind)
	c.logger.Printf("TAXONOMY DRIFT: backend rejected type %q (kind=%s, task=%s); retrying with fallback %q: %v",
		task.Type, kind, task.ID, fallback, err)
	task.Type = fallback
	if retryErr := c.tasks.CreateTask(ctx, task); retryErr != nil {
		return nil, retryErr
	}
	return &task, nil
}

// GetTask fetches one task.
func (c *Composer) GetTask(ctx context.Context, tenantID, taskID string) (*Task, error) {
	task, err := c.tasks.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NewNotFound("task %s not found", taskID)
	}
	return task, nil
}

// ListTasks returns the authoritative snapshot for a scope.
func (c *Composer) ListTasks(ctx context.Context, scope ListScope) ([]Task, error) {
	return c.tasks.ListTasks(ctx, scope)
}

var originalTypeMarker = regexp.MustCompile(`\[original_type:\s*([^\]]+)\]`)

// EmbedOriginalType appends the raw label to the description so a UI-only
// type survives the round trip through the backend's closed enumeration.
func EmbedOriginalType(description, raw string) string {
	marker := fmt.Sprintf("[original_type: %s]", raw)
	if description == "" {
		return marker
	}
	return description + " " + marker
}

// OriginalType extracts a round-tripped raw label from a description, if one
// was embedded at compose time.
func OriginalType(description string) (string, bool) {
	match := originalTypeMarker.FindStringSubmatch(description)
	if match == nil {
		return "", false
	}
	return strings.TrimSpace(match[1]), true
}
