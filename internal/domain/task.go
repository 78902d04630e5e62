package domain

import (
	"time"

	"example.com/salesops/internal/taxonomy"
)

// TaskStatus groups tasks on the board. Transitions between statuses are
// unconstrained; any status is reachable from any other.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists every valid status in board-column order.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted}
}

// ValidTaskStatus reports whether s is a known status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task is a unit of work or a logged interaction, persisted as a generic
// calendar-event row. Type always holds a canonical taxonomy value at the
// point of persistence.
type Task struct {
	ID          string
	TenantID    string
	Title       string
	Description string
	Type        taxonomy.CanonicalType
	Status      TaskStatus
	Priority    Priority
	Due         *time.Time
	DealID      *string
	CompanyID   *string
	ContactID   *string
	AssignedTo  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskMutation is the partial update applied to a task by a board move.
type TaskMutation struct {
	Status    *TaskStatus
	Type      *taxonomy.CanonicalType
	UpdatedAt time.Time
}

// Apply returns a copy of the task with the mutation folded in.
func (m TaskMutation) Apply(t Task) Task {
	if m.Status != nil {
		t.Status = *m.Status
	}
	if m.Type != nil {
		t.Type = *m.Type
	}
	if !m.UpdatedAt.IsZero() {
		t.UpdatedAt = m.UpdatedAt
	}
	return t
}
