// Package events defines the payloads published through the outbox.
package events

import "time"

// DealCreated is emitted when a new deal enters the pipeline.
type DealCreated struct {
	DealID     string    `json:"deal_id"`
	TenantID   string    `json:"tenant_id"`
	Title      string    `json:"title"`
	Value      float64   `json:"value"`
	Stage      string    `json:"stage"`
	Channel    string    `json:"channel,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DealStageChanged is emitted for every committed stage transition,
// including board moves.
type DealStageChanged struct {
	DealID     string     `json:"deal_id"`
	TenantID   string     `json:"tenant_id"`
	Stage      string     `json:"stage"`
	Value      float64    `json:"value"`
	Channel    string     `json:"channel,omitempty"`
	ClosedDate *time.Time `json:"closed_date,omitempty"`
	LostDate   *time.Time `json:"lost_date,omitempty"`
	LossReason string     `json:"loss_reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// ActivityLogged is emitted when the composer persists a task, calendar
// event, or logged activity.
type ActivityLogged struct {
	TaskID     string     `json:"task_id"`
	TenantID   string     `json:"tenant_id"`
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	DealID     string     `json:"deal_id,omitempty"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	Due        *time.Time `json:"due,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
