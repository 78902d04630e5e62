package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/query"
	"example.com/salesops/internal/stage"
)

// CreateDealRequest is the payload for POST /v1/deals.
type CreateDealRequest struct {
	Title      string  `json:"title"`
	Value      float64 `json:"value"`
	Stage      string  `json:"stage"`
	Priority   string  `json:"priority"`
	Channel    string  `json:"channel"`
	AssignedTo *string `json:"assigned_to"`
}

// Validate ensures request correctness.
func (r CreateDealRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if r.Value < 0 {
		return errors.New("value must be non-negative")
	}
	return nil
}

// TransitionDealRequest is the payload for POST /v1/deals/{id}/stage.
type TransitionDealRequest struct {
	Stage      string     `json:"stage"`
	ClosedDate *time.Time `json:"closed_date"`
	LostDate   *time.Time `json:"lost_date"`
	LossReason string     `json:"loss_reason"`
}

// Validate ensures request correctness.
func (r TransitionDealRequest) Validate() error {
	if strings.TrimSpace(r.Stage) == "" {
		return errors.New("stage is required")
	}
	return nil
}

// CreateTaskRequest is the payload for POST /v1/tasks. Type accepts any
// human-entered label; it is normalized server-side.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Due         *time.Time `json:"due"`
	DealID      *string    `json:"deal_id"`
	CompanyID   *string    `json:"company_id"`
	ContactID   *string    `json:"contact_id"`
	AssignedTo  *string    `json:"assigned_to"`
}

// Validate ensures request correctness.
func (r CreateTaskRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	switch r.Kind {
	case "", "activity", "calendar":
	default:
		return errors.New("kind must be activity or calendar")
	}
	return nil
}

// MoveRequest is the payload for the board move endpoints. Target may be a
// column id or a sibling card id. Confirm carries the metadata for gated
// columns; Cancel abandons a gated move without touching the board.
type MoveRequest struct {
	DraggedID string          `json:"dragged_id"`
	Target    string          `json:"target"`
	Cancel    bool            `json:"cancel"`
	Confirm   *ConfirmPayload `json:"confirm"`
}

// ConfirmPayload supplies terminal-stage metadata for a gated deal move.
type ConfirmPayload struct {
	ClosedDate *time.Time `json:"closed_date"`
	LostDate   *time.Time `json:"lost_date"`
	LossReason string     `json:"loss_reason"`
}

// Validate ensures request correctness.
func (r MoveRequest) Validate() error {
	if strings.TrimSpace(r.DraggedID) == "" {
		return errors.New("dragged_id is required")
	}
	if strings.TrimSpace(r.Target) == "" {
		return errors.New("target is required")
	}
	return nil
}

// DealView exposes full details about a deal. Stale is derived at read time
// and never stored.
type DealView struct {
	DealID         string     `json:"deal_id"`
	TenantID       string     `json:"tenant_id"`
	Title          string     `json:"title"`
	Value          float64    `json:"value"`
	Stage          string     `json:"stage"`
	Priority       string     `json:"priority"`
	Channel        string     `json:"channel,omitempty"`
	ChannelDisplay string     `json:"channel_display,omitempty"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	ClosedDate     *time.Time `json:"closed_date,omitempty"`
	LostDate       *time.Time `json:"lost_date,omitempty"`
	LossReason     string     `json:"loss_reason,omitempty"`
	Stale          bool       `json:"stale"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskView exposes full details about a task. OriginalType carries the raw
// label round-tripped through the description for unrecognized types.
type TaskView struct {
	TaskID       string     `json:"task_id"`
	TenantID     string     `json:"tenant_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Type         string     `json:"type"`
	OriginalType string     `json:"original_type,omitempty"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Due          *time.Time `json:"due,omitempty"`
	DealID       *string    `json:"deal_id,omitempty"`
	CompanyID    *string    `json:"company_id,omitempty"`
	ContactID    *string    `json:"contact_id,omitempty"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ListDealsResponse packages deal list results.
type ListDealsResponse struct {
	Items []DealView `json:"items"`
	Total int        `json:"total"`
}

// ListTasksResponse packages task list results.
type ListTasksResponse struct {
	Items []TaskView `json:"items"`
	Total int        `json:"total"`
}

// DealMetricsResponse summarizes the pipeline for a tenant scope.
type DealMetricsResponse struct {
	PipelineValue   float64 `json:"pipeline_value"`
	WonValue        float64 `json:"won_value"`
	LostValue       float64 `json:"lost_value"`
	AverageDealSize float64 `json:"average_deal_size"`
	OpenCount       int     `json:"open_count"`
	WonCount        int     `json:"won_count"`
	LostCount       int     `json:"lost_count"`
	StaleCount      int     `json:"stale_count"`
}

// ChannelsResponse lists the distinct normalized channel names for the
// filter option list.
type ChannelsResponse struct {
	Channels []string `json:"channels"`
}

// DealBoardResponse groups deals by stage column.
type DealBoardResponse struct {
	Columns map[string][]DealView `json:"columns"`
}

// TaskBoardResponse groups tasks by status column.
type TaskBoardResponse struct {
	Columns map[string][]TaskView `json:"columns"`
}

func toDealView(d domain.Deal, now time.Time) DealView {
	return DealView{
		DealID:         d.ID,
		TenantID:       d.TenantID,
		Title:          d.Title,
		Value:          d.Value,
		Stage:          string(d.Stage),
		Priority:       string(d.Priority),
		Channel:        d.Channel,
		ChannelDisplay: query.DisplayChannel(d.Channel),
		AssignedTo:     d.AssignedTo,
		ClosedDate:     d.ClosedDate,
		LostDate:       d.LostDate,
		LossReason:     d.LossReason,
		Stale:          stage.IsStale(d, now),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func toTaskView(t domain.Task) TaskView {
	view := TaskView{
		TaskID:      t.ID,
		TenantID:    t.TenantID,
		Title:       t.Title,
		Description: t.Description,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Due:         t.Due,
		DealID:      t.DealID,
		CompanyID:   t.CompanyID,
		ContactID:   t.ContactID,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if original, ok := domain.OriginalType(t.Description); ok {
		view.OriginalType = original
	}
	return view
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

// writeFailure maps the failure taxonomy to HTTP statuses. Constraint
// rejections are logged because they usually mean an enumeration drifted
// between the frontend catalog and the backend schema.
func writeFailure(w http.ResponseWriter, err error) {
	switch domain.CategoryOf(err) {
	case domain.FailureValidation:
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case domain.FailureNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.FailureConstraint:
		log.Printf("[api] constraint rejection: %v", err)
		writeError(w, http.StatusConflict, "constraint_violation", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "transient_failure", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
