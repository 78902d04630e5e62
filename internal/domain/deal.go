// Package domain defines the sales-operations entities and business rules
// shared by the API, board, and persistence layers.
package domain

import "time"

// Stage is a deal's position in the pipeline. Won and lost are terminal for
// aggregation purposes only; a deal may be reopened.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageProposal  Stage = "proposal"
	StageWon       Stage = "won"
	StageLost      Stage = "lost"
)

// Stages lists every valid stage in board-column order.
func Stages() []Stage {
	return []Stage{StageDiscovery, StageProposal, StageWon, StageLost}
}

// ValidStage reports whether s is a known stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageDiscovery, StageProposal, StageWon, StageLost:
		return true
	}
	return false
}

// Terminal reports whether the stage is excluded from open-pipeline
// aggregation.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

// Priority ranks deals and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Deal is a sales opportunity. Staleness is derived from UpdatedAt on read
// and never stored.
type Deal struct {
	ID         string
	TenantID   string
	Title      string
	Value      float64
	Stage      Stage
	Priority   Priority
	Channel    string
	AssignedTo *string
	ClosedDate *time.Time
	LostDate   *time.Time
	LossReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DealMutation is the partial update applied to a deal by a stage transition
// or a board move. Nil fields are left untouched.
type DealMutation struct {
	Stage      *Stage
	ClosedDate *time.Time
	LostDate   *time.Time
	LossReason *string
	UpdatedAt  time.Time
}

// Apply returns a copy of the deal with the mutation folded in.
func (m DealMutation) Apply(d Deal) Deal {
	if m.Stage != nil {
		d.Stage = *m.Stage
	}
	if m.ClosedDate != nil {
		d.ClosedDate = m.ClosedDate
	}
	if m.LostDate != nil {
		d.LostDate = m.LostDate
	}
	if m.LossReason != nil {
		d.LossReason = *m.LossReason
	}
	if !m.UpdatedAt.IsZero() {
		d.UpdatedAt = m.UpdatedAt
	}
	return d
}
