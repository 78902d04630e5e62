// Package stage implements the deal pipeline state machine: guarded terminal
// transitions, derived staleness, and pipeline aggregation.
package stage

import (
	"strings"
	"time"

	"example.com/salesops/internal/domain"
)

// StaleAfter is the inactivity threshold past which an open deal is flagged
// for display emphasis.
const StaleAfter = 14 * 24 * time.Hour

// Input carries the target stage and the terminal metadata a transition may
// require. Now is explicit so defaulting stays testable.
type Input struct {
	Target     domain.Stage
	ClosedDate *time.Time
	LostDate   *time.Time
	LossReason string
	Now        time.Time
}

// RequiresMetadata reports whether moving into target needs a confirmation
// step to collect metadata before the transition can commit.
func RequiresMetadata(target domain.Stage) bool {
	return target.Terminal()
}

// Transition validates and enriches a stage change. On success it returns the
// updated deal and the partial mutation to persist. A lost transition with an
// empty loss reason fails validation: the deal is returned unchanged and no
// mutation is produced, so nothing reaches the persistence layer.
func Transition(deal domain.Deal, input Input) (domain.Deal, domain.DealMutation, error) {
	if !domain.ValidStage(input.Target) {
		return deal, domain.DealMutation{}, domain.NewValidation("unknown stage %q", input.Target)
	}

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	target := input.Target
	mut := domain.DealMutation{Stage: &target, UpdatedAt: now}

	switch input.Target {
	case domain.StageWon:
		closed := input.ClosedDate
		if closed == nil {
			closed = &now
		}
		mut.ClosedDate = closed
	case domain.StageLost:
		if strings.TrimSpace(input.LossReason) == "" {
			return deal, domain.DealMutation{}, domain.NewValidation("loss_reason is required to mark a deal lost")
		}
		lost := input.LostDate
		if lost == nil {
			lost = &now
		}
		mut.LostDate = lost
		reason := strings.TrimSpace(input.LossReason)
		mut.LossReason = &reason
	default:
		// Reopening leaves existing terminal metadata untouched; callers
		// clear it explicitly if they want it gone.
	}

	return mut.Apply(deal), mut, nil
}

// IsStale reports whether an open deal has gone without updates longer than
// the staleness threshold. Terminal deals are never stale. Recomputed on
// every read; never persisted.
func IsStale(deal domain.Deal, now time.Time) bool {
	if deal.Stage.Terminal() {
		return false
	}
	return now.Sub(deal.UpdatedAt) > StaleAfter
}

// PipelineValue sums value across open (non-terminal) deals.
func PipelineValue(deals []domain.Deal) float64 {
	var total float64
	for _, d := range deals {
		if !d.Stage.Terminal() {
			total += d.Value
		}
	}
	return total
}

// WonValue sums value across won deals.
func WonValue(deals []domain.Deal) float64 {
	var total float64
	for _, d := range deals {
		if d.Stage == domain.StageWon {
			total += d.Value
		}
	}
	return total
}

// LostValue sums value across lost deals.
func LostValue(deals []domain.Deal) float64 {
	var total float64
	for _, d := range deals {
		if d.Stage == domain.StageLost {
			total += d.Value
		}
	}
	return total
}

// AverageDealSize divides pipeline value by the open-deal count, returning 0
// when no deals are open.
func AverageDealSize(deals []domain.Deal) float64 {
	var open int
	for _, d := range deals {
		if !d.Stage.Terminal() {
			open++
		}
	}
	if open == 0 {
		return 0
	}
	return PipelineValue(deals) / float64(open)
}

// StaleCount counts open deals past the staleness threshold.
func StaleCount(deals []domain.Deal, now time.Time) int {
	var stale int
	for _, d := range deals {
		if IsStale(d, now) {
			stale++
		}
	}
	return stale
}
