package stage

import (
	"context"
	"time"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/observability"
)

// Service orchestrates stage transitions against the deal repository.
type Service struct {
	deals domain.DealRepository
}

// NewService constructs a Service.
func NewService(deals domain.DealRepository) *Service {
	return &Service{deals: deals}
}

// TransitionDeal loads the deal, runs the state machine, and persists the
// resulting mutation. Validation failures leave the stored deal untouched.
func (s *Service) TransitionDeal(ctx context.Context, tenantID, dealID string, input Input) (*domain.Deal, error) {
	deal, err := s.deals.GetDeal(ctx, tenantID, dealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, domain.NewNotFound("deal %s not found", dealID)
	}

	if deal.Stage == input.Target {
		return deal, nil
	}

	_, mut, err := Transition(*deal, input)
	if err != nil {
		return nil, err
	}

	updated, err := s.deals.ApplyDealMutation(ctx, tenantID, dealID, mut)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.NewNotFound("deal %s not found", dealID)
	}
	observability.RecordStageTransition(string(input.Target))
	return updated, nil
}

// Metrics summarizes the pipeline for a tenant scope.
type Metrics struct {
	PipelineValue   float64
	WonValue        float64
	LostValue       float64
	AverageDealSize float64
	OpenCount       int
	WonCount        int
	LostCount       int
	StaleCount      int
}

// DealMetrics computes aggregate pipeline figures from the authoritative
// snapshot. Staleness is derived at read time against now.
func (s *Service) DealMetrics(ctx context.Context, scope domain.ListScope, now time.Time) (Metrics, error) {
	deals, err := s.deals.ListDeals(ctx, scope)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		PipelineValue:   PipelineValue(deals),
		WonValue:        WonValue(deals),
		LostValue:       LostValue(deals),
		AverageDealSize: AverageDealSize(deals),
		StaleCount:      StaleCount(deals, now),
	}
	for _, d := range deals {
		switch {
		case d.Stage == domain.StageWon:
			m.WonCount++
		case d.Stage == domain.StageLost:
			m.LostCount++
		default:
			m.OpenCount++
		}
	}
	return m, nil
}
