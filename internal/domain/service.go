package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service handles deal lifecycle operations other than stage transitions,
// which belong to the stage machine.
type Service struct {
	deals DealRepository
}

// NewService constructs a Service.
func NewService(deals DealRepository) *Service {
	return &Service{deals: deals}
}

// CreateDealInput captures the payload from the API layer.
type CreateDealInput struct {
	TenantID   string
	Title      string
	Value      float64
	Stage      Stage
	Priority   Priority
	Channel    string
	AssignedTo *string
}

// CreateDeal validates and persists a new deal.
func (s *Service) CreateDeal(ctx context.Context, input CreateDealInput) (*Deal, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, NewValidation("title is required")
	}
	if input.Value < 0 {
		return nil, NewValidation("value must be non-negative")
	}
	if input.Stage == "" {
		input.Stage = StageDiscovery
	}
	if !ValidStage(input.Stage) {
		return nil, NewValidation("unknown stage %q", input.Stage)
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !ValidPriority(input.Priority) {
		return nil, NewValidation("unknown priority %q", input.Priority)
	}

	now := time.Now().UTC()
	deal := Deal{
		ID:         uuid.NewString(),
		TenantID:   input.TenantID,
		Title:      strings.TrimSpace(input.Title),
		Value:      input.Value,
		Stage:      input.Stage,
		Priority:   input.Priority,
		Channel:    strings.TrimSpace(input.Channel),
		AssignedTo: input.AssignedTo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.deals.CreateDeal(ctx, deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

// GetDeal fetches one deal.
func (s *Service) GetDeal(ctx context.Context, tenantID, dealID string) (*Deal, error) {
	deal, err := s.deals.GetDeal(ctx, tenantID, dealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, NewNotFound("deal %s not found", dealID)
	}
	return deal, nil
}

// ListDeals returns the authoritative snapshot for a scope.
func (s *Service) ListDeals(ctx context.Context, scope ListScope) ([]Deal, error) {
	return s.deals.ListDeals(ctx, scope)
}
