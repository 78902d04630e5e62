package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/salesops/internal/domain"
)

func openDeal(stage domain.Stage, value float64, updatedAt time.Time) domain.Deal {
	return domain.Deal{
		ID:        "deal-1",
		TenantID:  "tenant-1",
		Title:     "Warehouse retrofit",
		Value:     value,
		Stage:     stage,
		Priority:  domain.PriorityMedium,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestTransitionWonDefaultsClosedDate(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	deal := openDeal(domain.StageProposal, 1000, now.Add(-48*time.Hour))

	updated, mut, err := Transition(deal, Input{Target: domain.StageWon, Now: now})
	require.NoError(t, err)
	require.Equal(t, domain.StageWon, updated.Stage)
	require.NotNil(t, updated.ClosedDate)
	require.Equal(t, now, *updated.ClosedDate)
	require.NotNil(t, mut.ClosedDate)
	require.Equal(t, now, mut.UpdatedAt)
}

func TestTransitionWonKeepsExplicitClosedDate(t *testing.T) {
	now := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	closed := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	deal := openDeal(domain.StageProposal, 1000, now)

	updated, mut, err := Transition(deal, Input{Target: domain.StageWon, ClosedDate: &closed, Now: now})
	require.NoError(t, err)
	require.Equal(t, closed, *updated.ClosedDate)
	require.Equal(t, closed, *mut.ClosedDate)
}

func TestTransitionLostRequiresReason(t *testing.T) {
	now := time.Now().UTC()
	deal := openDeal(domain.StageProposal, 1000, now)

	unchanged, mut, err := Transition(deal, Input{Target: domain.StageLost, LossReason: "   ", Now: now})
	require.Error(t, err)
	require.Equal(t, domain.FailureValidation, domain.CategoryOf(err))
	require.Equal(t, deal, unchanged)
	require.Nil(t, mut.Stage)
	require.Nil(t, mut.LostDate)
}

func TestTransitionLostDefaultsLostDate(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)
	deal := openDeal(domain.StageDiscovery, 500, now)

	updated, mut, err := Transition(deal, Input{Target: domain.StageLost, LossReason: "budget cut", Now: now})
	require.NoError(t, err)
	require.Equal(t, domain.StageLost, updated.Stage)
	require.Equal(t, now, *updated.LostDate)
	require.Equal(t, "budget cut", updated.LossReason)
	require.Equal(t, "budget cut", *mut.LossReason)
}

func TestTransitionReopenKeepsTerminalMetadata(t *testing.T) {
	now := time.Now().UTC()
	closed := now.Add(-24 * time.Hour)
	deal := openDeal(domain.StageWon, 2000, now)
	deal.ClosedDate = &closed

	updated, mut, err := Transition(deal, Input{Target: domain.StageDiscovery, Now: now})
	require.NoError(t, err)
	require.Equal(t, domain.StageDiscovery, updated.Stage)
	require.Equal(t, &closed, updated.ClosedDate)
	require.Nil(t, mut.ClosedDate)
	require.Nil(t, mut.LossReason)
}

func TestTransitionRejectsUnknownStage(t *testing.T) {
	deal := openDeal(domain.StageDiscovery, 100, time.Now().UTC())
	_, _, err := Transition(deal, Input{Target: "negotiation"})
	require.Error(t, err)
	require.Equal(t, domain.FailureValidation, domain.CategoryOf(err))
}

func TestRequiresMetadata(t *testing.T) {
	require.True(t, RequiresMetadata(domain.StageWon))
	require.True(t, RequiresMetadata(domain.StageLost))
	require.False(t, RequiresMetadata(domain.StageDiscovery))
	require.False(t, RequiresMetadata(domain.StageProposal))
}

func TestIsStale(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-20 * 24 * time.Hour)

	require.True(t, IsStale(openDeal(domain.StageDiscovery, 100, old), now))
	require.False(t, IsStale(openDeal(domain.StageWon, 100, old), now))
	require.False(t, IsStale(openDeal(domain.StageLost, 100, old), now))
	require.False(t, IsStale(openDeal(domain.StageDiscovery, 100, now.Add(-24*time.Hour)), now))
}

func TestAggregation(t *testing.T) {
	now := time.Now().UTC()
	deals := []domain.Deal{
		openDeal(domain.StageDiscovery, 1000, now),
		openDeal(domain.StageProposal, 3000, now),
		openDeal(domain.StageWon, 5000, now),
		openDeal(domain.StageLost, 700, now),
	}

	require.Equal(t, 4000.0, PipelineValue(deals))
	require.Equal(t, 5000.0, WonValue(deals))
	require.Equal(t, 700.0, LostValue(deals))
	require.Equal(t, 2000.0, AverageDealSize(deals))
}

func TestPipelineValueSingleDeal(t *testing.T) {
	now := time.Now().UTC()
	open := []domain.Deal{openDeal(domain.StageProposal, 1000, now)}
	require.Equal(t, 1000.0, PipelineValue(open))

	won, _, err := Transition(open[0], Input{Target: domain.StageWon, Now: now})
	require.NoError(t, err)
	require.Equal(t, 0.0, PipelineValue([]domain.Deal{won}))
}

func TestAverageDealSizeEmptyOpenSet(t *testing.T) {
	now := time.Now().UTC()
	require.Equal(t, 0.0, AverageDealSize(nil))
	require.Equal(t, 0.0, AverageDealSize([]domain.Deal{openDeal(domain.StageWon, 900, now)}))
}
