package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/salesops/internal/taxonomy"
)

type stubTaskRepo struct {
	created    []Task
	failFirst  error
	callsSoFar int
}

func (s *stubTaskRepo) CreateTask(ctx context.Context, task Task) error {
	s.callsSoFar++
	if s.failFirst != nil && s.callsSoFar == 1 {
		return s.failFirst
	}
	s.created = append(s.created, task)
	return nil
}

func (s *stubTaskRepo) GetTask(ctx context.Context, tenantID, taskID string) (*Task, error) {
	return nil, nil
}

func (s *stubTaskRepo) ListTasks(ctx context.Context, scope ListScope) ([]Task, error) {
	return nil, nil
}

func (s *stubTaskRepo) ApplyTaskMutation(ctx context.Context, tenantID, taskID string, mut TaskMutation) (*Task, error) {
	return nil, nil
}

func TestComposeTaskNormalizesTypeAndDefaults(t *testing.T) {
	repo := &stubTaskRepo{}
	composer := NewComposer(repo)

	task, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID: "t1",
		Title:    "  Follow up with Acme  ",
		RawType:  "Phone Call",
	})
	require.NoError(t, err)
	require.Equal(t, taxonomy.TypeCall, task.Type)
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, PriorityMedium, task.Priority)
	require.Equal(t, "Follow up with Acme", task.Title)
	require.False(t, task.CreatedAt.IsZero())
	require.Len(t, repo.created, 1)
}

func TestComposeTaskRequiresTitle(t *testing.T) {
	repo := &stubTaskRepo{}
	composer := NewComposer(repo)

	_, err := composer.ComposeTask(context.Background(), ComposeTaskInput{TenantID: "t1", Title: "   "})
	require.Error(t, err)
	require.Equal(t, FailureValidation, CategoryOf(err))
	require.Empty(t, repo.created)
}

func TestComposeTaskCalendarKindFallsBackToMeeting(t *testing.T) {
	repo := &stubTaskRepo{}
	composer := NewComposer(repo)

	task, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID: "t1",
		Title:    "Quarterly sync",
		Kind:     taxonomy.KindCalendar,
		RawType:  "something nobody configured",
	})
	require.NoError(t, err)
	require.Equal(t, taxonomy.TypeMeeting, task.Type)
}

func TestComposeTaskRoundTripsUnrecognizedLabel(t *testing.T) {
	repo := &stubTaskRepo{}
	composer := NewComposer(repo)

	task, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID:    "t1",
		Title:       "Survey the site",
		Description: "bring the drone",
		RawType:     "drone survey",
	})
	require.NoError(t, err)
	require.Equal(t, taxonomy.TypeActivity, task.Type)

	original, ok := OriginalType(task.Description)
	require.True(t, ok)
	require.Equal(t, "drone survey", original)
}

func TestComposeTaskRecognizedLabelNotEmbedded(t *testing.T) {
	repo := &stubTaskRepo{}
	composer := NewComposer(repo)

	task, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID:    "t1",
		Title:       "Call Acme",
		Description: "ask about renewal",
		RawType:     "phone call",
	})
	require.NoError(t, err)
	_, ok := OriginalType(task.Description)
	require.False(t, ok)
	require.Equal(t, "ask about renewal", task.Description)
}

func TestComposeTaskRetriesOnceOnConstraintRejection(t *testing.T) {
	repo := &stubTaskRepo{failFirst: NewConstraint("task_type check violated")}
	composer := NewComposer(repo)

	task, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID: "t1",
		Title:    "Send invoice",
		RawType:  "invoice",
	})
	require.NoError(t, err)
	require.Equal(t, taxonomy.TypeActivity, task.Type)
	require.Equal(t, 2, repo.callsSoFar)
	require.Len(t, repo.created, 1)
	require.Equal(t, taxonomy.TypeActivity, repo.created[0].Type)
}

func TestComposeTaskDoesNotRetryTransientFailures(t *testing.T) {
	repo := &stubTaskRepo{failFirst: NewTransient("timeout")}
	composer := NewComposer(repo)

	_, err := composer.ComposeTask(context.Background(), ComposeTaskInput{
		TenantID: "t1",
		Title:    "Send invoice",
	})
	require.Error(t, err)
	require.Equal(t, FailureTransient, CategoryOf(err))
	require.Equal(t, 1, repo.callsSoFar)
}

func TestFailureCategoryOf(t *testing.T) {
	require.Equal(t, FailureValidation, CategoryOf(NewValidation("x")))
	require.Equal(t, FailureConstraint, CategoryOf(NewConstraint("x")))
	require.Equal(t, FailureNotFound, CategoryOf(NewNotFound("x")))
	require.Equal(t, FailureTransient, CategoryOf(assertAnyError()))
}

func assertAnyError() error {
	return context.DeadlineExceeded
}
