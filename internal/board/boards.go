package board

import (
	"context"
	"time"

	"example.com/salesops/internal/domain"
	"example.com/salesops/internal/stage"
)

// DealEngine is the deal pipeline board: columns are stages, and the
// terminal columns are confirmation-gated because they require metadata.
type DealEngine = Engine[domain.Deal, domain.DealMutation]

// TaskEngine is the activity board: columns are task statuses, none gated.
type TaskEngine = Engine[domain.Task, domain.TaskMutation]

// DealConfirm collects the metadata-bearing mutation for a won/lost drop.
type DealConfirm func(ctx context.Context, deal domain.Deal, target domain.Stage) (stage.Input, bool, error)

// NewDealBoard builds the deal board engine. Confirmed drops run through the
// stage machine, so terminal moves carry the same guarantees as an explicit
// transition: a lost move without a loss reason never reaches persistence.
func NewDealBoard(deals []domain.Deal, confirm DealConfirm, persist func(ctx context.Context, id string, mut domain.DealMutation) (*domain.Deal, error)) *DealEngine {
	columns := make([]string, 0, len(domain.Stages()))
	confirmColumns := make(map[string]bool)
	for _, s := range domain.Stages() {
		columns = append(columns, string(s))
		if stage.RequiresMetadata(s) {
			confirmColumns[string(s)] = true
		}
	}

	return New(Config[domain.Deal, domain.DealMutation]{
		Name:     "deals",
		Columns:  columns,
		KeyOf:    func(d domain.Deal) string { return d.ID },
		ColumnOf: func(d domain.Deal) string { return string(d.Stage) },
		Move: func(d domain.Deal, column string) (domain.DealMutation, error) {
			_, mut, err := stage.Transition(d, stage.Input{Target: domain.Stage(column), Now: time.Now().UTC()})
			return mut, err
		},
		Apply:          func(d domain.Deal, mut domain.DealMutation) domain.Deal { return mut.Apply(d) },
		ConfirmColumns: confirmColumns,
		Confirm: func(ctx context.Context, d domain.Deal, column string) (domain.DealMutation, bool, error) {
			if confirm == nil {
				return domain.DealMutation{}, false, ErrConfirmationRequired
			}
			input, proceed, err := confirm(ctx, d, domain.Stage(column))
			if err != nil || !proceed {
				return domain.DealMutation{}, false, err
			}
			input.Target = domain.Stage(column)
			_, mut, err := stage.Transition(d, input)
			if err != nil {
				return domain.DealMutation{}, false, err
			}
			return mut, true, nil
		},
		Persist: persist,
	}, deals)
}

// NewTaskBoard builds the task board engine. Status transitions are
// unconstrained, so every column move is a plain status mutation.
func NewTaskBoard(tasks []domain.Task, persist func(ctx context.Context, id string, mut domain.TaskMutation) (*domain.Task, error)) *TaskEngine {
	columns := make([]string, 0, len(domain.TaskStatuses()))
	for _, s := range domain.TaskStatuses() {
		columns = append(columns, string(s))
	}

	return New(Config[domain.Task, domain.TaskMutation]{
		Name:     "tasks",
		Columns:  columns,
		KeyOf:    func(t domain.Task) string { return t.ID },
		ColumnOf: func(t domain.Task) string { return string(t.Status) },
		Move: func(t domain.Task, column string) (domain.TaskMutation, error) {
			status := domain.TaskStatus(column)
			return domain.TaskMutation{Status: &status, UpdatedAt: time.Now().UTC()}, nil
		},
		Apply:   func(t domain.Task, mut domain.TaskMutation) domain.Task { return mut.Apply(t) },
		Persist: persist,
	}, tasks)
}
