// Package query composes independent filter predicates and sort comparators
// over in-memory deal and task collections. The pipeline is pure: inputs are
// never mutated and the result is always a fresh, stably ordered slice.
package query

import (
	"sort"
	"strings"
	"time"

	"example.com/salesops/internal/domain"
)

// Fields is the uniform projection of a record the pipeline filters and
// sorts on. Pointer fields mark values that may be absent.
type Fields struct {
	Title       string
	Description string
	Column      string // stage or status
	Channel     string
	AssignedTo  string
	Value       *float64
	Due         *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filters are independent predicates combined with logical AND. Zero values
// disable a predicate.
type Filters struct {
	// Search matches case-insensitively as a substring across title,
	// description, column, and channel.
	Search string
	// Channel matches after display normalization on both sides.
	Channel string
	// From/To bound the record's creation timestamp inclusively; To is
	// treated as end-of-day.
	From *time.Time
	To   *time.Time
	// AssignedTo matches the owner reference exactly.
	AssignedTo string
	// Columns restricts stage/status membership. Use ExpandStageGroups
	// (deals) or ExpandStatusGroups (tasks) to resolve the active/closed
	// meta-groups first.
	Columns []string
}

// SortField selects the comparator.
type SortField string

const (
	SortByValue   SortField = "value"
	SortByDue     SortField = "due"
	SortByCreated SortField = "created"
	SortByUpdated SortField = "updated"
	SortByTitle   SortField = "title"
)

// Sort pairs a comparator with a direction.
type Sort struct {
	Field      SortField
	Descending bool
}

// ExpandStageGroups resolves the active/closed meta-groups into concrete
// stages, passing concrete column names through untouched.
func ExpandStageGroups(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "active":
			for _, s := range domain.Stages() {
				if !s.Terminal() {
					out = append(out, string(s))
				}
			}
		case "closed":
			for _, s := range domain.Stages() {
				if s.Terminal() {
					out = append(out, string(s))
				}
			}
		case "":
		default:
			out = append(out, strings.ToLower(strings.TrimSpace(col)))
		}
	}
	return out
}

// ExpandStatusGroups resolves the active/closed meta-groups into concrete
// task statuses; completed is the only closed status.
func ExpandStatusGroups(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "active":
			out = append(out, string(domain.TaskStatusPending), string(domain.TaskStatusInProgress))
		case "closed":
			out = append(out, string(domain.TaskStatusCompleted))
		case "":
		default:
			out = append(out, strings.ToLower(strings.TrimSpace(col)))
		}
	}
	return out
}

// Apply filters and orders a collection through the projection. The input
// slice is left unmodified; ties preserve the collection's prior relative
// order.
func Apply[T any](items []T, project func(T) Fields, filters Filters, s Sort) []T {
	type projected struct {
		item   T
		fields Fields
	}

	kept := make([]projected, 0, len(items))
	for _, item := range items {
		f := project(item)
		if matches(f, filters) {
			kept = append(kept, projected{item: item, fields: f})
		}
	}

	if s.Field != "" {
		sort.SliceStable(kept, func(i, j int) bool {
			return less(kept[i].fields, kept[j].fields, s)
		})
	}

	out := make([]T, 0, len(kept))
	for _, p := range kept {
		out = append(out, p.item)
	}
	return out
}

func matches(f Fields, filters Filters) bool {
	if search := strings.ToLower(strings.TrimSpace(filters.Search)); search != "" {
		haystack := strings.ToLower(strings.Join([]string{
			f.Title, f.Description, f.Column, f.Channel, DisplayChannel(f.Channel),
		}, "\n"))
		if !strings.Contains(haystack, search) {
			return false
		}
	}

	if filters.Channel != "" {
		if DisplayChannel(f.Channel) != DisplayChannel(filters.Channel) {
			return false
		}
	}

	if filters.From != nil && f.CreatedAt.Before(*filters.From) {
		return false
	}
	if filters.To != nil && f.CreatedAt.After(endOfDay(*filters.To)) {
		return false
	}

	if filters.AssignedTo != "" && f.AssignedTo != filters.AssignedTo {
		return false
	}

	if len(filters.Columns) > 0 {
		var member bool
		for _, col := range filters.Columns {
			if strings.EqualFold(f.Column, col) {
				member = true
				break
			}
		}
		if !member {
			return false
		}
	}

	return true
}

// less orders i before j. Missing values sort last regardless of direction;
// string fields compare case-insensitively; numeric and date fields compare
// numerically.
func less(a, b Fields, s Sort) bool {
	switch s.Field {
	case SortByValue:
		return lessFloat(a.Value, b.Value, s.Descending)
	case SortByDue:
		return lessTime(a.Due, b.Due, s.Descending)
	case SortByCreated:
		created := a.CreatedAt
		other := b.CreatedAt
		return lessTime(&created, &other, s.Descending)
	case SortByUpdated:
		updated := a.UpdatedAt
		other := b.UpdatedAt
		return lessTime(&updated, &other, s.Descending)
	case SortByTitle:
		at := strings.ToLower(a.Title)
		bt := strings.ToLower(b.Title)
		if at == "" || bt == "" {
			return bt == "" && at != ""
		}
		if s.Descending {
			return at > bt
		}
		return at < bt
	}
	return false
}

func lessFloat(a, b *float64, descending bool) bool {
	if a == nil || b == nil {
		return b == nil && a != nil
	}
	if descending {
		return *a > *b
	}
	return *a < *b
}

func lessTime(a, b *time.Time, descending bool) bool {
	if a == nil || b == nil {
		return b == nil && a != nil
	}
	if descending {
		return a.After(*b)
	}
	return a.Before(*b)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// DealFields projects a deal for the pipeline.
func DealFields(d domain.Deal) Fields {
	value := d.Value
	f := Fields{
		Title:     d.Title,
		Column:    string(d.Stage),
		Channel:   d.Channel,
		Value:     &value,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.AssignedTo != nil {
		f.AssignedTo = *d.AssignedTo
	}
	switch d.Stage {
	case domain.StageWon:
		f.Due = d.ClosedDate
	case domain.StageLost:
		f.Due = d.LostDate
	}
	return f
}

// TaskFields projects a task for the pipeline.
func TaskFields(t domain.Task) Fields {
	f := Fields{
		Title:       t.Title,
		Description: t.Description,
		Column:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Due:         t.Due,
	}
	if t.AssignedTo != nil {
		f.AssignedTo = *t.AssignedTo
	}
	return f
}
