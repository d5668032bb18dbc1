package task

import "strings"

// Field names a filterable task attribute. The persistence layer maps each
// field onto a fixed column; client input never reaches a column name.
type Field string

const (
	FieldStatus    Field = "status"
	FieldAssignee  Field = "assignee_id"
	FieldLabel     Field = "label_id"
	FieldTitle     Field = "title"
	FieldVisibleTo Field = "visible_to"
)

// Operator is the comparison applied by a predicate.
type Operator string

const (
	OpEq       Operator = "eq"
	OpContains Operator = "contains"
	OpHas      Operator = "has"
	OpReadable Operator = "readable_by"
)

// Predicate is one structured (field, operator, value) condition.
type Predicate struct {
	Field Field
	Op    Operator
	Value any
}

// Filter is a validated conjunction of optional task predicates. Absent
// fields impose no constraint.
type Filter struct {
	Status        *Status `json:"status,omitempty"`
	AssigneeID    *uint   `json:"assignee_id,omitempty"`
	LabelID       *uint   `json:"label_id,omitempty"`
	TitleContains *string `json:"title_contains,omitempty"`
	// VisibleTo restricts results to tasks the given user authored or is
	// assigned to. It is set by the task service, not by clients.
	VisibleTo *uint `json:"visible_to,omitempty"`
}

// Predicates returns the filter as structured predicates in declaration order.
func (f Filter) Predicates() []Predicate {
	var preds []Predicate
	if f.Status != nil {
		preds = append(preds, Predicate{Field: FieldStatus, Op: OpEq, Value: *f.Status})
	}
	if f.AssigneeID != nil {
		preds = append(preds, Predicate{Field: FieldAssignee, Op: OpEq, Value: *f.AssigneeID})
	}
	if f.LabelID != nil {
		preds = append(preds, Predicate{Field: FieldLabel, Op: OpHas, Value: *f.LabelID})
	}
	if f.TitleContains != nil {
		preds = append(preds, Predicate{Field: FieldTitle, Op: OpContains, Value: *f.TitleContains})
	}
	if f.VisibleTo != nil {
		preds = append(preds, Predicate{Field: FieldVisibleTo, Op: OpReadable, Value: *f.VisibleTo})
	}
	return preds
}

// IsEmpty reports whether the filter matches every task.
func (f Filter) IsEmpty() bool {
	return len(f.Predicates()) == 0
}

// Matches evaluates the filter against a task in memory.
func (f Filter) Matches(t *Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.LabelID != nil && !t.HasLabel(*f.LabelID) {
		return false
	}
	if f.TitleContains != nil && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(*f.TitleContains)) {
		return false
	}
	if f.VisibleTo != nil {
		owner := t.AuthorID == *f.VisibleTo
		assignee := t.AssigneeID != nil && *t.AssigneeID == *f.VisibleTo
		if !owner && !assignee {
			return false
		}
	}
	return true
}
