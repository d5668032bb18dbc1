package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestFilter_Predicates(t *testing.T) {
	f := Filter{
		TitleContains: ptr("report"),
		LabelID:       ptr(uint(3)),
		Status:        ptr(StatusPublished),
		AssigneeID:    ptr(uint(42)),
	}

	want := []Predicate{
		{Field: FieldStatus, Op: OpEq, Value: StatusPublished},
		{Field: FieldAssignee, Op: OpEq, Value: uint(42)},
		{Field: FieldLabel, Op: OpHas, Value: uint(3)},
		{Field: FieldTitle, Op: OpContains, Value: "report"},
	}
	assert.Equal(t, want, f.Predicates())
	assert.False(t, f.IsEmpty())
	assert.True(t, Filter{}.IsEmpty())
}

func TestFilter_Matches(t *testing.T) {
	assignee := uint(42)
	other := uint(7)
	tasks := []*Task{
		{ID: 1, Title: "Quarterly Report", Status: StatusPublished, AssigneeID: &assignee, AuthorID: 1, Labels: []Label{{ID: 3}}},
		{ID: 2, Title: "Draft notes", Status: StatusDraft, AssigneeID: &assignee, AuthorID: 1},
		{ID: 3, Title: "Report", Status: StatusPublished, AssigneeID: &other, AuthorID: 42},
		{ID: 4, Title: "Unassigned", Status: StatusPublished, AuthorID: 9},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []uint
	}{
		{"empty matches all", Filter{}, []uint{1, 2, 3, 4}},
		{"published assigned to 42", Filter{Status: ptr(StatusPublished), AssigneeID: ptr(uint(42))}, []uint{1}},
		{"label", Filter{LabelID: ptr(uint(3))}, []uint{1}},
		{"title case insensitive", Filter{TitleContains: ptr("REPORT")}, []uint{1, 3}},
		{"visible to 42", Filter{VisibleTo: ptr(uint(42))}, []uint{1, 2, 3}},
		{"visible to 9", Filter{VisibleTo: ptr(uint(9))}, []uint{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint
			for _, task := range tasks {
				if tt.filter.Matches(task) {
					got = append(got, task.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTask_LabelIDs(t *testing.T) {
	task := &Task{Labels: []Label{{ID: 5}, {ID: 2}, {ID: 9}}}
	assert.Equal(t, []uint{2, 5, 9}, task.LabelIDs())
	assert.True(t, task.HasLabel(9))
	assert.False(t, task.HasLabel(4))
}
