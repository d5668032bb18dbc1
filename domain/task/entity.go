package task

import (
	"slices"
	"time"
)

// Task is the core domain entity. Every task has exactly one author and at
// most one assignee.
type Task struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	Title      string  `gorm:"not null;type:text"`
	Content    string  `gorm:"type:text"`
	Index      *int    `gorm:"column:task_index"`
	Status     Status  `gorm:"not null;type:text;index"`
	AssigneeID *uint   `gorm:"index"`
	AuthorID   uint    `gorm:"not null;index"`
	Labels     []Label `gorm:"many2many:task_labels;"`
	// Version is bumped on every write and guards concurrent updates.
	Version   int `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for the Task entity.
func (Task) TableName() string {
	return "tasks"
}

// LabelIDs returns the ids of the task's labels in ascending order.
func (t *Task) LabelIDs() []uint {
	ids := make([]uint, 0, len(t.Labels))
	for _, l := range t.Labels {
		ids = append(ids, l.ID)
	}
	slices.Sort(ids)
	return ids
}

// HasLabel reports whether the task carries the label with the given id.
func (t *Task) HasLabel(id uint) bool {
	return slices.ContainsFunc(t.Labels, func(l Label) bool { return l.ID == id })
}

// Label is a named tag shared by many tasks. Names are unique.
type Label struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex;not null;size:1000"`
	CreatedAt time.Time
}

// TableName returns the table name for the Label entity.
func (Label) TableName() string {
	return "labels"
}

// Label name length bounds.
const (
	LabelNameMin = 3
	LabelNameMax = 1000
)
