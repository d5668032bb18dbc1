package task

import (
	"time"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
)

// TaskDTO is the wire form of a task.
type TaskDTO struct {
	ID         uint        `json:"id"`
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	Index      *int        `json:"index,omitempty"`
	Status     task.Status `json:"status"`
	AssigneeID *uint       `json:"assignee_id"`
	AuthorID   uint        `json:"author_id"`
	LabelIDs   []uint      `json:"label_ids"`
	Version    int         `json:"version"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewTaskDTO converts a task entity into its wire form.
func NewTaskDTO(t *task.Task) *TaskDTO {
	if t == nil {
		return nil
	}
	return &TaskDTO{
		ID:         t.ID,
		Title:      t.Title,
		Content:    t.Content,
		Index:      t.Index,
		Status:     t.Status,
		AssigneeID: t.AssigneeID,
		AuthorID:   t.AuthorID,
		LabelIDs:   t.LabelIDs(),
		Version:    t.Version,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Snapshot returns the task fields authorization decisions depend on.
func (d *TaskDTO) Snapshot() *task.Task {
	return &task.Task{
		ID:         d.ID,
		Status:     d.Status,
		AssigneeID: d.AssigneeID,
		AuthorID:   d.AuthorID,
		Version:    d.Version,
	}
}

// LabelDTO is the wire form of a label.
type LabelDTO struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLabelDTO converts a label entity into its wire form.
func NewLabelDTO(l *task.Label) *LabelDTO {
	if l == nil {
		return nil
	}
	return &LabelDTO{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt}
}

// ListTasksRequest asks for the tasks matching Filter that Actor may read.
type ListTasksRequest struct {
	Actor  *user.Principal `json:"actor"`
	Filter task.Filter     `json:"filter"`
}

// ListTasksResponse carries a task list.
type ListTasksResponse struct {
	Tasks []TaskDTO    `json:"tasks"`
	Error *apperr.Info `json:"error,omitempty"`
}

// GetTaskRequest represents a get task request.
type GetTaskRequest struct {
	Actor *user.Principal `json:"actor"`
	ID    uint            `json:"id"`
}

// TaskResponse carries a single task.
type TaskResponse struct {
	Task  *TaskDTO     `json:"task,omitempty"`
	Error *apperr.Info `json:"error,omitempty"`
}

// CreateTaskRequest represents a create task request.
type CreateTaskRequest struct {
	Actor      *user.Principal `json:"actor"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Index      *int            `json:"index,omitempty"`
	Status     *task.Status    `json:"status,omitempty"`
	AssigneeID *uint           `json:"assignee_id,omitempty"`
	LabelIDs   []uint          `json:"label_ids,omitempty"`
}

// UpdateTaskRequest represents a partial task update.
type UpdateTaskRequest struct {
	Actor      *user.Principal `json:"actor"`
	ID         uint            `json:"id"`
	Title      *string         `json:"title,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Status     *task.Status    `json:"status,omitempty"`
	AssigneeID *uint           `json:"assignee_id,omitempty"`
	LabelIDs   *[]uint         `json:"label_ids,omitempty"`
}

// TransitionTaskRequest asks to move a task to To. From, when set, is the
// status the caller last observed.
type TransitionTaskRequest struct {
	Actor *user.Principal `json:"actor"`
	ID    uint            `json:"id"`
	To    task.Status     `json:"to"`
	From  *task.Status    `json:"from,omitempty"`
}

// DeleteRequest asks to delete the task or label with ID.
type DeleteRequest struct {
	Actor *user.Principal `json:"actor"`
	ID    uint            `json:"id"`
}

// DeleteResponse reports the outcome of a deletion.
type DeleteResponse struct {
	Error *apperr.Info `json:"error,omitempty"`
}

// CountUserTasksRequest asks how many tasks reference a user.
type CountUserTasksRequest struct {
	UserID uint `json:"user_id"`
}

// CountUserTasksResponse carries a reference count.
type CountUserTasksResponse struct {
	Count int64        `json:"count"`
	Error *apperr.Info `json:"error,omitempty"`
}

// ListLabelsRequest represents a list labels request.
type ListLabelsRequest struct{}

// ListLabelsResponse carries every label.
type ListLabelsResponse struct {
	Labels []LabelDTO   `json:"labels"`
	Error  *apperr.Info `json:"error,omitempty"`
}

// GetLabelRequest represents a get label request.
type GetLabelRequest struct {
	ID uint `json:"id"`
}

// LabelRequest creates or renames a label. ID is zero on create.
type LabelRequest struct {
	Actor *user.Principal `json:"actor"`
	ID    uint            `json:"id,omitempty"`
	Name  string          `json:"name"`
}

// LabelResponse carries a single label.
type LabelResponse struct {
	Label *LabelDTO    `json:"label,omitempty"`
	Error *apperr.Info `json:"error,omitempty"`
}
