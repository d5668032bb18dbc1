package api

import (
	"github.com/example/task-manager/domain/task"
)

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateUserRequest is a partial user update. Absent fields are unchanged.
type UpdateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
	Role      *string `json:"role"`
}

// LabelRequest creates or renames a label.
type LabelRequest struct {
	Name string `json:"name"`
}

// CreateTaskRequest represents a create task request. Status accepts a
// display name or a slug.
type CreateTaskRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Index      *int   `json:"index"`
	Status     string `json:"status"`
	AssigneeID *uint  `json:"assignee_id"`
	LabelIDs   []uint `json:"label_ids"`
}

// UpdateTaskRequest is a partial task update. An assignee_id of 0 clears the
// assignee.
type UpdateTaskRequest struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Index      *int    `json:"index"`
	Status     *string `json:"status"`
	AssigneeID *uint   `json:"assignee_id"`
	LabelIDs   *[]uint `json:"label_ids"`
}

// TransitionRequest moves a task to Status. From, when set, is the status
// the client last observed; the transition fails with 409 if it changed.
type TransitionRequest struct {
	Status string `json:"status"`
	From   string `json:"from"`
}

// TaskStatusResponse describes one workflow status.
type TaskStatusResponse struct {
	Name string        `json:"name"`
	Slug task.Status   `json:"slug"`
	Next []task.Status `json:"next"`
}

// NewTaskStatusResponse describes s.
func NewTaskStatusResponse(s task.Status) TaskStatusResponse {
	next := s.Next()
	if next == nil {
		next = []task.Status{}
	}
	return TaskStatusResponse{Name: s.Name(), Slug: s, Next: next}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
