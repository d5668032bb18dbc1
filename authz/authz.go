// Package authz is the authorization engine. Every check is a pure function
// of the principal and a snapshot of the target resource, so decisions are
// deterministic and safe to evaluate concurrently.
package authz

import (
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionTaskRead       Action = "task:read"
	ActionTaskWrite      Action = "task:write"
	ActionTaskDelete     Action = "task:delete"
	ActionTaskTransition Action = "task:transition"
	ActionLabelCreate    Action = "label:create"
	ActionLabelWrite     Action = "label:write"
	ActionUserWrite      Action = "user:write"
	ActionUserRole       Action = "user:role"
	ActionActivityRead   Action = "activity:read"
)

// CanRead reports whether p may read t. Admins read everything; users read
// tasks they authored or are assigned to.
func CanRead(p *user.Principal, t *task.Task) bool {
	if p == nil || t == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return t.AuthorID == p.ID || (t.AssigneeID != nil && *t.AssigneeID == p.ID)
}

// CanWrite reports whether p may modify t. Admins write everything; users
// write only tasks they authored.
func CanWrite(p *user.Principal, t *task.Task) bool {
	if p == nil || t == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return t.AuthorID == p.ID
}

// CanTransition checks that p may move t to the given status. It returns an
// AuthzError with reason forbidden when p cannot write t, and reason
// illegal_transition when the workflow does not allow the step.
func CanTransition(p *user.Principal, t *task.Task, to task.Status) error {
	if !CanWrite(p, t) {
		return apperr.Forbidden(string(ActionTaskTransition))
	}
	if !t.Status.CanTransitionTo(to) {
		return apperr.IllegalTransition(string(t.Status), string(to))
	}
	return nil
}

// Authorize applies the task rule matching action.
func Authorize(p *user.Principal, action Action, t *task.Task) error {
	var allowed bool
	switch action {
	case ActionTaskRead:
		allowed = CanRead(p, t)
	case ActionTaskWrite, ActionTaskDelete:
		allowed = CanWrite(p, t)
	default:
		allowed = p.IsAdmin()
	}
	if !allowed {
		return apperr.Forbidden(string(action))
	}
	return nil
}

// AuthorizeOwner allows admins, and the owner for self-service actions.
// Role changes are reserved to admins.
func AuthorizeOwner(p *user.Principal, action Action, ownerID uint) error {
	if p == nil {
		return apperr.Forbidden(string(action))
	}
	if p.IsAdmin() {
		return nil
	}
	if action != ActionUserRole && p.ID == ownerID {
		return nil
	}
	return apperr.Forbidden(string(action))
}

// RequireRole allows principals carrying role. Admins satisfy every role.
func RequireRole(p *user.Principal, role user.Role, action Action) error {
	if p == nil {
		return apperr.Forbidden(string(action))
	}
	if p.IsAdmin() || p.HasRole(role) {
		return nil
	}
	return apperr.Forbidden(string(action))
}
