package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"

	"github.com/example/task-manager/authz"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/filter"
	"github.com/example/task-manager/modules/activity"
	"github.com/example/task-manager/modules/auth"
	taskmod "github.com/example/task-manager/modules/task"
	"github.com/example/task-manager/pipeline"
)

// TotalCountHeader carries the size of list responses.
const TotalCountHeader = "X-Total-Count"

// DefaultActivityLimit is the page size of the activity feed.
const DefaultActivityLimit = 50

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth     auth.AuthPort
	tasks    taskmod.TaskPort
	activity activity.ActivityPort
	pipeline *pipeline.Pipeline
	filters  *filter.Builder
	started  time.Time
}

// NewHandlers creates a new Handlers instance. Authenticated routes resolve
// their principal through authPort.
func NewHandlers(authPort auth.AuthPort, taskPort taskmod.TaskPort, activityPort activity.ActivityPort, filters *filter.Builder, logger types.Logger) *Handlers {
	return &Handlers{
		auth:     authPort,
		tasks:    taskPort,
		activity: activityPort,
		pipeline: pipeline.New(authPort, logger),
		filters:  filters,
		started:  time.Now(),
	}
}

// serve runs an authenticated operation through the pipeline. A nil result
// is written as 204 No Content.
func (h *Handlers) serve(c *fiber.Ctx, name string, status int, authorize pipeline.AuthorizeFunc, execute pipeline.ExecuteFunc) error {
	out := h.pipeline.Run(c.UserContext(), pipeline.Request{
		Name:          name,
		Authorization: c.Get(fiber.HeaderAuthorization),
		Authorize:     authorize,
		Execute:       execute,
	})
	if out.Err != nil {
		return writeError(c, out.Err)
	}
	if out.Result == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(status).JSON(out.Result)
}

func requireRole(role user.Role, action authz.Action) pipeline.AuthorizeFunc {
	return func(_ context.Context, p *user.Principal) error {
		return authz.RequireRole(p, role, action)
	}
}

func requireAdmin(action authz.Action) pipeline.AuthorizeFunc {
	return requireRole(user.RoleAdmin, action)
}

// loadTask fetches the task named by the route on behalf of p. The fetch is
// itself read-authorized, so principals that may not see the task fail here.
func (h *Handlers) loadTask(ctx context.Context, c *fiber.Ctx, p *user.Principal) (*taskmod.TaskDTO, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	t, err := h.tasks.GetTask(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("task", id)
	}
	return t, nil
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("id", "must be a positive integer")
	}
	return uint(id), nil
}

func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Invalid("body", "malformed request body")
	}
	return nil
}

func parseStatus(field, v string) (task.Status, error) {
	s, ok := task.ParseStatus(v)
	if !ok {
		return "", apperr.Invalid(field, fmt.Sprintf("unknown status %q", v))
	}
	return s, nil
}

// Health reports liveness of the HTTP surface.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"module": "api",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Register handles user registration.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	u, err := h.auth.Register(c.UserContext(), auth.RegisterRequest{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

// Login exchanges credentials for a token pair.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	tokens, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tokens)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	if req.RefreshToken == "" {
		return writeError(c, apperr.ErrMissingCredential)
	}
	tokens, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tokens)
}

// ListUsers returns every user.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	return h.serve(c, "list-users", fiber.StatusOK, nil, func(ctx context.Context, _ *user.Principal) (any, error) {
		users, err := h.auth.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		if users == nil {
			users = []auth.UserDTO{}
		}
		c.Set(TotalCountHeader, strconv.Itoa(len(users)))
		return users, nil
	})
}

// GetUser returns a single user.
func (h *Handlers) GetUser(c *fiber.Ctx) error {
	return h.serve(c, "get-user", fiber.StatusOK, nil, func(ctx context.Context, _ *user.Principal) (any, error) {
		id, err := parseID(c)
		if err != nil {
			return nil, err
		}
		return h.auth.GetUser(ctx, id)
	})
}

// UpdateUser applies a partial update. Users may update themselves; only
// admins may update others or change a role.
func (h *Handlers) UpdateUser(c *fiber.Ctx) error {
	var (
		id  uint
		req UpdateUserRequest
	)
	authorize := func(_ context.Context, p *user.Principal) error {
		var err error
		if id, err = parseID(c); err != nil {
			return err
		}
		if err := authz.AuthorizeOwner(p, authz.ActionUserWrite, id); err != nil {
			return err
		}
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if req.Role != nil {
			return authz.AuthorizeOwner(p, authz.ActionUserRole, id)
		}
		return nil
	}
	return h.serve(c, "update-user", fiber.StatusOK, authorize, func(ctx context.Context, p *user.Principal) (any, error) {
		update := auth.UpdateUserRequest{
			Actor:     p,
			ID:        id,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Password:  req.Password,
		}
		if req.Role != nil {
			role := user.Role(*req.Role)
			if !role.Valid() {
				return nil, apperr.Invalid("role", fmt.Sprintf("unknown role %q", *req.Role))
			}
			update.Role = &role
		}
		return h.auth.UpdateUser(ctx, update)
	})
}

// DeleteUser removes a user that no task references. The auth module
// repeats the reference check atomically with the delete.
func (h *Handlers) DeleteUser(c *fiber.Ctx) error {
	var id uint
	authorize := func(_ context.Context, p *user.Principal) error {
		var err error
		if id, err = parseID(c); err != nil {
			return err
		}
		return authz.AuthorizeOwner(p, authz.ActionUserWrite, id)
	}
	return h.serve(c, "delete-user", fiber.StatusNoContent, authorize, func(ctx context.Context, p *user.Principal) (any, error) {
		refs, err := h.tasks.CountUserTasks(ctx, id)
		if err != nil {
			return nil, err
		}
		if refs > 0 {
			return nil, apperr.Conflict("user", fmt.Sprintf("referenced by %d task(s)", refs))
		}
		return nil, h.auth.DeleteUser(ctx, p, id)
	})
}

// ListTaskStatuses returns the workflow statuses in order.
func (h *Handlers) ListTaskStatuses(c *fiber.Ctx) error {
	return h.serve(c, "list-task-statuses", fiber.StatusOK, nil, func(_ context.Context, _ *user.Principal) (any, error) {
		statuses := make([]TaskStatusResponse, 0, len(task.Statuses))
		for _, s := range task.Statuses {
			statuses = append(statuses, NewTaskStatusResponse(s))
		}
		c.Set(TotalCountHeader, strconv.Itoa(len(statuses)))
		return statuses, nil
	})
}

// GetTaskStatus returns one status by slug or display name.
func (h *Handlers) GetTaskStatus(c *fiber.Ctx) error {
	return h.serve(c, "get-task-status", fiber.StatusOK, nil, func(_ context.Context, _ *user.Principal) (any, error) {
		slug := c.Params("slug")
		s, ok := task.ParseStatus(slug)
		if !ok {
			return nil, apperr.NotFound("task_status", slug)
		}
		return NewTaskStatusResponse(s), nil
	})
}

// ListLabels returns every label.
func (h *Handlers) ListLabels(c *fiber.Ctx) error {
	return h.serve(c, "list-labels", fiber.StatusOK, nil, func(ctx context.Context, _ *user.Principal) (any, error) {
		labels, err := h.tasks.ListLabels(ctx)
		if err != nil {
			return nil, err
		}
		if labels == nil {
			labels = []taskmod.LabelDTO{}
		}
		c.Set(TotalCountHeader, strconv.Itoa(len(labels)))
		return labels, nil
	})
}

// GetLabel returns a single label.
func (h *Handlers) GetLabel(c *fiber.Ctx) error {
	return h.serve(c, "get-label", fiber.StatusOK, nil, func(ctx context.Context, _ *user.Principal) (any, error) {
		id, err := parseID(c)
		if err != nil {
			return nil, err
		}
		return h.tasks.GetLabel(ctx, id)
	})
}

// CreateLabel creates a label.
func (h *Handlers) CreateLabel(c *fiber.Ctx) error {
	return h.serve(c, "create-label", fiber.StatusCreated, requireRole(user.RoleUser, authz.ActionLabelCreate), func(ctx context.Context, p *user.Principal) (any, error) {
		var req LabelRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.tasks.CreateLabel(ctx, p, req.Name)
	})
}

// UpdateLabel renames a label. Admin only.
func (h *Handlers) UpdateLabel(c *fiber.Ctx) error {
	return h.serve(c, "update-label", fiber.StatusOK, requireAdmin(authz.ActionLabelWrite), func(ctx context.Context, p *user.Principal) (any, error) {
		id, err := parseID(c)
		if err != nil {
			return nil, err
		}
		var req LabelRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		return h.tasks.UpdateLabel(ctx, p, id, req.Name)
	})
}

// DeleteLabel removes a label no task references. Admin only.
func (h *Handlers) DeleteLabel(c *fiber.Ctx) error {
	return h.serve(c, "delete-label", fiber.StatusNoContent, requireAdmin(authz.ActionLabelWrite), func(ctx context.Context, p *user.Principal) (any, error) {
		id, err := parseID(c)
		if err != nil {
			return nil, err
		}
		return nil, h.tasks.DeleteLabel(ctx, p, id)
	})
}

// ListTasks returns the tasks matching the query filters that the caller
// may read.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	return h.serve(c, "list-tasks", fiber.StatusOK, nil, func(ctx context.Context, p *user.Principal) (any, error) {
		f, err := h.filters.Build(c.Queries())
		if err != nil {
			return nil, err
		}
		tasks, err := h.tasks.ListTasks(ctx, p, f)
		if err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []taskmod.TaskDTO{}
		}
		c.Set(TotalCountHeader, strconv.Itoa(len(tasks)))
		return tasks, nil
	})
}

// GetTask returns a single task.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	var snapshot *taskmod.TaskDTO
	authorize := func(ctx context.Context, p *user.Principal) error {
		var err error
		if snapshot, err = h.loadTask(ctx, c, p); err != nil {
			return err
		}
		return authz.Authorize(p, authz.ActionTaskRead, snapshot.Snapshot())
	}
	return h.serve(c, "get-task", fiber.StatusOK, authorize, func(context.Context, *user.Principal) (any, error) {
		return snapshot, nil
	})
}

// CreateTask creates a task authored by the caller.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	return h.serve(c, "create-task", fiber.StatusCreated, nil, func(ctx context.Context, p *user.Principal) (any, error) {
		var req CreateTaskRequest
		if err := parseBody(c, &req); err != nil {
			return nil, err
		}
		create := taskmod.CreateTaskRequest{
			Actor:      p,
			Title:      req.Title,
			Content:    req.Content,
			Index:      req.Index,
			AssigneeID: req.AssigneeID,
			LabelIDs:   req.LabelIDs,
		}
		if req.Status != "" {
			s, err := parseStatus("status", req.Status)
			if err != nil {
				return nil, err
			}
			create.Status = &s
		}
		return h.tasks.CreateTask(ctx, create)
	})
}

// UpdateTask applies a partial update to a task. A status change must be a
// legal workflow step from the loaded snapshot.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	var (
		id     uint
		req    UpdateTaskRequest
		status *task.Status
	)
	authorize := func(ctx context.Context, p *user.Principal) error {
		snapshot, err := h.loadTask(ctx, c, p)
		if err != nil {
			return err
		}
		t := snapshot.Snapshot()
		if err := authz.Authorize(p, authz.ActionTaskWrite, t); err != nil {
			return err
		}
		id = t.ID
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if req.Status == nil {
			return nil
		}
		s, err := parseStatus("status", *req.Status)
		if err != nil {
			return err
		}
		status = &s
		if s == t.Status {
			return nil
		}
		return authz.CanTransition(p, t, s)
	}
	return h.serve(c, "update-task", fiber.StatusOK, authorize, func(ctx context.Context, p *user.Principal) (any, error) {
		return h.tasks.UpdateTask(ctx, taskmod.UpdateTaskRequest{
			Actor:      p,
			ID:         id,
			Title:      req.Title,
			Content:    req.Content,
			Index:      req.Index,
			Status:     status,
			AssigneeID: req.AssigneeID,
			LabelIDs:   req.LabelIDs,
		})
	})
}

// TransitionTask moves a task along the workflow. The step is authorized
// against the loaded snapshot; the task module re-checks it with a
// compare-and-swap on the stored status.
func (h *Handlers) TransitionTask(c *fiber.Ctx) error {
	var transition taskmod.TransitionTaskRequest
	authorize := func(ctx context.Context, p *user.Principal) error {
		snapshot, err := h.loadTask(ctx, c, p)
		if err != nil {
			return err
		}
		t := snapshot.Snapshot()
		if !authz.CanWrite(p, t) {
			return apperr.Forbidden(string(authz.ActionTaskTransition))
		}
		var req TransitionRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		transition = taskmod.TransitionTaskRequest{Actor: p, ID: t.ID}
		if transition.To, err = parseStatus("status", req.Status); err != nil {
			return err
		}
		if req.From != "" {
			from, err := parseStatus("from", req.From)
			if err != nil {
				return err
			}
			transition.From = &from
			// A stale expectation is reported as a conflict by the task module.
			if from != t.Status {
				return nil
			}
		}
		return authz.CanTransition(p, t, transition.To)
	}
	return h.serve(c, "transition-task", fiber.StatusOK, authorize, func(ctx context.Context, p *user.Principal) (any, error) {
		transition.Actor = p
		return h.tasks.TransitionTask(ctx, transition)
	})
}

// DeleteTask removes a task.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	var id uint
	authorize := func(ctx context.Context, p *user.Principal) error {
		snapshot, err := h.loadTask(ctx, c, p)
		if err != nil {
			return err
		}
		id = snapshot.ID
		return authz.Authorize(p, authz.ActionTaskDelete, snapshot.Snapshot())
	}
	return h.serve(c, "delete-task", fiber.StatusNoContent, authorize, func(ctx context.Context, p *user.Principal) (any, error) {
		return nil, h.tasks.DeleteTask(ctx, p, id)
	})
}

// ListActivity returns the most recent task events. Admin only.
func (h *Handlers) ListActivity(c *fiber.Ctx) error {
	return h.serve(c, "list-activity", fiber.StatusOK, requireAdmin(authz.ActionActivityRead), func(ctx context.Context, p *user.Principal) (any, error) {
		limit := c.QueryInt("limit", DefaultActivityLimit)
		if limit <= 0 {
			return nil, apperr.Invalid("limit", "must be a positive integer")
		}
		entries, total, err := h.activity.ListActivity(ctx, p, limit)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []activity.Entry{}
		}
		c.Set(TotalCountHeader, strconv.Itoa(total))
		return entries, nil
	})
}
