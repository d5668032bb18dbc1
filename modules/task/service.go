package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"

	"github.com/example/task-manager/authz"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/events"
	"github.com/example/task-manager/modules/auth"
)

// MaxTitleLength bounds task titles in characters.
const MaxTitleLength = 255

// labelCatalogKey is the cache key of the full label list.
const labelCatalogKey = "labels:all"

// UserLookup resolves user ids. It is satisfied by auth.AuthPort.
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*auth.UserDTO, error)
}

// EventPublisher publishes task lifecycle events.
type EventPublisher interface {
	PublishTaskCreated(events.TaskCreatedEvent) error
	PublishTaskStatusChanged(events.TaskStatusChangedEvent) error
	PublishTaskDeleted(events.TaskDeletedEvent) error
}

// LabelCache is the subset of the cache plugin used for the label catalog.
type LabelCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// CreateTaskInput carries the fields of a new task.
type CreateTaskInput struct {
	Title      string
	Content    string
	Index      *int
	Status     *task.Status
	AssigneeID *uint
	LabelIDs   []uint
}

// UpdateTaskInput carries a partial task update. Nil fields are unchanged.
// An AssigneeID pointing at zero clears the assignee.
type UpdateTaskInput struct {
	Title      *string
	Content    *string
	Index      *int
	Status     *task.Status
	AssigneeID *uint
	LabelIDs   *[]uint
}

// TaskService applies authorization and workflow rules on top of the
// repository. It keeps no per-request state.
type TaskService struct {
	repo      *TaskRepository
	users     UserLookup
	publisher EventPublisher
	cache     LabelCache
	logger    types.Logger
	sfGroup   singleflight.Group
	now       func() time.Time
}

// NewTaskService creates a new TaskService. publisher and cache may be nil.
func NewTaskService(repo *TaskRepository, users UserLookup, publisher EventPublisher, cache LabelCache, logger types.Logger) *TaskService {
	return &TaskService{
		repo:      repo,
		users:     users,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// ListTasks returns the tasks matching f that actor may read.
func (s *TaskService) ListTasks(ctx context.Context, actor *user.Principal, f task.Filter) ([]task.Task, error) {
	if actor == nil {
		return nil, apperr.Forbidden(string(authz.ActionTaskRead))
	}
	f.VisibleTo = nil
	if !actor.IsAdmin() {
		id := actor.ID
		f.VisibleTo = &id
	}
	return s.repo.FindAll(ctx, f)
}

// GetTask returns the task with id when actor may read it.
func (s *TaskService) GetTask(ctx context.Context, actor *user.Principal, id uint) (*task.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.ActionTaskRead, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask creates a task authored by actor.
func (s *TaskService) CreateTask(ctx context.Context, actor *user.Principal, in CreateTaskInput) (*task.Task, error) {
	if actor == nil {
		return nil, apperr.Forbidden(string(authz.ActionTaskWrite))
	}
	if err := s.checkAuthor(ctx, actor.ID); err != nil {
		return nil, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}

	t := &task.Task{
		Title:    title,
		Content:  in.Content,
		Index:    in.Index,
		Status:   task.StatusDraft,
		AuthorID: actor.ID,
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", *in.Status))
		}
		t.Status = *in.Status
	}
	if in.AssigneeID != nil && *in.AssigneeID != 0 {
		if err := s.checkAssignee(ctx, *in.AssigneeID); err != nil {
			return nil, err
		}
		t.AssigneeID = in.AssigneeID
	}
	if t.Labels, err = s.resolveLabels(ctx, in.LabelIDs); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publish("TaskCreated", t.ID, func(p EventPublisher) error {
		return p.PublishTaskCreated(events.TaskCreatedEvent{
			TaskID:     t.ID,
			Title:      t.Title,
			Status:     string(t.Status),
			AuthorID:   t.AuthorID,
			AssigneeID: t.AssigneeID,
			CreatedAt:  t.CreatedAt,
		})
	})
	return t, nil
}

// UpdateTask applies in to the task with id. Status changes follow the
// workflow and are rejected when the task changed since it was read.
func (s *TaskService) UpdateTask(ctx context.Context, actor *user.Principal, id uint, in UpdateTaskInput) (*task.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.ActionTaskWrite, t); err != nil {
		return nil, err
	}

	from := t.Status
	if in.Status != nil && *in.Status != t.Status {
		if !in.Status.Valid() {
			return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", *in.Status))
		}
		if err := authz.CanTransition(actor, t, *in.Status); err != nil {
			return nil, err
		}
		t.Status = *in.Status
	}
	if in.Title != nil {
		if t.Title, err = validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Content != nil {
		t.Content = *in.Content
	}
	if in.Index != nil {
		t.Index = in.Index
	}
	if in.AssigneeID != nil {
		if *in.AssigneeID == 0 {
			t.AssigneeID = nil
		} else {
			if err := s.checkAssignee(ctx, *in.AssigneeID); err != nil {
				return nil, err
			}
			t.AssigneeID = in.AssigneeID
		}
	}
	if in.LabelIDs != nil {
		if t.Labels, err = s.resolveLabels(ctx, *in.LabelIDs); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}

	if t.Status != from {
		s.publishStatusChanged(t, from, actor.ID)
	}
	return t, nil
}

// TransitionTask moves the task with id to the status to. When expectedFrom
// is set the task must still be in that status. Of several concurrent
// transitions from the same state exactly one succeeds; the others fail
// with a ConflictError.
func (s *TaskService) TransitionTask(ctx context.Context, actor *user.Principal, id uint, to task.Status, expectedFrom *task.Status) (*task.Task, error) {
	if !to.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, authz.ActionTaskRead, t); err != nil {
		return nil, err
	}
	if expectedFrom != nil && *expectedFrom != t.Status {
		return nil, apperr.Conflict("task", fmt.Sprintf("status is %s, expected %s", t.Status, *expectedFrom))
	}
	if err := authz.CanTransition(actor, t, to); err != nil {
		return nil, err
	}

	from := t.Status
	version, err := s.repo.UpdateStatus(ctx, t.ID, from, to, t.Version)
	if err != nil {
		return nil, err
	}
	t.Status = to
	t.Version = version

	s.publishStatusChanged(t, from, actor.ID)
	return t, nil
}

// DeleteTask removes the task with id.
func (s *TaskService) DeleteTask(ctx context.Context, actor *user.Principal, id uint) error {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(actor, authz.ActionTaskDelete, t); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return apperr.NotFound("task", id)
	}

	s.publish("TaskDeleted", id, func(p EventPublisher) error {
		return p.PublishTaskDeleted(events.TaskDeletedEvent{
			TaskID:    id,
			ActorID:   actor.ID,
			DeletedAt: s.now(),
		})
	})
	return nil
}

// CountUserReferences counts tasks authored by or assigned to userID.
func (s *TaskService) CountUserReferences(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountByUser(ctx, userID)
}

// ListLabels returns every label, served from the cache when one is
// configured.
func (s *TaskService) ListLabels(ctx context.Context) ([]task.Label, error) {
	if s.cache != nil {
		var cached []task.Label
		found, err := s.cache.Get(ctx, labelCatalogKey, &cached)
		if err != nil {
			s.logger.Warn("Label cache read failed", "error", err)
		}
		if found {
			return cached, nil
		}
	}

	// Callers collapsed onto one load must not fail when the first of them
	// is cancelled.
	loadCtx := context.WithoutCancel(ctx)
	val, err, _ := s.sfGroup.Do(labelCatalogKey, func() (any, error) {
		return s.repo.ListLabels(loadCtx)
	})
	if err != nil {
		return nil, err
	}
	labels := slices.Clone(val.([]task.Label))

	if s.cache != nil {
		if err := s.cache.Set(ctx, labelCatalogKey, labels); err != nil {
			s.logger.Warn("Label cache write failed", "error", err)
		}
	}
	return labels, nil
}

// GetLabel returns the label with id.
func (s *TaskService) GetLabel(ctx context.Context, id uint) (*task.Label, error) {
	return s.repo.FindLabelByID(ctx, id)
}

// CreateLabel creates a label. Any authenticated user may create labels.
func (s *TaskService) CreateLabel(ctx context.Context, actor *user.Principal, name string) (*task.Label, error) {
	if err := authz.RequireRole(actor, user.RoleUser, authz.ActionLabelCreate); err != nil {
		return nil, err
	}
	name, err := validateLabelName(name)
	if err != nil {
		return nil, err
	}
	l := &task.Label{Name: name}
	if err := s.repo.CreateLabel(ctx, l); err != nil {
		return nil, err
	}
	s.invalidateLabels(ctx)
	return l, nil
}

// UpdateLabel renames the label with id. Admin only.
func (s *TaskService) UpdateLabel(ctx context.Context, actor *user.Principal, id uint, name string) (*task.Label, error) {
	if err := authz.RequireRole(actor, user.RoleAdmin, authz.ActionLabelWrite); err != nil {
		return nil, err
	}
	name, err := validateLabelName(name)
	if err != nil {
		return nil, err
	}
	l, err := s.repo.FindLabelByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Name == name {
		return l, nil
	}
	l.Name = name
	if err := s.repo.UpdateLabel(ctx, l); err != nil {
		return nil, err
	}
	s.invalidateLabels(ctx)
	return l, nil
}

// DeleteLabel removes the label with id. Admin only; labels still attached
// to a task fail with a ConflictError.
func (s *TaskService) DeleteLabel(ctx context.Context, actor *user.Principal, id uint) error {
	if err := authz.RequireRole(actor, user.RoleAdmin, authz.ActionLabelWrite); err != nil {
		return err
	}
	if err := s.repo.DeleteLabel(ctx, id); err != nil {
		return err
	}
	s.invalidateLabels(ctx)
	return nil
}

// SeedLabels creates any of names that do not exist yet.
func (s *TaskService) SeedLabels(ctx context.Context, names ...string) (int, error) {
	created := 0
	for _, name := range names {
		_, err := s.repo.FindLabelByName(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return created, err
		}
		if err := s.repo.CreateLabel(ctx, &task.Label{Name: name}); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		s.invalidateLabels(ctx)
	}
	return created, nil
}

func (s *TaskService) invalidateLabels(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, labelCatalogKey); err != nil {
		s.logger.Warn("Label cache invalidation failed", "error", err)
	}
}

// checkAuthor rejects principals whose user was deleted while their token
// is still valid.
func (s *TaskService) checkAuthor(ctx context.Context, id uint) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.GetUser(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &apperr.AuthError{
				Reason: apperr.ReasonUnauthenticated,
				Err:    fmt.Errorf("user %d no longer exists", id),
			}
		}
		return err
	}
	return nil
}

func (s *TaskService) checkAssignee(ctx context.Context, id uint) error {
	if s.users == nil {
		return nil
	}
	if _, err := s.users.GetUser(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Invalid("assigneeId", fmt.Sprintf("user %d does not exist", id))
		}
		return err
	}
	return nil
}

func (s *TaskService) resolveLabels(ctx context.Context, ids []uint) ([]task.Label, error) {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	if len(ids) == 0 {
		return nil, nil
	}
	labels, err := s.repo.FindLabelsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(ids) {
		for _, id := range ids {
			if !slices.ContainsFunc(labels, func(l task.Label) bool { return l.ID == id }) {
				return nil, apperr.Invalid("labelIds", fmt.Sprintf("label %d does not exist", id))
			}
		}
	}
	return labels, nil
}

func (s *TaskService) publishStatusChanged(t *task.Task, from task.Status, actorID uint) {
	s.publish("TaskStatusChanged", t.ID, func(p EventPublisher) error {
		return p.PublishTaskStatusChanged(events.TaskStatusChangedEvent{
			TaskID:    t.ID,
			From:      string(from),
			To:        string(t.Status),
			ActorID:   actorID,
			Version:   t.Version,
			ChangedAt: s.now(),
		})
	})
}

// publish is best-effort: a failed publish is logged and never fails the
// operation that already committed.
func (s *TaskService) publish(event string, taskID uint, fn func(EventPublisher) error) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher); err != nil {
		s.logger.Warn("Failed to publish event", "event", event, "taskID", taskID, "error", err)
	}
}

func validateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", apperr.Invalid("title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperr.Invalid("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	return title, nil
}

func validateLabelName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(name); n < task.LabelNameMin || n > task.LabelNameMax {
		return "", apperr.Invalid("name", fmt.Sprintf("must be between %d and %d characters", task.LabelNameMin, task.LabelNameMax))
	}
	return name, nil
}
