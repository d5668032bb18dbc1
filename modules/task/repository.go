package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
)

// ErrLabelExists is returned when a label name is already taken.
var ErrLabelExists = apperr.Conflict("label", "name already in use")

// likeEscaper escapes the LIKE wildcards of a user-supplied substring.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// TaskRepository is the persistence collaborator for tasks and labels.
// Every filter predicate maps onto a fixed, indexed column; values are always
// bound as query parameters.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{
		db: db,
	}
}

// FindByID returns the task with id and its labels.
func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*task.Task, error) {
	var t task.Task
	err := r.db.WithContext(ctx).Preload("Labels").First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task", id)
		}
		return nil, err
	}
	return &t, nil
}

// FindAll returns the tasks matching every predicate of f, ordered by id.
func (r *TaskRepository) FindAll(ctx context.Context, f task.Filter) ([]task.Task, error) {
	query, err := applyFilter(r.db.WithContext(ctx).Model(&task.Task{}), f)
	if err != nil {
		return nil, err
	}
	var tasks []task.Task
	if err := query.Preload("Labels").Order("tasks.id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func applyFilter(db *gorm.DB, f task.Filter) (*gorm.DB, error) {
	for _, p := range f.Predicates() {
		switch p.Field {
		case task.FieldStatus:
			db = db.Where("tasks.status = ?", p.Value)
		case task.FieldAssignee:
			db = db.Where("tasks.assignee_id = ?", p.Value)
		case task.FieldLabel:
			db = db.Where("EXISTS (SELECT 1 FROM task_labels tl WHERE tl.task_id = tasks.id AND tl.label_id = ?)", p.Value)
		case task.FieldTitle:
			pattern := "%" + likeEscaper.Replace(strings.ToLower(p.Value.(string))) + "%"
			db = db.Where(`LOWER(tasks.title) LIKE ? ESCAPE '\'`, pattern)
		case task.FieldVisibleTo:
			db = db.Where("(tasks.author_id = ? OR tasks.assignee_id = ?)", p.Value, p.Value)
		default:
			return nil, fmt.Errorf("unsupported predicate field %q", p.Field)
		}
	}
	return db, nil
}

// Create inserts t and links its labels. Labels must already exist and
// are never written through the task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.Version == 0 {
			t.Version = 1
		}
		if err := requireUsers(tx, &t.AuthorID, t.AssigneeID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			return err
		}
		return linkLabels(tx, t.ID, t.Labels)
	})
}

// Save writes every mutable column of t when its version still matches the
// stored row, then replaces its label set. On success t.Version is bumped.
func (r *TaskRepository) Save(ctx context.Context, t *task.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUsers(tx, nil, t.AssigneeID); err != nil {
			return err
		}
		result := tx.Model(&task.Task{}).
			Where("id = ? AND version = ?", t.ID, t.Version).
			Updates(map[string]any{
				"title":       t.Title,
				"content":     t.Content,
				"task_index":  t.Index,
				"status":      t.Status,
				"assignee_id": t.AssigneeID,
				"version":     gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.missingOrStale(tx, t.ID)
		}
		t.Version++
		if err := tx.Exec("DELETE FROM task_labels WHERE task_id = ?", t.ID).Error; err != nil {
			return err
		}
		return linkLabels(tx, t.ID, t.Labels)
	})
}

// requireUsers checks, inside the write transaction, that the referenced
// users still exist. It is a no-op when the store has no users table.
func requireUsers(tx *gorm.DB, authorID, assigneeID *uint) error {
	var ids []uint
	if authorID != nil {
		ids = append(ids, *authorID)
	}
	if assigneeID != nil {
		ids = append(ids, *assigneeID)
	}
	if len(ids) == 0 || !tx.Migrator().HasTable(&user.User{}) {
		return nil
	}

	var found []uint
	if err := tx.Model(&user.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return err
	}
	if authorID != nil && !slices.Contains(found, *authorID) {
		return &apperr.AuthError{
			Reason: apperr.ReasonUnauthenticated,
			Err:    fmt.Errorf("user %d no longer exists", *authorID),
		}
	}
	if assigneeID != nil && !slices.Contains(found, *assigneeID) {
		return apperr.Invalid("assigneeId", fmt.Sprintf("user %d does not exist", *assigneeID))
	}
	return nil
}

func linkLabels(tx *gorm.DB, taskID uint, labels []task.Label) error {
	for _, l := range labels {
		if err := tx.Exec("INSERT INTO task_labels (task_id, label_id) VALUES (?, ?)", taskID, l.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus moves the task from one status to another only if neither its
// status nor its version changed since it was read. It returns the new
// version.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id uint, from, to task.Status, version int) (int, error) {
	result := r.db.WithContext(ctx).Model(&task.Task{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, r.missingOrStale(r.db.WithContext(ctx), id)
	}
	return version + 1, nil
}

func (r *TaskRepository) missingOrStale(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&task.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.NotFound("task", id)
	}
	return apperr.Conflict("task", "modified concurrently")
}

// Delete removes the task with id and its label links. It reports whether a
// row was deleted.
func (r *TaskRepository) Delete(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM task_labels WHERE task_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&task.Task{}, id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// CountByUser counts tasks authored by or assigned to userID.
func (r *TaskRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&task.Task{}).
		Where("author_id = ? OR assignee_id = ?", userID, userID).
		Count(&count).Error
	return count, err
}

// CreateLabel inserts l.
func (r *TaskRepository) CreateLabel(ctx context.Context, l *task.Label) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return translateLabel(err)
	}
	return nil
}

// FindLabelByID returns the label with id.
func (r *TaskRepository) FindLabelByID(ctx context.Context, id uint) (*task.Label, error) {
	var l task.Label
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("label", id)
		}
		return nil, err
	}
	return &l, nil
}

// FindLabelByName returns the label named name.
func (r *TaskRepository) FindLabelByName(ctx context.Context, name string) (*task.Label, error) {
	var l task.Label
	if err := r.db.WithContext(ctx).First(&l, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("label", name)
		}
		return nil, err
	}
	return &l, nil
}

// FindLabelsByIDs returns the labels whose ids are in ids.
func (r *TaskRepository) FindLabelsByIDs(ctx context.Context, ids []uint) ([]task.Label, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var labels []task.Label
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

// ListLabels returns every label ordered by id.
func (r *TaskRepository) ListLabels(ctx context.Context) ([]task.Label, error) {
	var labels []task.Label
	if err := r.db.WithContext(ctx).Order("id").Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

// UpdateLabel renames l.
func (r *TaskRepository) UpdateLabel(ctx context.Context, l *task.Label) error {
	result := r.db.WithContext(ctx).Model(&task.Label{}).Where("id = ?", l.ID).Update("name", l.Name)
	if result.Error != nil {
		return translateLabel(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("label", l.ID)
	}
	return nil
}

// DeleteLabel removes the label with id. Labels still attached to a task are
// never removed.
func (r *TaskRepository) DeleteLabel(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Table("task_labels").Where("label_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return apperr.Conflict("label", fmt.Sprintf("referenced by %d task(s)", refs))
		}
		result := tx.Delete(&task.Label{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound("label", id)
		}
		return nil
	})
}

func translateLabel(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrLabelExists
	}
	return err
}
