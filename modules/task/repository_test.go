package task

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/task-manager/database"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"), &task.Label{}, &task.Task{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func ptr[T any](v T) *T { return &v }

func seedLabels(t *testing.T, repo *TaskRepository, names ...string) []task.Label {
	t.Helper()
	labels := make([]task.Label, 0, len(names))
	for _, name := range names {
		l := &task.Label{Name: name}
		require.NoError(t, repo.CreateLabel(context.Background(), l))
		labels = append(labels, *l)
	}
	return labels
}

func TestTaskRepository_RoundTrip(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature", "bug", "docs")

	in := &task.Task{
		Title:      "Write docs",
		Content:    "All of them",
		Index:      ptr(7),
		Status:     task.StatusToReview,
		AssigneeID: ptr(uint(3)),
		AuthorID:   2,
		Labels:     []task.Label{labels[2], labels[0]},
	}
	require.NoError(t, repo.Create(ctx, in))
	require.NotZero(t, in.ID)

	got, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, 7, *got.Index)
	assert.Equal(t, task.StatusToReview, got.Status)
	assert.Equal(t, uint(3), *got.AssigneeID)
	assert.Equal(t, uint(2), got.AuthorID)
	assert.Equal(t, 1, got.Version)
	assert.ElementsMatch(t, in.LabelIDs(), got.LabelIDs())

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskRepository_SaveChecksVersion(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature", "bug")

	tk := &task.Task{Title: "v1", Status: task.StatusDraft, AuthorID: 1, Labels: labels[:1]}
	require.NoError(t, repo.Create(ctx, tk))

	stale := *tk
	tk.Title = "v2"
	tk.Labels = labels[1:]
	tk.AssigneeID = ptr(uint(5))
	require.NoError(t, repo.Save(ctx, tk))
	assert.Equal(t, 2, tk.Version)

	got, err := repo.FindByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, []uint{labels[1].ID}, got.LabelIDs())
	assert.Equal(t, 2, got.Version)

	stale.Title = "lost update"
	assert.ErrorIs(t, repo.Save(ctx, &stale), apperr.ErrConflict)

	missing := &task.Task{ID: 404, Version: 1}
	assert.ErrorIs(t, repo.Save(ctx, missing), apperr.ErrNotFound)
}

func TestTaskRepository_UpdateStatusCompareAndSwap(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()

	tk := &task.Task{Title: "cas", Status: task.StatusToReview, AuthorID: 1}
	require.NoError(t, repo.Create(ctx, tk))

	version, err := repo.UpdateStatus(ctx, tk.ID, task.StatusToReview, task.StatusToPublish, tk.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = repo.UpdateStatus(ctx, tk.ID, task.StatusToReview, task.StatusToBeFixed, tk.Version)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = repo.UpdateStatus(ctx, 999, task.StatusDraft, task.StatusToReview, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskRepository_FindAllFilters(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature", "bug")
	feature, bug := labels[0], labels[1]

	fixtures := []*task.Task{
		{Title: "Publish release notes", Status: task.StatusPublished, AuthorID: 1, AssigneeID: ptr(uint(42)), Labels: []task.Label{feature}},
		{Title: "Fix 100% CPU", Status: task.StatusPublished, AuthorID: 1, AssigneeID: ptr(uint(7)), Labels: []task.Label{bug}},
		{Title: "Draft roadmap", Status: task.StatusDraft, AuthorID: 42, Labels: []task.Label{feature, bug}},
		{Title: "snake_case names", Status: task.StatusToReview, AuthorID: 7, AssigneeID: ptr(uint(42))},
	}
	for _, tk := range fixtures {
		require.NoError(t, repo.Create(ctx, tk))
	}

	titles := func(f task.Filter) []string {
		t.Helper()
		tasks, err := repo.FindAll(ctx, f)
		require.NoError(t, err)
		out := make([]string, 0, len(tasks))
		for _, tk := range tasks {
			out = append(out, tk.Title)
		}
		return out
	}

	tests := []struct {
		name   string
		filter task.Filter
		want   []string
	}{
		{"empty filter", task.Filter{}, []string{"Publish release notes", "Fix 100% CPU", "Draft roadmap", "snake_case names"}},
		{"published assigned to 42", task.Filter{Status: ptr(task.StatusPublished), AssigneeID: ptr(uint(42))}, []string{"Publish release notes"}},
		{"label", task.Filter{LabelID: ptr(bug.ID)}, []string{"Fix 100% CPU", "Draft roadmap"}},
		{"label and status", task.Filter{LabelID: ptr(feature.ID), Status: ptr(task.StatusDraft)}, []string{"Draft roadmap"}},
		{"title case-insensitive", task.Filter{TitleContains: ptr("ROAD")}, []string{"Draft roadmap"}},
		{"percent is literal", task.Filter{TitleContains: ptr("100%")}, []string{"Fix 100% CPU"}},
		{"underscore is literal", task.Filter{TitleContains: ptr("e_c")}, []string{"snake_case names"}},
		{"injection attempt is a literal", task.Filter{TitleContains: ptr("' OR 1=1 --")}, []string{}},
		{"visible to 42", task.Filter{VisibleTo: ptr(uint(42))}, []string{"Publish release notes", "Draft roadmap", "snake_case names"}},
		{"unknown label", task.Filter{LabelID: ptr(uint(999))}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(tt.filter))
		})
	}
}

func TestTaskRepository_FindAllAgreesWithMatches(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature")

	for i, status := range task.Statuses {
		tk := &task.Task{Title: "task " + string(status), Status: status, AuthorID: uint(i%2 + 1)}
		if i%2 == 0 {
			tk.Labels = labels
			tk.AssigneeID = ptr(uint(9))
		}
		require.NoError(t, repo.Create(ctx, tk))
	}

	all, err := repo.FindAll(ctx, task.Filter{})
	require.NoError(t, err)

	filters := []task.Filter{
		{Status: ptr(task.StatusToReview)},
		{AssigneeID: ptr(uint(9))},
		{LabelID: ptr(labels[0].ID), VisibleTo: ptr(uint(1))},
		{TitleContains: ptr("to_")},
	}
	for _, f := range filters {
		got, err := repo.FindAll(ctx, f)
		require.NoError(t, err)
		var want []uint
		for i := range all {
			if f.Matches(&all[i]) {
				want = append(want, all[i].ID)
			}
		}
		var ids []uint
		for _, tk := range got {
			ids = append(ids, tk.ID)
		}
		assert.Equal(t, want, ids)
	}
}

func TestTaskRepository_DeleteAndCount(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature")

	tk := &task.Task{Title: "to delete", Status: task.StatusDraft, AuthorID: 1, AssigneeID: ptr(uint(2)), Labels: labels}
	require.NoError(t, repo.Create(ctx, tk))

	count, err := repo.CountByUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, repo.DeleteLabel(ctx, labels[0].ID), apperr.ErrConflict)

	deleted, err := repo.Delete(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err = repo.CountByUser(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.DeleteLabel(ctx, labels[0].ID))
	assert.ErrorIs(t, repo.DeleteLabel(ctx, labels[0].ID), apperr.ErrNotFound)
}

func TestTaskRepository_Labels(t *testing.T) {
	repo := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	labels := seedLabels(t, repo, "feature", "bug")

	assert.ErrorIs(t, repo.CreateLabel(ctx, &task.Label{Name: "bug"}), apperr.ErrConflict)

	found, err := repo.FindLabelByName(ctx, "bug")
	require.NoError(t, err)
	assert.Equal(t, labels[1].ID, found.ID)

	_, err = repo.FindLabelByName(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	renamed := &task.Label{ID: labels[0].ID, Name: "bug"}
	assert.ErrorIs(t, repo.UpdateLabel(ctx, renamed), apperr.ErrConflict)

	renamed.Name = "enhancement"
	require.NoError(t, repo.UpdateLabel(ctx, renamed))

	byIDs, err := repo.FindLabelsByIDs(ctx, []uint{labels[1].ID, labels[0].ID, 999})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "enhancement", byIDs[0].Name)

	all, err := repo.ListLabels(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTaskRepository_RequiresExistingUsers(t *testing.T) {
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"), &user.User{}, &task.Label{}, &task.Task{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	repo := NewTaskRepository(db)
	ctx := context.Background()

	author := &user.User{Email: "author@example.com", PasswordHash: "x", Role: user.RoleUser}
	require.NoError(t, db.Create(author).Error)

	err = repo.Create(ctx, &task.Task{Title: "orphan", Status: task.StatusDraft, AuthorID: author.ID + 100})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	err = repo.Create(ctx, &task.Task{Title: "ghost", Status: task.StatusDraft, AuthorID: author.ID, AssigneeID: ptr(author.ID + 100)})
	assert.ErrorIs(t, err, &apperr.ValidationError{Field: "assigneeId"})

	tk := &task.Task{Title: "kept", Status: task.StatusDraft, AuthorID: author.ID, AssigneeID: ptr(author.ID)}
	require.NoError(t, repo.Create(ctx, tk))

	tk.AssigneeID = ptr(author.ID + 100)
	err = repo.Save(ctx, tk)
	assert.ErrorIs(t, err, &apperr.ValidationError{Field: "assigneeId"})
	assert.Equal(t, 1, tk.Version)

	var count int64
	require.NoError(t, db.Model(&task.Task{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
