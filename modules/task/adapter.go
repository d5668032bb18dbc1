package task

import (
	"context"
	"encoding/json"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
)

// TaskPort defines the task operations available to other modules.
type TaskPort interface {
	ListTasks(ctx context.Context, actor *user.Principal, f task.Filter) ([]TaskDTO, error)
	GetTask(ctx context.Context, actor *user.Principal, id uint) (*TaskDTO, error)
	CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskDTO, error)
	UpdateTask(ctx context.Context, req UpdateTaskRequest) (*TaskDTO, error)
	TransitionTask(ctx context.Context, req TransitionTaskRequest) (*TaskDTO, error)
	DeleteTask(ctx context.Context, actor *user.Principal, id uint) error
	CountUserTasks(ctx context.Context, userID uint) (int64, error)
	ListLabels(ctx context.Context) ([]LabelDTO, error)
	GetLabel(ctx context.Context, id uint) (*LabelDTO, error)
	CreateLabel(ctx context.Context, actor *user.Principal, name string) (*LabelDTO, error)
	UpdateLabel(ctx context.Context, actor *user.Principal, id uint, name string) (*LabelDTO, error)
	DeleteLabel(ctx context.Context, actor *user.Principal, id uint) error
}

// taskAdapter implements TaskPort using the service container.
type taskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a new adapter for task services.
// container is the ServiceContainer from the task module received via SetDependencyServiceContainer.
func NewTaskAdapter(container mono.ServiceContainer) TaskPort {
	if container == nil {
		panic("task adapter requires non-nil ServiceContainer")
	}
	return &taskAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	)
	return apperr.Transport(service, err)
}

func taskCall[Req any](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*TaskDTO, error) {
	var resp TaskResponse
	if err := call(ctx, container, service, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Task, nil
}

// ListTasks returns the tasks matching f that actor may read.
func (a *taskAdapter) ListTasks(ctx context.Context, actor *user.Principal, f task.Filter) ([]TaskDTO, error) {
	req := ListTasksRequest{Actor: actor, Filter: f}
	var resp ListTasksResponse
	if err := call(ctx, a.container, ServiceListTasks, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Tasks, nil
}

// GetTask retrieves a task by ID.
func (a *taskAdapter) GetTask(ctx context.Context, actor *user.Principal, id uint) (*TaskDTO, error) {
	return taskCall(ctx, a.container, ServiceGetTask, &GetTaskRequest{Actor: actor, ID: id})
}

// CreateTask creates a task.
func (a *taskAdapter) CreateTask(ctx context.Context, req CreateTaskRequest) (*TaskDTO, error) {
	return taskCall(ctx, a.container, ServiceCreateTask, &req)
}

// UpdateTask applies a partial update.
func (a *taskAdapter) UpdateTask(ctx context.Context, req UpdateTaskRequest) (*TaskDTO, error) {
	return taskCall(ctx, a.container, ServiceUpdateTask, &req)
}

// TransitionTask moves a task to another status.
func (a *taskAdapter) TransitionTask(ctx context.Context, req TransitionTaskRequest) (*TaskDTO, error) {
	return taskCall(ctx, a.container, ServiceTransitionTask, &req)
}

// DeleteTask removes a task.
func (a *taskAdapter) DeleteTask(ctx context.Context, actor *user.Principal, id uint) error {
	req := DeleteRequest{Actor: actor, ID: id}
	var resp DeleteResponse
	if err := call(ctx, a.container, ServiceDeleteTask, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}

// CountUserTasks counts tasks authored by or assigned to userID.
func (a *taskAdapter) CountUserTasks(ctx context.Context, userID uint) (int64, error) {
	req := CountUserTasksRequest{UserID: userID}
	var resp CountUserTasksResponse
	if err := call(ctx, a.container, ServiceCountUserTasks, &req, &resp); err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, resp.Error.Err()
	}
	return resp.Count, nil
}

// ListLabels returns every label.
func (a *taskAdapter) ListLabels(ctx context.Context) ([]LabelDTO, error) {
	req := ListLabelsRequest{}
	var resp ListLabelsResponse
	if err := call(ctx, a.container, ServiceListLabels, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Labels, nil
}

// GetLabel retrieves a label by ID.
func (a *taskAdapter) GetLabel(ctx context.Context, id uint) (*LabelDTO, error) {
	req := GetLabelRequest{ID: id}
	var resp LabelResponse
	if err := call(ctx, a.container, ServiceGetLabel, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Label, nil
}

// CreateLabel creates a label.
func (a *taskAdapter) CreateLabel(ctx context.Context, actor *user.Principal, name string) (*LabelDTO, error) {
	return a.labelCall(ctx, ServiceCreateLabel, LabelRequest{Actor: actor, Name: name})
}

// UpdateLabel renames a label.
func (a *taskAdapter) UpdateLabel(ctx context.Context, actor *user.Principal, id uint, name string) (*LabelDTO, error) {
	return a.labelCall(ctx, ServiceUpdateLabel, LabelRequest{Actor: actor, ID: id, Name: name})
}

func (a *taskAdapter) labelCall(ctx context.Context, service string, req LabelRequest) (*LabelDTO, error) {
	var resp LabelResponse
	if err := call(ctx, a.container, service, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Label, nil
}

// DeleteLabel removes a label.
func (a *taskAdapter) DeleteLabel(ctx context.Context, actor *user.Principal, id uint) error {
	req := DeleteRequest{Actor: actor, ID: id}
	var resp DeleteResponse
	if err := call(ctx, a.container, ServiceDeleteLabel, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}
