package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/gorm"

	"github.com/example/task-manager/database"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/events"
	"github.com/example/task-manager/modules/auth"
	"github.com/example/task-manager/modules/cache"
)

// Service names registered by the task module.
const (
	ServiceListTasks      = "list-tasks"
	ServiceGetTask        = "get-task"
	ServiceCreateTask     = "create-task"
	ServiceUpdateTask     = "update-task"
	ServiceTransitionTask = "transition-task"
	ServiceDeleteTask     = "delete-task"
	ServiceCountUserTasks = "count-user-tasks"
	ServiceListLabels     = "list-labels"
	ServiceGetLabel       = "get-label"
	ServiceCreateLabel    = "create-label"
	ServiceUpdateLabel    = "update-label"
	ServiceDeleteLabel    = "delete-label"
)

// DefaultLabels are created on first start.
var DefaultLabels = []string{"feature", "bug"}

// TaskModule provides task and label services.
type TaskModule struct {
	dbPath   string
	dbDebug  bool
	db       *gorm.DB
	service  *TaskService
	authPort auth.AuthPort
	eventBus mono.EventBus
	cache    *cache.PluginModule
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*TaskModule)(nil)
	_ mono.ServiceProviderModule = (*TaskModule)(nil)
	_ mono.DependentModule       = (*TaskModule)(nil)
	_ mono.EventEmitterModule    = (*TaskModule)(nil)
	_ mono.UsePluginModule       = (*TaskModule)(nil)
	_ mono.HealthCheckableModule = (*TaskModule)(nil)
	_ EventPublisher             = (*TaskModule)(nil)
)

// NewModule creates a new TaskModule.
func NewModule(dbPath string, dbDebug bool, logger types.Logger) *TaskModule {
	return &TaskModule{
		dbPath:  dbPath,
		dbDebug: dbDebug,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *TaskModule) Name() string {
	return "task"
}

// Dependencies returns the modules this module calls.
func (m *TaskModule) Dependencies() []string {
	return []string{"auth"}
}

// SetDependencyServiceContainer receives the auth service container.
func (m *TaskModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "auth" {
		m.authPort = auth.NewAuthAdapter(container)
	}
}

// SetPlugin receives the optional label cache.
func (m *TaskModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	cachePlugin, ok := plugin.(*cache.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for cache",
			"alias", alias,
			"expected", "*cache.PluginModule")
		return
	}
	m.cache = cachePlugin
	m.logger.Info("Received cache plugin", "alias", alias)
}

// SetEventBus receives the EventBus from the framework.
func (m *TaskModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *TaskModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskStatusChangedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
	}
}

// Start opens the task store and seeds the default labels.
func (m *TaskModule) Start(ctx context.Context) error {
	if m.authPort == nil {
		return fmt.Errorf("authPort dependency not set")
	}
	if m.eventBus == nil {
		m.logger.Warn("EventBus not set, events will not be published")
	}

	db, err := database.Open(m.dbPath, m.dbDebug, &task.Label{}, &task.Task{})
	if err != nil {
		return err
	}
	m.db = db

	var labelCache LabelCache
	if m.cache != nil && m.cache.Port() != nil {
		labelCache = m.cache.Port()
	}
	var publisher EventPublisher
	if m.eventBus != nil {
		publisher = m
	}
	m.service = NewTaskService(NewTaskRepository(db), m.authPort, publisher, labelCache, m.logger)

	created, err := m.service.SeedLabels(ctx, DefaultLabels...)
	if err != nil {
		return fmt.Errorf("failed to seed labels: %w", err)
	}
	if created > 0 {
		m.logger.Info("Seeded labels", "count", created)
	}

	m.logger.Info("Task module started", "database", m.dbPath, "cache", labelCache != nil)
	return nil
}

// Stop shuts down the module.
func (m *TaskModule) Stop(_ context.Context) error {
	if err := database.Close(m.db); err != nil {
		m.logger.Warn("Failed to close database", "error", err)
	}
	m.logger.Info("Task module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *TaskModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get database connection: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"database": m.dbPath,
			"events":   m.eventBus != nil,
		},
	}
}

// PublishTaskCreated publishes a TaskCreated event.
func (m *TaskModule) PublishTaskCreated(event events.TaskCreatedEvent) error {
	return events.TaskCreatedV1.Publish(m.eventBus, event, nil)
}

// PublishTaskStatusChanged publishes a TaskStatusChanged event.
func (m *TaskModule) PublishTaskStatusChanged(event events.TaskStatusChangedEvent) error {
	return events.TaskStatusChangedV1.Publish(m.eventBus, event, nil)
}

// PublishTaskDeleted publishes a TaskDeleted event.
func (m *TaskModule) PublishTaskDeleted(event events.TaskDeletedEvent) error {
	return events.TaskDeletedV1.Publish(m.eventBus, event, nil)
}

// RegisterServices registers request-reply services in the service container.
func (m *TaskModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListTasks, json.Unmarshal, json.Marshal, m.listTasks,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListTasks, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetTask, json.Unmarshal, json.Marshal, m.getTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetTask, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateTask, json.Unmarshal, json.Marshal, m.createTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateTask, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateTask, json.Unmarshal, json.Marshal, m.updateTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpdateTask, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceTransitionTask, json.Unmarshal, json.Marshal, m.transitionTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceTransitionTask, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteTask, json.Unmarshal, json.Marshal, m.deleteTask,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteTask, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCountUserTasks, json.Unmarshal, json.Marshal, m.countUserTasks,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCountUserTasks, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListLabels, json.Unmarshal, json.Marshal, m.listLabels,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListLabels, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetLabel, json.Unmarshal, json.Marshal, m.getLabel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetLabel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateLabel, json.Unmarshal, json.Marshal, m.createLabel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateLabel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateLabel, json.Unmarshal, json.Marshal, m.updateLabel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpdateLabel, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteLabel, json.Unmarshal, json.Marshal, m.deleteLabel,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteLabel, err)
	}

	m.logger.Info("Registered task services", "count", 12)
	return nil
}

func (m *TaskModule) replyError(service string, err error) *apperr.Info {
	if apperr.KindOf(err) == apperr.KindInternal {
		m.logger.Error("Service failed", "service", service, "error", err)
	}
	return apperr.ToInfo(err)
}

func (m *TaskModule) listTasks(ctx context.Context, req ListTasksRequest, _ *mono.Msg) (ListTasksResponse, error) {
	tasks, err := m.service.ListTasks(ctx, req.Actor, req.Filter)
	if err != nil {
		return ListTasksResponse{Error: m.replyError(ServiceListTasks, err)}, nil
	}
	dtos := make([]TaskDTO, 0, len(tasks))
	for i := range tasks {
		dtos = append(dtos, *NewTaskDTO(&tasks[i]))
	}
	return ListTasksResponse{Tasks: dtos}, nil
}

func (m *TaskModule) getTask(ctx context.Context, req GetTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.GetTask(ctx, req.Actor, req.ID)
	if err != nil {
		return TaskResponse{Error: m.replyError(ServiceGetTask, err)}, nil
	}
	return TaskResponse{Task: NewTaskDTO(t)}, nil
}

func (m *TaskModule) createTask(ctx context.Context, req CreateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.CreateTask(ctx, req.Actor, CreateTaskInput{
		Title:      req.Title,
		Content:    req.Content,
		Index:      req.Index,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		LabelIDs:   req.LabelIDs,
	})
	if err != nil {
		return TaskResponse{Error: m.replyError(ServiceCreateTask, err)}, nil
	}
	m.logger.Info("Task created", "taskID", t.ID, "authorID", t.AuthorID)
	return TaskResponse{Task: NewTaskDTO(t)}, nil
}

func (m *TaskModule) updateTask(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.UpdateTask(ctx, req.Actor, req.ID, UpdateTaskInput{
		Title:      req.Title,
		Content:    req.Content,
		Index:      req.Index,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		LabelIDs:   req.LabelIDs,
	})
	if err != nil {
		return TaskResponse{Error: m.replyError(ServiceUpdateTask, err)}, nil
	}
	return TaskResponse{Task: NewTaskDTO(t)}, nil
}

func (m *TaskModule) transitionTask(ctx context.Context, req TransitionTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	t, err := m.service.TransitionTask(ctx, req.Actor, req.ID, req.To, req.From)
	if err != nil {
		return TaskResponse{Error: m.replyError(ServiceTransitionTask, err)}, nil
	}
	m.logger.Info("Task transitioned", "taskID", t.ID, "status", t.Status, "version", t.Version)
	return TaskResponse{Task: NewTaskDTO(t)}, nil
}

func (m *TaskModule) deleteTask(ctx context.Context, req DeleteRequest, _ *mono.Msg) (DeleteResponse, error) {
	if err := m.service.DeleteTask(ctx, req.Actor, req.ID); err != nil {
		return DeleteResponse{Error: m.replyError(ServiceDeleteTask, err)}, nil
	}
	m.logger.Info("Task deleted", "taskID", req.ID)
	return DeleteResponse{}, nil
}

func (m *TaskModule) countUserTasks(ctx context.Context, req CountUserTasksRequest, _ *mono.Msg) (CountUserTasksResponse, error) {
	count, err := m.service.CountUserReferences(ctx, req.UserID)
	if err != nil {
		return CountUserTasksResponse{Error: m.replyError(ServiceCountUserTasks, err)}, nil
	}
	return CountUserTasksResponse{Count: count}, nil
}

func (m *TaskModule) listLabels(ctx context.Context, _ ListLabelsRequest, _ *mono.Msg) (ListLabelsResponse, error) {
	labels, err := m.service.ListLabels(ctx)
	if err != nil {
		return ListLabelsResponse{Error: m.replyError(ServiceListLabels, err)}, nil
	}
	dtos := make([]LabelDTO, 0, len(labels))
	for i := range labels {
		dtos = append(dtos, *NewLabelDTO(&labels[i]))
	}
	return ListLabelsResponse{Labels: dtos}, nil
}

func (m *TaskModule) getLabel(ctx context.Context, req GetLabelRequest, _ *mono.Msg) (LabelResponse, error) {
	l, err := m.service.GetLabel(ctx, req.ID)
	if err != nil {
		return LabelResponse{Error: m.replyError(ServiceGetLabel, err)}, nil
	}
	return LabelResponse{Label: NewLabelDTO(l)}, nil
}

func (m *TaskModule) createLabel(ctx context.Context, req LabelRequest, _ *mono.Msg) (LabelResponse, error) {
	l, err := m.service.CreateLabel(ctx, req.Actor, req.Name)
	if err != nil {
		return LabelResponse{Error: m.replyError(ServiceCreateLabel, err)}, nil
	}
	return LabelResponse{Label: NewLabelDTO(l)}, nil
}

func (m *TaskModule) updateLabel(ctx context.Context, req LabelRequest, _ *mono.Msg) (LabelResponse, error) {
	l, err := m.service.UpdateLabel(ctx, req.Actor, req.ID, req.Name)
	if err != nil {
		return LabelResponse{Error: m.replyError(ServiceUpdateLabel, err)}, nil
	}
	return LabelResponse{Label: NewLabelDTO(l)}, nil
}

func (m *TaskModule) deleteLabel(ctx context.Context, req DeleteRequest, _ *mono.Msg) (DeleteResponse, error) {
	if err := m.service.DeleteLabel(ctx, req.Actor, req.ID); err != nil {
		return DeleteResponse{Error: m.replyError(ServiceDeleteLabel, err)}, nil
	}
	return DeleteResponse{}, nil
}
