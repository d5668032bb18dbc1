package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/task-manager/authz"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/events"
)

// ServiceListActivity is the request-reply service exposing the feed.
const ServiceListActivity = "list-activity"

// ActivityModule consumes task events into a Feed.
type ActivityModule struct {
	feed   *Feed
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*ActivityModule)(nil)
	_ mono.EventConsumerModule   = (*ActivityModule)(nil)
	_ mono.ServiceProviderModule = (*ActivityModule)(nil)
	_ mono.HealthCheckableModule = (*ActivityModule)(nil)
)

// NewModule creates an ActivityModule retaining capacity entries.
func NewModule(capacity int, logger types.Logger) *ActivityModule {
	return &ActivityModule{
		feed:   NewFeed(capacity),
		logger: logger,
	}
}

// Name returns the module name.
func (m *ActivityModule) Name() string {
	return "activity"
}

// Start starts the module.
func (m *ActivityModule) Start(_ context.Context) error {
	m.logger.Info("Activity module started", "capacity", len(m.feed.entries))
	return nil
}

// Stop stops the module.
func (m *ActivityModule) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Health reports the feed size.
func (m *ActivityModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"entries": m.feed.Len(),
		},
	}
}

// Feed returns the underlying feed.
func (m *ActivityModule) Feed() *Feed {
	return m.feed
}

// RegisterEventConsumers subscribes to task lifecycle events.
func (m *ActivityModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.handleTaskCreated, m); err != nil {
		return fmt.Errorf("failed to register TaskCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskStatusChangedV1, m.handleTaskStatusChanged, m); err != nil {
		return fmt.Errorf("failed to register TaskStatusChanged consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.handleTaskDeleted, m); err != nil {
		return fmt.Errorf("failed to register TaskDeleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"TaskCreated", "TaskStatusChanged", "TaskDeleted"})
	return nil
}

// RegisterServices registers the feed query service.
func (m *ActivityModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListActivity, json.Unmarshal, json.Marshal, m.handleListActivity,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListActivity, err)
	}
	return nil
}

func (m *ActivityModule) handleTaskCreated(_ context.Context, event events.TaskCreatedEvent, _ *mono.Msg) error {
	m.feed.Add(Entry{
		Type:    TypeTaskCreated,
		TaskID:  event.TaskID,
		ActorID: event.AuthorID,
		Message: fmt.Sprintf("Task %d %q created in %s", event.TaskID, event.Title, event.Status),
		At:      event.CreatedAt,
	})
	return nil
}

func (m *ActivityModule) handleTaskStatusChanged(_ context.Context, event events.TaskStatusChangedEvent, _ *mono.Msg) error {
	m.feed.Add(Entry{
		Type:    TypeTaskStatusChanged,
		TaskID:  event.TaskID,
		ActorID: event.ActorID,
		Message: fmt.Sprintf("Task %d moved from %s to %s", event.TaskID, event.From, event.To),
		At:      event.ChangedAt,
	})
	return nil
}

func (m *ActivityModule) handleTaskDeleted(_ context.Context, event events.TaskDeletedEvent, _ *mono.Msg) error {
	m.feed.Add(Entry{
		Type:    TypeTaskDeleted,
		TaskID:  event.TaskID,
		ActorID: event.ActorID,
		Message: fmt.Sprintf("Task %d deleted", event.TaskID),
		At:      event.DeletedAt,
	})
	return nil
}

func (m *ActivityModule) handleListActivity(_ context.Context, req ListActivityRequest, _ *mono.Msg) (ListActivityResponse, error) {
	if err := authz.RequireRole(req.Actor, user.RoleAdmin, authz.ActionActivityRead); err != nil {
		return ListActivityResponse{Error: apperr.ToInfo(err)}, nil
	}
	entries := m.feed.Recent(req.Limit)
	return ListActivityResponse{Entries: entries, Total: m.feed.Len()}, nil
}
