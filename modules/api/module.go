package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"

	"github.com/example/task-manager/filter"
	"github.com/example/task-manager/middleware/ratelimit"
	"github.com/example/task-manager/modules/activity"
	"github.com/example/task-manager/modules/auth"
	taskmod "github.com/example/task-manager/modules/task"
)

// Config configures the HTTP API.
type Config struct {
	Port          int
	StrictFilters bool
	// RedisAddr enables the login throttle when set.
	RedisAddr      string
	RedisPassword  string
	LoginRateLimit int
	LoginWindow    time.Duration
}

// APIModule is the HTTP API module.
type APIModule struct {
	cfg          Config
	app          *fiber.App
	redis        *redis.Client
	authPort     auth.AuthPort
	taskPort     taskmod.TaskPort
	activityPort activity.ActivityPort
	logger       types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg Config, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "task", "activity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authPort = auth.NewAuthAdapter(container)
	case "task":
		m.taskPort = taskmod.NewTaskAdapter(container)
	case "activity":
		m.activityPort = activity.NewActivityAdapter(container)
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.authPort == nil || m.taskPort == nil || m.activityPort == nil {
		return fmt.Errorf("api dependencies not set")
	}

	var limiter ratelimit.Allower
	if m.cfg.RedisAddr != "" {
		m.redis = redis.NewClient(&redis.Options{
			Addr:     m.cfg.RedisAddr,
			Password: m.cfg.RedisPassword,
		})
		limiter = ratelimit.NewLimiter(m.redis, "task-manager:ratelimit:")
	}

	handlers := NewHandlers(m.authPort, m.taskPort, m.activityPort,
		filter.NewBuilder(filter.Options{RejectUnknown: m.cfg.StrictFilters}), m.logger)
	m.app = NewApp(handlers, LoginThrottle(limiter, m.cfg.LoginRateLimit, m.cfg.LoginWindow, m.logger))

	addr := fmt.Sprintf(":%d", m.cfg.Port)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "addr", addr, "loginThrottle", limiter != nil, "strictFilters", m.cfg.StrictFilters)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server...")
	err := m.app.ShutdownWithContext(ctx)
	if m.redis != nil {
		if cerr := m.redis.Close(); cerr != nil {
			m.logger.Warn("Failed to close Redis client", "error", cerr)
		}
	}
	return err
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	if m.app == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "server not started",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"port": m.cfg.Port,
		},
	}
}

// NewApp builds the Fiber application and its routes. throttle guards the
// credential endpoints and may be nil.
func NewApp(h *Handlers, throttle fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(RecoverMiddleware())
	app.Use(RequestIDMiddleware())
	app.Use(AccessLogMiddleware())
	app.Use(cors.New(cors.Config{
		ExposeHeaders: TotalCountHeader + "," + RequestIDHeader,
	}))

	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")

	credentials := []fiber.Handler{}
	if throttle != nil {
		credentials = append(credentials, throttle)
	}
	guard := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, credentials...), handler)
	}

	// Public routes
	v1.Post("/login", guard(h.Login)...)
	v1.Post("/auth/login", guard(h.Login)...)
	v1.Post("/auth/register", guard(h.Register)...)
	v1.Post("/users", guard(h.Register)...)
	v1.Post("/auth/refresh", h.Refresh)

	// Authenticated routes; each handler runs the request pipeline.
	users := v1.Group("/users")
	users.Get("/", h.ListUsers)
	users.Get("/:id", h.GetUser)
	users.Put("/:id", h.UpdateUser)
	users.Patch("/:id", h.UpdateUser)
	users.Delete("/:id", h.DeleteUser)

	statuses := v1.Group("/task_statuses")
	statuses.Get("/", h.ListTaskStatuses)
	statuses.Get("/:slug", h.GetTaskStatus)

	labels := v1.Group("/labels")
	labels.Get("/", h.ListLabels)
	labels.Post("/", h.CreateLabel)
	labels.Get("/:id", h.GetLabel)
	labels.Put("/:id", h.UpdateLabel)
	labels.Patch("/:id", h.UpdateLabel)
	labels.Delete("/:id", h.DeleteLabel)

	tasks := v1.Group("/tasks")
	tasks.Get("/", h.ListTasks)
	tasks.Post("/", h.CreateTask)
	tasks.Get("/:id", h.GetTask)
	tasks.Put("/:id", h.UpdateTask)
	tasks.Patch("/:id", h.UpdateTask)
	tasks.Delete("/:id", h.DeleteTask)
	tasks.Post("/:id/transition", h.TransitionTask)

	v1.Get("/activity", h.ListActivity)

	return app
}
