package main

import (
	"context"
	"errors"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/task-manager/config"
	"github.com/example/task-manager/modules/activity"
	"github.com/example/task-manager/modules/api"
	"github.com/example/task-manager/modules/auth"
	"github.com/example/task-manager/modules/cache"
	"github.com/example/task-manager/modules/task"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("=== Task Manager ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()
	for _, key := range cfg.InsecureDefaults() {
		logger.Warn("Using the built-in development value; set it before deploying", "setting", key)
	}

	// The cache plugin is optional; the task module falls back to the
	// database when it is absent.
	if cfg.Redis.Enabled() {
		cachePlugin := cache.NewPluginModule(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			TTL:      cfg.Redis.CacheTTL,
		}, logger.WithModule("cache"))
		if err := app.RegisterPlugin(cachePlugin, "cache"); err != nil {
			log.Fatalf("Failed to register cache plugin: %v", err)
		}
	}

	// Register modules with the framework
	// Order: independent modules first, then dependent modules
	app.Register(auth.NewModule(auth.ModuleConfig{
		DBPath:  cfg.Database.Path,
		DBDebug: cfg.Database.Debug,
		Token: auth.TokenConfig{
			SecretKey:  cfg.JWT.SecretKey,
			Issuer:     cfg.JWT.Issuer,
			AccessTTL:  cfg.JWT.AccessTTL,
			RefreshTTL: cfg.JWT.RefreshTTL,
			ClockSkew:  cfg.JWT.ClockSkew,
		},
		AdminEmail:    cfg.Seed.AdminEmail,
		AdminPassword: cfg.Seed.AdminPassword,
	}, logger.WithModule("auth")))
	app.Register(activity.NewModule(activity.DefaultCapacity, logger.WithModule("activity"))) // Event consumer
	app.Register(task.NewModule(cfg.Database.Path, cfg.Database.Debug, logger.WithModule("task"))) // Depends on auth, emits events
	app.Register(api.NewModule(api.Config{
		Port:           cfg.HTTP.Port,
		StrictFilters:  cfg.StrictFilters,
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		LoginRateLimit: cfg.Redis.LoginRateLimit,
		LoginWindow:    cfg.Redis.LoginWindow,
	}, logger.WithModule("api"))) // Depends on auth, task and activity

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Printf("Database: %s", cfg.Database.Path)
	if cfg.Redis.Enabled() {
		log.Printf("Redis: %s (login throttle %d/%s, label cache TTL %s)",
			cfg.Redis.Addr, cfg.Redis.LoginRateLimit, cfg.Redis.LoginWindow, cfg.Redis.CacheTTL)
	} else {
		log.Println("Redis: disabled")
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.HTTP.Port)
	log.Println("")
	log.Println("  Public Endpoints:")
	log.Println("  POST   /api/v1/auth/register        - Register a new user")
	log.Println("  POST   /api/v1/login                - Login and get tokens")
	log.Println("  POST   /api/v1/auth/refresh         - Refresh access token")
	log.Println("  GET    /health                      - Health check")
	log.Println("")
	log.Println("  Protected Endpoints (require Bearer token):")
	log.Println("  GET    /api/v1/users                - List users")
	log.Println("  GET    /api/v1/task_statuses        - List workflow statuses")
	log.Println("  GET    /api/v1/labels               - List labels")
	log.Println("  GET    /api/v1/tasks                - List tasks (status, assigneeId, labelId, titleContains)")
	log.Println("  POST   /api/v1/tasks/:id/transition - Move a task along the workflow")
	log.Println("  GET    /api/v1/activity             - Recent task activity (admin)")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
