package auth

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
	"github.com/example/task-manager/domain/user"
)

// Service names registered by the auth module.
const (
	ServiceRegister         = "register"
	ServiceLogin            = "login"
	ServiceRefreshToken     = "refresh-token"
	ServiceResolvePrincipal = "resolve-principal"
	ServiceGetUser          = "get-user"
	ServiceListUsers        = "list-users"
	ServiceUpdateUser       = "update-user"
	ServiceDeleteUser       = "delete-user"
)

// ModuleConfig configures the auth module.
type ModuleConfig struct {
	DBPath        string
	DBDebug       bool
	Token         TokenConfig
	AdminEmail    string
	AdminPassword string
	BcryptCost    int
}

// AuthModule provides authentication services.
type AuthModule struct {
	cfg     ModuleConfig
	db      *gorm.DB
	service *AuthService
	logger  types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*AuthModule)(nil)
	_ mono.ServiceProviderModule = (*AuthModule)(nil)
	_ mono.HealthCheckableModule = (*AuthModule)(nil)
)

// NewModule creates a new AuthModule.
func NewModule(cfg ModuleConfig, logger types.Logger) *AuthModule {
	return &AuthModule{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *AuthModule) Name() string {
	return "auth"
}

// Start opens the user store and seeds the administrator account.
func (m *AuthModule) Start(ctx context.Context) error {
	db, err := database.Open(m.cfg.DBPath, m.cfg.DBDebug, &user.User{})
	if err != nil {
		return err
	}
	m.db = db
	m.service = NewAuthService(NewUserRepository(db), NewPasswordHasher(m.cfg.BcryptCost), NewTokenService(m.cfg.Token))

	if m.cfg.AdminEmail != "" {
		created, err := m.service.SeedAdmin(ctx, m.cfg.AdminEmail, m.cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("failed to seed admin: %w", err)
		}
		if created {
			m.logger.Info("Seeded admin account", "email", m.cfg.AdminEmail)
		}
	}

	m.logger.Info("Auth module started", "database", m.cfg.DBPath)
	return nil
}

// Stop shuts down the module.
func (m *AuthModule) Stop(_ context.Context) error {
	if err := database.Close(m.db); err != nil {
		m.logger.Warn("Failed to close database", "error", err)
	}
	m.logger.Info("Auth module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *AuthModule) Health(ctx context.Context) mono.HealthStatus {
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
			"database": m.cfg.DBPath,
		},
	}
}

// Service returns the auth service. It is nil until Start.
func (m *AuthModule) Service() *AuthService {
	return m.service
}

// RegisterServices registers request-reply services in the service container.
func (m *AuthModule) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRegister, json.Unmarshal, json.Marshal, m.handleRegister,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRegister, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceLogin, json.Unmarshal, json.Marshal, m.handleLogin,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceLogin, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRefreshToken, json.Unmarshal, json.Marshal, m.handleRefresh,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRefreshToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceResolvePrincipal, json.Unmarshal, json.Marshal, m.handleResolvePrincipal,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceResolvePrincipal, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetUser, json.Unmarshal, json.Marshal, m.handleGetUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListUsers, json.Unmarshal, json.Marshal, m.handleListUsers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListUsers, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUpdateUser, json.Unmarshal, json.Marshal, m.handleUpdateUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUpdateUser, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDeleteUser, json.Unmarshal, json.Marshal, m.handleDeleteUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDeleteUser, err)
	}

	m.logger.Info("Registered auth services", "services", []string{
		ServiceRegister, ServiceLogin, ServiceRefreshToken, ServiceResolvePrincipal,
		ServiceGetUser, ServiceListUsers, ServiceUpdateUser, ServiceDeleteUser,
	})
	return nil
}

// replyError converts err for the wire, logging failures that are not part
// of the error taxonomy.
func (m *AuthModule) replyError(service string, err error) *apperr.Info {
	if apperr.KindOf(err) == apperr.KindInternal {
		m.logger.Error("Service failed", "service", service, "error", err)
	}
	return apperr.ToInfo(err)
}

func (m *AuthModule) handleRegister(ctx context.Context, req RegisterRequest, _ *mono.Msg) (UserResponse, error) {
	u, err := m.service.Register(ctx, RegisterInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		return UserResponse{Error: m.replyError(ServiceRegister, err)}, nil
	}
	m.logger.Info("User registered", "userID", u.ID)
	return UserResponse{User: NewUserDTO(u)}, nil
}

func (m *AuthModule) handleLogin(ctx context.Context, req LoginRequest, _ *mono.Msg) (TokenResponse, error) {
	tokens, err := m.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		return TokenResponse{Error: m.replyError(ServiceLogin, err)}, nil
	}
	return TokenResponse{Tokens: tokens}, nil
}

func (m *AuthModule) handleRefresh(ctx context.Context, req RefreshRequest, _ *mono.Msg) (TokenResponse, error) {
	tokens, err := m.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return TokenResponse{Error: m.replyError(ServiceRefreshToken, err)}, nil
	}
	return TokenResponse{Tokens: tokens}, nil
}

func (m *AuthModule) handleResolvePrincipal(ctx context.Context, req ResolvePrincipalRequest, _ *mono.Msg) (ResolvePrincipalResponse, error) {
	principal, err := m.service.ResolvePrincipal(ctx, req.Authorization)
	if err != nil {
		return ResolvePrincipalResponse{Error: m.replyError(ServiceResolvePrincipal, err)}, nil
	}
	return ResolvePrincipalResponse{Principal: principal}, nil
}

func (m *AuthModule) handleGetUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (UserResponse, error) {
	u, err := m.service.GetUser(ctx, req.ID)
	if err != nil {
		return UserResponse{Error: m.replyError(ServiceGetUser, err)}, nil
	}
	return UserResponse{User: NewUserDTO(u)}, nil
}

func (m *AuthModule) handleListUsers(ctx context.Context, _ ListUsersRequest, _ *mono.Msg) (ListUsersResponse, error) {
	users, err := m.service.ListUsers(ctx)
	if err != nil {
		return ListUsersResponse{Error: m.replyError(ServiceListUsers, err)}, nil
	}
	dtos := make([]UserDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, *NewUserDTO(&users[i]))
	}
	return ListUsersResponse{Users: dtos}, nil
}

func (m *AuthModule) handleUpdateUser(ctx context.Context, req UpdateUserRequest, _ *mono.Msg) (UserResponse, error) {
	u, err := m.service.UpdateUser(ctx, req.Actor, req.ID, UpdateUserInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		return UserResponse{Error: m.replyError(ServiceUpdateUser, err)}, nil
	}
	return UserResponse{User: NewUserDTO(u)}, nil
}

func (m *AuthModule) handleDeleteUser(ctx context.Context, req DeleteUserRequest, _ *mono.Msg) (DeleteUserResponse, error) {
	if err := m.service.DeleteUser(ctx, req.Actor, req.ID); err != nil {
		return DeleteUserResponse{Error: m.replyError(ServiceDeleteUser, err)}, nil
	}
	m.logger.Info("User deleted", "userID", req.ID)
	return DeleteUserResponse{}, nil
}
