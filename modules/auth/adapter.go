package auth

import (
	"context"
	"encoding/json"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// AuthPort defines the interface for authentication operations.
// This is the port that other modules use to access auth functionality.
type AuthPort interface {
	ResolvePrincipal(ctx context.Context, authorization string) (*user.Principal, error)
	Register(ctx context.Context, req RegisterRequest) (*UserDTO, error)
	Login(ctx context.Context, email, password string) (*user.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*user.TokenPair, error)
	GetUser(ctx context.Context, id uint) (*UserDTO, error)
	ListUsers(ctx context.Context) ([]UserDTO, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (*UserDTO, error)
	DeleteUser(ctx context.Context, actor *user.Principal, id uint) error
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

var _ AuthPort = (*AuthAdapter)(nil)

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
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

// ResolvePrincipal turns a raw Authorization header into a principal.
func (a *AuthAdapter) ResolvePrincipal(ctx context.Context, authorization string) (*user.Principal, error) {
	req := ResolvePrincipalRequest{Authorization: authorization}
	var resp ResolvePrincipalResponse
	if err := call(ctx, a.container, ServiceResolvePrincipal, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Principal, nil
}

// Register creates a new account.
func (a *AuthAdapter) Register(ctx context.Context, req RegisterRequest) (*UserDTO, error) {
	var resp UserResponse
	if err := call(ctx, a.container, ServiceRegister, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.User, nil
}

// Login exchanges credentials for a token pair.
func (a *AuthAdapter) Login(ctx context.Context, email, password string) (*user.TokenPair, error) {
	req := LoginRequest{Email: email, Password: password}
	var resp TokenResponse
	if err := call(ctx, a.container, ServiceLogin, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Tokens, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (a *AuthAdapter) Refresh(ctx context.Context, refreshToken string) (*user.TokenPair, error) {
	req := RefreshRequest{RefreshToken: refreshToken}
	var resp TokenResponse
	if err := call(ctx, a.container, ServiceRefreshToken, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Tokens, nil
}

// GetUser retrieves a user by ID.
func (a *AuthAdapter) GetUser(ctx context.Context, id uint) (*UserDTO, error) {
	req := GetUserRequest{ID: id}
	var resp UserResponse
	if err := call(ctx, a.container, ServiceGetUser, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.User, nil
}

// ListUsers returns every user.
func (a *AuthAdapter) ListUsers(ctx context.Context) ([]UserDTO, error) {
	req := ListUsersRequest{}
	var resp ListUsersResponse
	if err := call(ctx, a.container, ServiceListUsers, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.Users, nil
}

// UpdateUser applies a partial update on behalf of req.Actor.
func (a *AuthAdapter) UpdateUser(ctx context.Context, req UpdateUserRequest) (*UserDTO, error) {
	var resp UserResponse
	if err := call(ctx, a.container, ServiceUpdateUser, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	return resp.User, nil
}

// DeleteUser removes a user on behalf of actor.
func (a *AuthAdapter) DeleteUser(ctx context.Context, actor *user.Principal, id uint) error {
	req := DeleteUserRequest{Actor: actor, ID: id}
	var resp DeleteUserResponse
	if err := call(ctx, a.container, ServiceDeleteUser, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}
