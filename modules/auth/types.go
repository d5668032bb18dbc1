package auth

import (
	"time"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// UserDTO is the public view of a user. It never carries the password hash.
type UserDTO struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserDTO converts a user entity into its public view.
func NewUserDTO(u *user.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// UserResponse carries a single user or the error that prevented it.
type UserResponse struct {
	User  *UserDTO     `json:"user,omitempty"`
	Error *apperr.Info `json:"error,omitempty"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents a token refresh request.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries an issued token pair.
type TokenResponse struct {
	Tokens *user.TokenPair `json:"tokens,omitempty"`
	Error  *apperr.Info    `json:"error,omitempty"`
}

// ResolvePrincipalRequest carries the raw Authorization header of a request.
type ResolvePrincipalRequest struct {
	Authorization string `json:"authorization"`
}

// ResolvePrincipalResponse carries the resolved principal.
type ResolvePrincipalResponse struct {
	Principal *user.Principal `json:"principal,omitempty"`
	Error     *apperr.Info    `json:"error,omitempty"`
}

// GetUserRequest represents a get user request.
type GetUserRequest struct {
	ID uint `json:"id"`
}

// ListUsersRequest represents a list users request.
type ListUsersRequest struct{}

// ListUsersResponse carries every user.
type ListUsersResponse struct {
	Users []UserDTO    `json:"users"`
	Error *apperr.Info `json:"error,omitempty"`
}

// UpdateUserRequest carries a partial update performed by Actor.
type UpdateUserRequest struct {
	Actor     *user.Principal `json:"actor"`
	ID        uint            `json:"id"`
	Email     *string         `json:"email,omitempty"`
	FirstName *string         `json:"first_name,omitempty"`
	LastName  *string         `json:"last_name,omitempty"`
	Password  *string         `json:"password,omitempty"`
	Role      *user.Role      `json:"role,omitempty"`
}

// DeleteUserRequest asks to delete the user with ID on behalf of Actor.
type DeleteUserRequest struct {
	Actor *user.Principal `json:"actor"`
	ID    uint            `json:"id"`
}

// DeleteUserResponse reports the outcome of a deletion.
type DeleteUserResponse struct {
	Error *apperr.Info `json:"error,omitempty"`
}
