package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/example/task-manager/authz"
	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// MaxNameLength bounds first and last names.
const MaxNameLength = 255

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UpdateUserInput carries a partial user update. Nil fields are unchanged.
type UpdateUserInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Password  *string
	Role      *user.Role
}

// AuthService handles credentials, tokens and user accounts.
type AuthService struct {
	repo     *UserRepository
	hasher   *PasswordHasher
	tokens   *TokenService
	resolver *PrincipalResolver
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo *UserRepository, hasher *PasswordHasher, tokens *TokenService) *AuthService {
	return &AuthService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		resolver: NewPrincipalResolver(tokens),
	}
}

// Register creates a new user account with the user role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validateName("firstName", in.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("lastName", in.LastName); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &user.User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: passwordHash,
		Role:         user.RoleUser,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Login authenticates a user and returns a token pair. Unknown emails and
// wrong passwords both fail with apperr.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*user.TokenPair, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}

	return s.tokens.IssuePair(u)
}

// Refresh exchanges a refresh token for a new pair. Roles are re-read from
// the store so role changes take effect on refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*user.TokenPair, error) {
	principal, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.FindByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &apperr.AuthError{Reason: apperr.ReasonUnauthenticated, Err: err}
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return s.tokens.IssuePair(u)
}

// ResolvePrincipal resolves a raw Authorization header.
func (s *AuthService) ResolvePrincipal(ctx context.Context, header string) (*user.Principal, error) {
	return s.resolver.ResolvePrincipal(ctx, header)
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id uint) (*user.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ListUsers returns every user.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.repo.List(ctx)
}

// UpdateUser applies in to the user with id on behalf of actor. Users may
// update themselves; only admins may update others or change roles.
func (s *AuthService) UpdateUser(ctx context.Context, actor *user.Principal, id uint, in UpdateUserInput) (*user.User, error) {
	if err := authz.AuthorizeOwner(actor, authz.ActionUserWrite, id); err != nil {
		return nil, err
	}
	if in.Role != nil {
		if err := authz.AuthorizeOwner(actor, authz.ActionUserRole, id); err != nil {
			return nil, err
		}
		if !in.Role.Valid() {
			return nil, apperr.Invalid("role", fmt.Sprintf("unknown role %q", *in.Role))
		}
	}

	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email, err := validateEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			exists, err := s.repo.EmailExists(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("failed to check email existence: %w", err)
			}
			if exists {
				return nil, ErrUserExists
			}
		}
		u.Email = email
	}
	if in.FirstName != nil {
		if err := validateName("firstName", *in.FirstName); err != nil {
			return nil, err
		}
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		if err := validateName("lastName", *in.LastName); err != nil {
			return nil, err
		}
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if in.Role != nil {
		u.Role = *in.Role
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user with id on behalf of actor. Callers must have
// checked that no task still references the user.
func (s *AuthService) DeleteUser(ctx context.Context, actor *user.Principal, id uint) error {
	if err := authz.AuthorizeOwner(actor, authz.ActionUserWrite, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// SeedAdmin makes sure an administrator account exists for email. It reports
// whether the account was created.
func (s *AuthService) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == user.RoleAdmin {
			return false, nil
		}
		existing.Role = user.RoleAdmin
		return false, s.repo.Update(ctx, existing)
	case !errors.Is(err, apperr.ErrNotFound):
		return false, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := &user.User{
		Email:        normalizeEmail(email),
		FirstName:    "Admin",
		PasswordHash: hash,
		Role:         user.RoleAdmin,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	return true, nil
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" {
		return "", apperr.Invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Invalid("email", "invalid email format")
	}
	return email, nil
}

func validateName(field, name string) error {
	if len(strings.TrimSpace(name)) > MaxNameLength {
		return apperr.Invalid(field, fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	return nil
}
