package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

// ClockSkewGrace is the default tolerance past a token's expiry.
const ClockSkewGrace = 30 * time.Second

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenConfig holds token signing configuration. The secret must be stable
// across restarts so issued tokens stay verifiable.
type TokenConfig struct {
	SecretKey  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
}

// DefaultTokenConfig returns a development configuration.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		SecretKey:  "task-manager-development-secret-change-me",
		Issuer:     "task-manager",
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  ClockSkewGrace,
	}
}

// Claims is the signed token payload.
type Claims struct {
	Email     string      `json:"email,omitempty"`
	Roles     []user.Role `json:"roles"`
	TokenType TokenType   `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed tokens. Signing is
// stateless and safe for concurrent use.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given configuration.
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{
		config: config,
		now:    time.Now,
	}
}

// Issue signs an access token for subject carrying roles.
func (s *TokenService) Issue(subject uint, email string, roles []user.Role) (string, error) {
	return s.sign(subject, email, roles, TokenTypeAccess, s.config.AccessTTL)
}

// IssuePair signs an access token and a refresh token for u.
func (s *TokenService) IssuePair(u *user.User) (*user.TokenPair, error) {
	accessToken, err := s.sign(u.ID, u.Email, u.Roles(), TokenTypeAccess, s.config.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.sign(u.ID, u.Email, u.Roles(), TokenTypeRefresh, s.config.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &user.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenService) sign(subject uint, email string, roles []user.Role, tokenType TokenType, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email:     email,
		Roles:     roles,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   strconv.FormatUint(uint64(subject), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// Verify checks an access token and returns its principal. Failures are
// *apperr.AuthError with reason malformed, bad_signature or expired.
func (s *TokenService) Verify(token string) (*user.Principal, error) {
	return s.verify(token, TokenTypeAccess)
}

// VerifyRefresh checks a refresh token and returns its principal.
func (s *TokenService) VerifyRefresh(token string) (*user.Principal, error) {
	return s.verify(token, TokenTypeRefresh)
}

func (s *TokenService) verify(tokenString string, want TokenType) (*user.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return []byte(s.config.SecretKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.config.ClockSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.TokenType != want {
		return nil, &apperr.AuthError{
			Reason: apperr.ReasonMalformed,
			Err:    fmt.Errorf("expected %s token, got %q", want, claims.TokenType),
		}
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 0)
	if err != nil || id == 0 {
		return nil, &apperr.AuthError{Reason: apperr.ReasonMalformed, Err: fmt.Errorf("invalid subject %q", claims.Subject)}
	}

	roles := make([]user.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		if !r.Valid() {
			return nil, &apperr.AuthError{Reason: apperr.ReasonMalformed, Err: fmt.Errorf("unknown role %q", r)}
		}
		roles = append(roles, r)
	}

	principal := &user.Principal{
		ID:        uint(id),
		Email:     claims.Email,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		principal.IssuedAt = claims.IssuedAt.Time
	}
	return principal, nil
}

// classify maps a jwt parse failure onto an authentication reason.
func classify(err error) error {
	reason := apperr.ReasonMalformed
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = apperr.ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = apperr.ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = apperr.ReasonExpired
	}
	return &apperr.AuthError{Reason: reason, Err: err}
}

// AccessTTLSeconds returns the access token lifetime in seconds.
func (s *TokenService) AccessTTLSeconds() int64 {
	return int64(s.config.AccessTTL.Seconds())
}
