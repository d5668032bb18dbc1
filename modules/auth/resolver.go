package auth

import (
	"context"
	"strings"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
)

const bearerScheme = "bearer"

// TokenVerifier verifies an access token into a principal.
type TokenVerifier interface {
	Verify(token string) (*user.Principal, error)
}

// PrincipalResolver turns a raw Authorization header into a principal.
// It keeps no state between calls.
type PrincipalResolver struct {
	verifier TokenVerifier
}

// NewPrincipalResolver creates a resolver backed by verifier.
func NewPrincipalResolver(verifier TokenVerifier) *PrincipalResolver {
	return &PrincipalResolver{verifier: verifier}
}

// Resolve strips the Bearer scheme from header and verifies the token.
// A missing header, another scheme or an empty token yields
// apperr.ErrMissingCredential; any verification failure is reported as
// reason unauthenticated wrapping the verifier's error.
func (r *PrincipalResolver) Resolve(header string) (*user.Principal, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, apperr.ErrMissingCredential
	}

	principal, err := r.verifier.Verify(token)
	if err != nil {
		return nil, &apperr.AuthError{Reason: apperr.ReasonUnauthenticated, Err: err}
	}
	return principal, nil
}

// ResolvePrincipal is Resolve for callers that carry a context.
func (r *PrincipalResolver) ResolvePrincipal(_ context.Context, header string) (*user.Principal, error) {
	return r.Resolve(header)
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
