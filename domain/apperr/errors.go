// Package apperr defines the error taxonomy shared by every module and its
// translation into HTTP statuses and service replies.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
)

// Kind classifies an error into one of the response categories.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal_error"
)

// AuthReason is the machine-readable reason of an authentication failure.
type AuthReason string

const (
	ReasonMissingCredential  AuthReason = "missing_credential"
	ReasonMalformed          AuthReason = "malformed"
	ReasonBadSignature       AuthReason = "bad_signature"
	ReasonExpired            AuthReason = "expired"
	ReasonUnauthenticated    AuthReason = "unauthenticated"
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
)

// AuthError is returned when a request cannot be authenticated.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError carrying the same reason.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Reason == e.Reason
}

var (
	// ErrMissingCredential is returned when no bearer credential was supplied.
	ErrMissingCredential = &AuthError{Reason: ReasonMissingCredential}
	// ErrMalformed is returned when a token cannot be parsed.
	ErrMalformed = &AuthError{Reason: ReasonMalformed}
	// ErrBadSignature is returned when a token signature does not verify.
	ErrBadSignature = &AuthError{Reason: ReasonBadSignature}
	// ErrExpired is returned when a token is past its expiry plus the grace window.
	ErrExpired = &AuthError{Reason: ReasonExpired}
	// ErrUnauthenticated is returned by the principal resolver for any verify failure.
	ErrUnauthenticated = &AuthError{Reason: ReasonUnauthenticated}
	// ErrInvalidCredentials is returned when login credentials do not match.
	ErrInvalidCredentials = &AuthError{Reason: ReasonInvalidCredentials}
)

// AuthzReason is the machine-readable reason of an authorization failure.
type AuthzReason string

const (
	ReasonForbidden         AuthzReason = "forbidden"
	ReasonIllegalTransition AuthzReason = "illegal_transition"
)

// AuthzError is returned when an authenticated principal may not perform an action.
type AuthzError struct {
	Reason AuthzReason
	Action string
	From   string
	To     string
}

func (e *AuthzError) Error() string {
	switch {
	case e.Reason == ReasonIllegalTransition:
		return fmt.Sprintf("illegal transition from %q to %q", e.From, e.To)
	case e.Action != "":
		return fmt.Sprintf("forbidden: %s", e.Action)
	default:
		return string(e.Reason)
	}
}

// Is matches any AuthzError carrying the same reason.
func (e *AuthzError) Is(target error) bool {
	t, ok := target.(*AuthzError)
	return ok && t.Reason == e.Reason
}

var (
	// ErrForbidden matches every ownership or role denial.
	ErrForbidden = &AuthzError{Reason: ReasonForbidden}
	// ErrIllegalTransition matches every rejected status change.
	ErrIllegalTransition = &AuthzError{Reason: ReasonIllegalTransition}
)

// Forbidden builds a denial for the named action.
func Forbidden(action string) *AuthzError {
	return &AuthzError{Reason: ReasonForbidden, Action: action}
}

// IllegalTransition builds a status-machine denial.
func IllegalTransition(from, to string) *AuthzError {
	return &AuthzError{Reason: ReasonIllegalTransition, From: from, To: to}
}

// ValidationError reports the first invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches a ValidationError for the same field; an empty target field
// matches any field.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && (t.Field == "" || t.Field == e.Field)
}

// ErrValidation matches every ValidationError.
var ErrValidation = &ValidationError{}

// Invalid builds a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is matches a NotFoundError for the same resource type; an empty target
// resource matches any.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && (t.Resource == "" || t.Resource == e.Resource)
}

// ErrNotFound matches every NotFoundError.
var ErrNotFound = &NotFoundError{}

// NotFound builds a NotFoundError.
func NotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// ConflictError reports a uniqueness violation, a referenced delete, or a
// lost concurrent update.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
}

// Is matches every ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// ErrConflict matches every ConflictError.
var ErrConflict = &ConflictError{}

// Conflict builds a ConflictError.
func Conflict(resource, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Reason: reason}
}

// ErrUnavailable is returned when a collaborator timed out or was unreachable.
// Callers may retry.
var ErrUnavailable = errors.New("service unavailable")

// IsRetryable reports whether err is a timeout, a cancellation or an
// unreachable service that the caller may retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrConnectionClosed)
}

// KindOf classifies err.
func KindOf(err error) Kind {
	var (
		authErr     *AuthError
		authzErr    *AuthzError
		validErr    *ValidationError
		notFoundErr *NotFoundError
		conflictErr *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return KindUnauthenticated
	case errors.As(err, &authzErr):
		return KindForbidden
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &conflictErr):
		return KindConflict
	case IsRetryable(err):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable reason for err.
func Code(err error) string {
	var (
		authErr  *AuthError
		authzErr *AuthzError
	)
	switch {
	case errors.As(err, &authErr):
		return string(authErr.Reason)
	case errors.As(err, &authzErr):
		return string(authzErr.Reason)
	default:
		return string(KindOf(err))
	}
}
