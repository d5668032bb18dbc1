package apperr

import (
	"errors"
	"fmt"
)

// Info is the serializable form of an error carried inside service replies.
// Request-reply handlers return domain failures as a populated Info instead of
// a Go error so the caller can rebuild the typed error on its side.
type Info struct {
	Kind     Kind   `json:"kind"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Resource string `json:"resource,omitempty"`
	ID       string `json:"id,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Action   string `json:"action,omitempty"`
}

// ToInfo converts err into its wire form. A nil error yields nil.
func ToInfo(err error) *Info {
	if err == nil {
		return nil
	}

	info := &Info{
		Kind:    KindOf(err),
		Reason:  Code(err),
		Message: err.Error(),
	}

	var (
		authzErr    *AuthzError
		validErr    *ValidationError
		notFoundErr *NotFoundError
		conflictErr *ConflictError
	)
	switch {
	case errors.As(err, &authzErr):
		info.From = authzErr.From
		info.To = authzErr.To
		info.Action = authzErr.Action
	case errors.As(err, &validErr):
		info.Field = validErr.Field
		info.Reason = validErr.Reason
	case errors.As(err, &notFoundErr):
		info.Resource = notFoundErr.Resource
		info.ID = notFoundErr.ID
	case errors.As(err, &conflictErr):
		info.Resource = conflictErr.Resource
		info.Reason = conflictErr.Reason
	}
	return info
}

// Err rebuilds the typed error described by i. A nil Info yields nil.
func (i *Info) Err() error {
	if i == nil {
		return nil
	}
	switch i.Kind {
	case KindUnauthenticated:
		return &AuthError{Reason: AuthReason(i.Reason)}
	case KindForbidden:
		return &AuthzError{Reason: AuthzReason(i.Reason), Action: i.Action, From: i.From, To: i.To}
	case KindValidation:
		return &ValidationError{Field: i.Field, Reason: i.Reason}
	case KindNotFound:
		return &NotFoundError{Resource: i.Resource, ID: i.ID}
	case KindConflict:
		return &ConflictError{Resource: i.Resource, Reason: i.Reason}
	case KindUnavailable:
		return errors.Join(ErrUnavailable, errors.New(i.Message))
	default:
		return errors.New(i.Message)
	}
}

// Transport wraps a failed service call. Timeouts and unreachable services
// are marked unavailable so callers can retry.
func Transport(service string, err error) error {
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		return fmt.Errorf("%w: %s request failed: %w", ErrUnavailable, service, err)
	}
	return fmt.Errorf("%s request failed: %w", service, err)
}
