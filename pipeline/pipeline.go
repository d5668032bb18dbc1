// Package pipeline orchestrates a single inbound request through
// authentication, authorization and execution. Each Run owns its own state;
// nothing is shared between requests.
package pipeline

import (
	"context"
	"fmt"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
	"github.com/go-monolith/mono/pkg/types"
)

// State is a step of the per-request state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateAuthorizing
	StateAuthorized
	StateExecuting
	StateCompleted
	StateRejected
)

var stateNames = [...]string{
	StateUnauthenticated: "Unauthenticated",
	StateAuthenticating:  "Authenticating",
	StateAuthenticated:   "Authenticated",
	StateAuthorizing:     "Authorizing",
	StateAuthorized:      "Authorized",
	StateExecuting:       "Executing",
	StateCompleted:       "Completed",
	StateRejected:        "Rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s ends the pipeline.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// Resolver turns a raw Authorization header into a principal.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, header string) (*user.Principal, error)
}

// AuthorizeFunc runs in the Authorizing state. Resource checks load the
// snapshot they decide on here; ExecuteFunc only re-checks what can change
// between the two steps.
type AuthorizeFunc func(ctx context.Context, p *user.Principal) error

// ExecuteFunc performs the request on behalf of p.
type ExecuteFunc func(ctx context.Context, p *user.Principal) (any, error)

// Request describes one inbound request.
type Request struct {
	// Name identifies the operation in logs.
	Name          string
	Authorization string
	// Authorize may be nil when any authenticated principal is allowed.
	Authorize AuthorizeFunc
	Execute   ExecuteFunc
}

// Outcome is the terminal result of a Run.
type Outcome struct {
	State     State
	Trace     []State
	Principal *user.Principal
	Result    any
	Err       error
	// FailedAt is the state the request was in when it was rejected.
	FailedAt State
}

// Pipeline runs requests through the gates. It is safe for concurrent use.
type Pipeline struct {
	resolver Resolver
	logger   types.Logger
}

// New creates a Pipeline. logger may be nil.
func New(resolver Resolver, logger types.Logger) *Pipeline {
	return &Pipeline{resolver: resolver, logger: logger}
}

// Run drives req to a terminal state. Every failure is returned in
// Outcome.Err unchanged so the caller can translate it.
func (p *Pipeline) Run(ctx context.Context, req Request) *Outcome {
	out := &Outcome{State: StateUnauthenticated, Trace: []State{StateUnauthenticated}}

	out.advance(StateAuthenticating)
	principal, err := p.resolver.ResolvePrincipal(ctx, req.Authorization)
	if err != nil {
		return p.reject(out, req, err)
	}
	if principal == nil {
		return p.reject(out, req, apperr.ErrUnauthenticated)
	}
	out.Principal = principal
	out.advance(StateAuthenticated)

	out.advance(StateAuthorizing)
	if req.Authorize != nil {
		if err := req.Authorize(ctx, principal); err != nil {
			return p.reject(out, req, err)
		}
	}
	out.advance(StateAuthorized)

	if err := ctx.Err(); err != nil {
		return p.reject(out, req, fmt.Errorf("%w: %w", apperr.ErrUnavailable, err))
	}

	out.advance(StateExecuting)
	result, err := req.Execute(ctx, principal)
	if err != nil {
		return p.reject(out, req, err)
	}
	out.Result = result
	out.advance(StateCompleted)
	return out
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

func (p *Pipeline) reject(out *Outcome, req Request, err error) *Outcome {
	out.FailedAt = out.State
	out.Err = err
	out.advance(StateRejected)

	if p.logger != nil {
		kv := []any{"operation", req.Name, "stage", out.FailedAt.String(), "code", apperr.Code(err)}
		if out.Principal != nil {
			kv = append(kv, "user_id", out.Principal.ID)
		}
		if apperr.KindOf(err) == apperr.KindInternal {
			p.logger.Error("request failed", append(kv, "error", err)...)
		} else {
			p.logger.Debug("request rejected", kv...)
		}
	}
	return out
}
