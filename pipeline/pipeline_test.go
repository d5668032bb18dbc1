package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/user"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type resolverFunc func(ctx context.Context, header string) (*user.Principal, error)

func (f resolverFunc) ResolvePrincipal(ctx context.Context, header string) (*user.Principal, error) {
	return f(ctx, header)
}

func staticResolver(p *user.Principal) Resolver {
	return resolverFunc(func(_ context.Context, header string) (*user.Principal, error) {
		if header == "" {
			return nil, apperr.ErrMissingCredential
		}
		if header != "Bearer good" {
			return nil, &apperr.AuthError{Reason: apperr.ReasonUnauthenticated, Err: apperr.ErrBadSignature}
		}
		return p, nil
	})
}

func TestPipeline_Run_Completed(t *testing.T) {
	alice := &user.Principal{ID: 1, Roles: []user.Role{user.RoleUser}}
	p := New(staticResolver(alice), &mockLogger{})

	out := p.Run(context.Background(), Request{
		Name:          "tasks.list",
		Authorization: "Bearer good",
		Execute: func(_ context.Context, pr *user.Principal) (any, error) {
			return pr.ID, nil
		},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, uint(1), out.Result)
	assert.Same(t, alice, out.Principal)
	assert.Equal(t, []State{
		StateUnauthenticated,
		StateAuthenticating,
		StateAuthenticated,
		StateAuthorizing,
		StateAuthorized,
		StateExecuting,
		StateCompleted,
	}, out.Trace)
}

func TestPipeline_Run_Rejected(t *testing.T) {
	alice := &user.Principal{ID: 1, Roles: []user.Role{user.RoleUser}}
	boom := errors.New("boom")

	tests := []struct {
		name       string
		header     string
		authorize  AuthorizeFunc
		execute    ExecuteFunc
		wantErr    error
		wantFailAt State
	}{
		{
			name:       "missing credential",
			header:     "",
			wantErr:    apperr.ErrMissingCredential,
			wantFailAt: StateAuthenticating,
		},
		{
			name:       "bad token",
			header:     "Bearer forged",
			wantErr:    apperr.ErrUnauthenticated,
			wantFailAt: StateAuthenticating,
		},
		{
			name:   "forbidden",
			header: "Bearer good",
			authorize: func(_ context.Context, _ *user.Principal) error {
				return apperr.Forbidden("activity:read")
			},
			wantErr:    apperr.ErrForbidden,
			wantFailAt: StateAuthorizing,
		},
		{
			name:   "execution failure",
			header: "Bearer good",
			execute: func(_ context.Context, _ *user.Principal) (any, error) {
				return nil, boom
			},
			wantErr:    boom,
			wantFailAt: StateExecuting,
		},
		{
			name:   "validation failure",
			header: "Bearer good",
			execute: func(_ context.Context, _ *user.Principal) (any, error) {
				return nil, apperr.Invalid("status", "unknown status")
			},
			wantErr:    apperr.ErrValidation,
			wantFailAt: StateExecuting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executed := false
			execute := tt.execute
			if execute == nil {
				execute = func(_ context.Context, _ *user.Principal) (any, error) {
					executed = true
					return nil, nil
				}
			}

			out := New(staticResolver(alice), &mockLogger{}).Run(context.Background(), Request{
				Authorization: tt.header,
				Authorize:     tt.authorize,
				Execute:       execute,
			})

			assert.Equal(t, StateRejected, out.State)
			assert.True(t, out.State.Terminal())
			assert.Equal(t, tt.wantFailAt, out.FailedAt)
			assert.ErrorIs(t, out.Err, tt.wantErr)
			assert.False(t, executed, "execute must not run after a rejected gate")
			assert.Equal(t, StateRejected, out.Trace[len(out.Trace)-1])
		})
	}
}

func TestPipeline_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(staticResolver(&user.Principal{ID: 1}), nil).Run(ctx, Request{
		Authorization: "Bearer good",
		Execute: func(_ context.Context, _ *user.Principal) (any, error) {
			t.Fatal("execute must not run on a canceled context")
			return nil, nil
		},
	})

	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, StateAuthorized, out.FailedAt)
	assert.True(t, apperr.IsRetryable(out.Err))
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(out.Err))
}

func TestPipeline_Run_NoSharedState(t *testing.T) {
	p := New(resolverFunc(func(_ context.Context, header string) (*user.Principal, error) {
		if header == "Bearer admin" {
			return &user.Principal{ID: 1, Roles: []user.Role{user.RoleAdmin}}, nil
		}
		return &user.Principal{ID: 2, Roles: []user.Role{user.RoleUser}}, nil
	}), &mockLogger{})

	adminOnly := func(_ context.Context, pr *user.Principal) error {
		return nilIf(pr.IsAdmin(), apperr.Forbidden("activity:read"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		header := "Bearer user"
		if i%2 == 0 {
			header = "Bearer admin"
		}
		wg.Add(1)
		go func(header string) {
			defer wg.Done()
			out := p.Run(context.Background(), Request{
				Authorization: header,
				Authorize:     adminOnly,
				Execute: func(_ context.Context, pr *user.Principal) (any, error) {
					return pr.ID, nil
				},
			})
			if header == "Bearer admin" {
				assert.Equal(t, StateCompleted, out.State)
				assert.Equal(t, uint(1), out.Result)
			} else {
				assert.Equal(t, StateRejected, out.State)
				assert.ErrorIs(t, out.Err, apperr.ErrForbidden)
			}
		}(header)
	}
	wg.Wait()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Authorizing", StateAuthorizing.String())
	assert.Equal(t, "Rejected", StateRejected.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.False(t, StateExecuting.Terminal())
}

func nilIf(ok bool, err error) error {
	if ok {
		return nil
	}
	return err
}
