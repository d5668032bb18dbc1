package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/task-manager/domain/apperr"
	"github.com/example/task-manager/domain/task"
	"github.com/example/task-manager/domain/user"
	"github.com/example/task-manager/filter"
	"github.com/example/task-manager/middleware/ratelimit"
	"github.com/example/task-manager/modules/activity"
	"github.com/example/task-manager/modules/auth"
	taskmod "github.com/example/task-manager/modules/task"
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

// stageLogger records the pipeline stage of every rejected request.
type stageLogger struct {
	mockLogger
	mu     sync.Mutex
	stages []string
}

func (l *stageLogger) Debug(_ string, kv ...any) { l.record(kv) }
func (l *stageLogger) Error(_ string, kv ...any) { l.record(kv) }

func (l *stageLogger) record(kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == "stage" {
			l.stages = append(l.stages, fmt.Sprint(kv[i+1]))
		}
	}
}

func (l *stageLogger) Stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stages...)
}

var (
	adminPrincipal = &user.Principal{ID: 1, Roles: []user.Role{user.RoleAdmin}}
	alicePrincipal = &user.Principal{ID: 2, Roles: []user.Role{user.RoleUser}}
	bobPrincipal   = &user.Principal{ID: 3, Roles: []user.Role{user.RoleUser}}
)

// mockAuthPort implements auth.AuthPort for testing. Tokens map bearer
// tokens onto principals.
type mockAuthPort struct {
	auth.AuthPort
	tokens     map[string]*user.Principal
	loginFunc  func(ctx context.Context, email, password string) (*user.TokenPair, error)
	deleteUser func(ctx context.Context, actor *user.Principal, id uint) error
}

func (m *mockAuthPort) ResolvePrincipal(_ context.Context, header string) (*user.Principal, error) {
	if header == "" {
		return nil, apperr.ErrMissingCredential
	}
	token, ok := auth.BearerToken(header)
	if !ok {
		return nil, apperr.ErrMalformed
	}
	p, ok := m.tokens[token]
	if !ok {
		return nil, apperr.ErrBadSignature
	}
	return p, nil
}

func (m *mockAuthPort) Login(ctx context.Context, email, password string) (*user.TokenPair, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, email, password)
	}
	return nil, apperr.ErrInvalidCredentials
}

func (m *mockAuthPort) DeleteUser(ctx context.Context, actor *user.Principal, id uint) error {
	if m.deleteUser != nil {
		return m.deleteUser(ctx, actor, id)
	}
	return nil
}

// mockTaskPort implements taskmod.TaskPort; unset functions panic through
// the embedded nil interface.
type mockTaskPort struct {
	taskmod.TaskPort
	listTasks      func(ctx context.Context, actor *user.Principal, f task.Filter) ([]taskmod.TaskDTO, error)
	getTask        func(ctx context.Context, actor *user.Principal, id uint) (*taskmod.TaskDTO, error)
	transitionTask func(ctx context.Context, req taskmod.TransitionTaskRequest) (*taskmod.TaskDTO, error)
	countUserTasks func(ctx context.Context, userID uint) (int64, error)
	updateLabel    func(ctx context.Context, actor *user.Principal, id uint, name string) (*taskmod.LabelDTO, error)
}

func (m *mockTaskPort) ListTasks(ctx context.Context, actor *user.Principal, f task.Filter) ([]taskmod.TaskDTO, error) {
	return m.listTasks(ctx, actor, f)
}

func (m *mockTaskPort) GetTask(ctx context.Context, actor *user.Principal, id uint) (*taskmod.TaskDTO, error) {
	return m.getTask(ctx, actor, id)
}

func (m *mockTaskPort) TransitionTask(ctx context.Context, req taskmod.TransitionTaskRequest) (*taskmod.TaskDTO, error) {
	return m.transitionTask(ctx, req)
}

func (m *mockTaskPort) CountUserTasks(ctx context.Context, userID uint) (int64, error) {
	return m.countUserTasks(ctx, userID)
}

func (m *mockTaskPort) UpdateLabel(ctx context.Context, actor *user.Principal, id uint, name string) (*taskmod.LabelDTO, error) {
	return m.updateLabel(ctx, actor, id, name)
}

// mockActivityPort implements activity.ActivityPort for testing.
type mockActivityPort struct {
	entries []activity.Entry
}

func (m *mockActivityPort) ListActivity(_ context.Context, _ *user.Principal, limit int) ([]activity.Entry, int, error) {
	if limit < len(m.entries) {
		return m.entries[:limit], len(m.entries), nil
	}
	return m.entries, len(m.entries), nil
}

type testServer struct {
	auth     *mockAuthPort
	tasks    *mockTaskPort
	activity *mockActivityPort
	strict   bool
	throttle fiber.Handler
	logger   types.Logger
}

func newTestServer() *testServer {
	return &testServer{
		auth: &mockAuthPort{tokens: map[string]*user.Principal{
			"admin-token": adminPrincipal,
			"alice-token": alicePrincipal,
			"bob-token":   bobPrincipal,
		}},
		tasks:    &mockTaskPort{},
		activity: &mockActivityPort{},
	}
}

func (s *testServer) app() *fiber.App {
	var logger types.Logger = &mockLogger{}
	if s.logger != nil {
		logger = s.logger
	}
	h := NewHandlers(s.auth, s.tasks, s.activity, filter.NewBuilder(filter.Options{RejectUnknown: s.strict}), logger)
	return NewApp(h, s.throttle)
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing_credential"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "malformed"},
		{"unknown token", "Bearer forged", http.StatusUnauthorized, "bad_signature"},
	}

	s := newTestServer()
	calls := 0
	s.tasks.listTasks = func(context.Context, *user.Principal, task.Filter) ([]taskmod.TaskDTO, error) {
		calls++
		return nil, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := s.app().Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(fiber.HeaderWWWAuthenticate))
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error)
		})
	}
	assert.Zero(t, calls, "ListTasks must not run for unauthenticated requests")
}

func TestListTasks_Filters(t *testing.T) {
	s := newTestServer()
	var got task.Filter
	var gotActor *user.Principal
	s.tasks.listTasks = func(_ context.Context, actor *user.Principal, f task.Filter) ([]taskmod.TaskDTO, error) {
		got, gotActor = f, actor
		return []taskmod.TaskDTO{{ID: 1}, {ID: 2}}, nil
	}

	resp := s.do(t, http.MethodGet, "/api/v1/tasks?status=ToReview&titleCont=docs&assigneeId=&sort=asc", "alice-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(TotalCountHeader))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	require.NotNil(t, got.Status)
	assert.Equal(t, task.StatusToReview, *got.Status)
	require.NotNil(t, got.TitleContains)
	assert.Equal(t, "docs", *got.TitleContains)
	assert.Nil(t, got.AssigneeID)
	assert.Equal(t, alicePrincipal.ID, gotActor.ID)

	resp = s.do(t, http.MethodGet, "/api/v1/tasks?status=done", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "status", body.Field)

	// Authentication is checked before the filter.
	resp = s.do(t, http.MethodGet, "/api/v1/tasks?status=done", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListTasks_StrictFilters(t *testing.T) {
	s := newTestServer()
	s.strict = true
	s.tasks.listTasks = func(context.Context, *user.Principal, task.Filter) ([]taskmod.TaskDTO, error) {
		return nil, nil
	}

	resp := s.do(t, http.MethodGet, "/api/v1/tasks?sort=asc", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "sort", decodeError(t, resp).Field)

	resp = s.do(t, http.MethodGet, "/api/v1/tasks", "alice-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get(TotalCountHeader))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

// taskAuthoredBy is a stored task owned by author in the to_review state,
// assigned to assignee.
func taskAuthoredBy(author, assignee uint) func(context.Context, *user.Principal, uint) (*taskmod.TaskDTO, error) {
	return func(_ context.Context, _ *user.Principal, id uint) (*taskmod.TaskDTO, error) {
		return &taskmod.TaskDTO{
			ID:         id,
			Title:      "Review docs",
			Status:     task.StatusToReview,
			AuthorID:   author,
			AssigneeID: &assignee,
			Version:    3,
		}, nil
	}
}

func TestTransitionTask(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		body       string
		portErr    error
		wantStatus int
		wantCode   string
		wantCalled bool
	}{
		{"success", "alice-token", `{"status":"ToPublish","from":"to_review"}`, nil, http.StatusOK, "", true},
		{"unknown status", "alice-token", `{"status":"done"}`, nil, http.StatusBadRequest, "validation_error", false},
		{"illegal step", "alice-token", `{"status":"draft"}`, nil, http.StatusForbidden, "illegal_transition", false},
		{"assignee may not transition", "bob-token", `{"status":"to_publish"}`, nil, http.StatusForbidden, "forbidden", false},
		{"stale expectation", "alice-token", `{"status":"to_review","from":"to_be_fixed"}`, apperr.Conflict("task", "status is to_review"), http.StatusConflict, "conflict", true},
		{"lost race", "alice-token", `{"status":"to_be_fixed","from":"to_review"}`, apperr.Conflict("task", "modified concurrently"), http.StatusConflict, "conflict", true},
		{"timeout", "alice-token", `{"status":"to_publish"}`, apperr.Transport("transition-task", context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.tasks.getTask = taskAuthoredBy(alicePrincipal.ID, bobPrincipal.ID)
			called := false
			var got taskmod.TransitionTaskRequest
			s.tasks.transitionTask = func(_ context.Context, req taskmod.TransitionTaskRequest) (*taskmod.TaskDTO, error) {
				called = true
				got = req
				if tt.portErr != nil {
					return nil, tt.portErr
				}
				return &taskmod.TaskDTO{ID: req.ID, Status: req.To, Version: 4}, nil
			}

			resp := s.do(t, http.MethodPost, "/api/v1/tasks/7/transition", tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCode == "" {
				var dto taskmod.TaskDTO
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto))
				assert.Equal(t, task.StatusToPublish, dto.Status)
				assert.Equal(t, uint(7), got.ID)
				assert.Equal(t, alicePrincipal.ID, got.Actor.ID)
				require.NotNil(t, got.From)
				assert.Equal(t, task.StatusToReview, *got.From)
				return
			}
			body := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantCode == "unavailable", body.Retryable)
		})
	}
}

func TestTaskRoutes_AuthorizeAgainstSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		getTask    func(context.Context, *user.Principal, uint) (*taskmod.TaskDTO, error)
		wantStatus int
		wantCode   string
	}{
		{
			name: "non-owner read", method: http.MethodGet, path: "/api/v1/tasks/7", token: "bob-token",
			getTask:    taskAuthoredBy(alicePrincipal.ID, adminPrincipal.ID),
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
		{
			name: "read denied by task module", method: http.MethodGet, path: "/api/v1/tasks/7", token: "bob-token",
			getTask: func(context.Context, *user.Principal, uint) (*taskmod.TaskDTO, error) {
				return nil, apperr.Forbidden("task:read")
			},
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
		{
			name: "missing task", method: http.MethodDelete, path: "/api/v1/tasks/7", token: "alice-token",
			getTask: func(_ context.Context, _ *user.Principal, id uint) (*taskmod.TaskDTO, error) {
				return nil, apperr.NotFound("task", id)
			},
			wantStatus: http.StatusNotFound, wantCode: "not_found",
		},
		{
			name: "assignee update", method: http.MethodPatch, path: "/api/v1/tasks/7", token: "bob-token",
			body:       `{"title":"mine now"}`,
			getTask:    taskAuthoredBy(alicePrincipal.ID, bobPrincipal.ID),
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
		{
			name: "illegal status through update", method: http.MethodPatch, path: "/api/v1/tasks/7", token: "alice-token",
			body:       `{"status":"published"}`,
			getTask:    taskAuthoredBy(alicePrincipal.ID, bobPrincipal.ID),
			wantStatus: http.StatusForbidden, wantCode: "illegal_transition",
		},
		{
			name: "assignee delete", method: http.MethodDelete, path: "/api/v1/tasks/7", token: "bob-token",
			getTask:    taskAuthoredBy(alicePrincipal.ID, bobPrincipal.ID),
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
		{
			name: "non-owner user update", method: http.MethodPatch, path: "/api/v1/users/2", token: "bob-token",
			body:       `{"first_name":"Mallory"}`,
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
		{
			name: "self role change", method: http.MethodPatch, path: "/api/v1/users/3", token: "bob-token",
			body:       `{"role":"admin"}`,
			wantStatus: http.StatusForbidden, wantCode: "forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			stages := &stageLogger{}
			s.logger = stages
			s.tasks.getTask = tt.getTask

			// Any call past authorization reaches an unset mock and panics
			// into a 500.
			resp := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Error)
			assert.Equal(t, []string{"Authorizing"}, stages.Stages())
		})
	}
}

func TestGetTask(t *testing.T) {
	s := newTestServer()
	stages := &stageLogger{}
	s.logger = stages
	calls := 0
	s.tasks.getTask = func(ctx context.Context, p *user.Principal, id uint) (*taskmod.TaskDTO, error) {
		calls++
		return taskAuthoredBy(alicePrincipal.ID, bobPrincipal.ID)(ctx, p, id)
	}

	for _, token := range []string{"alice-token", "bob-token", "admin-token"} {
		resp := s.do(t, http.MethodGet, "/api/v1/tasks/7", token, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, token)
		var dto taskmod.TaskDTO
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto))
		assert.Equal(t, uint(7), dto.ID)
	}
	assert.Equal(t, 3, calls, "the snapshot loaded for authorization is the response")
	assert.Empty(t, stages.Stages())
}

func TestDeleteUser(t *testing.T) {
	s := newTestServer()
	refs := map[uint]int64{5: 2}
	var counted []uint
	s.tasks.countUserTasks = func(_ context.Context, id uint) (int64, error) {
		counted = append(counted, id)
		return refs[id], nil
	}
	var deleted []uint
	s.auth.deleteUser = func(_ context.Context, _ *user.Principal, id uint) error {
		deleted = append(deleted, id)
		return nil
	}

	resp := s.do(t, http.MethodDelete, "/api/v1/users/5", "alice-token", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, counted)

	resp = s.do(t, http.MethodDelete, "/api/v1/users/5", "admin-token", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp).Message, "referenced by 2 task(s)")

	resp = s.do(t, http.MethodDelete, "/api/v1/users/2", "alice-token", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []uint{2}, deleted)

	resp = s.do(t, http.MethodDelete, "/api/v1/users/abc", "admin-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "id", decodeError(t, resp).Field)
}

func TestUpdateLabel_RequiresAdmin(t *testing.T) {
	s := newTestServer()
	calls := 0
	s.tasks.updateLabel = func(_ context.Context, _ *user.Principal, id uint, name string) (*taskmod.LabelDTO, error) {
		calls++
		return &taskmod.LabelDTO{ID: id, Name: name}, nil
	}

	resp := s.do(t, http.MethodPut, "/api/v1/labels/3", "alice-token", `{"name":"docs"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", decodeError(t, resp).Error)
	assert.Zero(t, calls)

	resp = s.do(t, http.MethodPut, "/api/v1/labels/3", "admin-token", `{"name":"docs"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var label taskmod.LabelDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&label))
	assert.Equal(t, "docs", label.Name)
	assert.Equal(t, 1, calls)
}

func TestTaskStatuses(t *testing.T) {
	s := newTestServer()

	resp := s.do(t, http.MethodGet, "/api/v1/task_statuses", "alice-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get(TotalCountHeader))
	var statuses []TaskStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 5)
	assert.Equal(t, "Draft", statuses[0].Name)
	assert.Empty(t, statuses[4].Next)

	resp = s.do(t, http.MethodGet, "/api/v1/task_statuses/ToReview", "alice-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status TaskStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, task.StatusToReview, status.Slug)
	assert.Equal(t, []task.Status{task.StatusToBeFixed, task.StatusToPublish}, status.Next)

	resp = s.do(t, http.MethodGet, "/api/v1/task_statuses/done", "alice-token", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListActivity(t *testing.T) {
	s := newTestServer()
	for i := 1; i <= 3; i++ {
		s.activity.entries = append(s.activity.entries, activity.Entry{Seq: uint64(i), TaskID: uint(i)})
	}

	resp := s.do(t, http.MethodGet, "/api/v1/activity", "alice-token", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/activity?limit=2", "admin-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get(TotalCountHeader))
	var entries []activity.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Len(t, entries, 2)
}

// countingLimiter allows limit requests per key.
type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	reset := time.Now().Add(window)
	if l.counts[key] >= limit {
		return &ratelimit.Result{Allowed: false, Limit: limit, ResetAt: reset}, nil
	}
	l.counts[key]++
	return &ratelimit.Result{Allowed: true, Limit: limit, Remaining: limit - l.counts[key], ResetAt: reset}, nil
}

func TestLoginThrottle(t *testing.T) {
	s := newTestServer()
	s.throttle = LoginThrottle(&countingLimiter{}, 2, time.Minute, &mockLogger{})
	s.auth.loginFunc = func(_ context.Context, email, password string) (*user.TokenPair, error) {
		if email == "hexlet@example.com" && password == "qwerty" {
			return &user.TokenPair{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}, nil
		}
		return nil, apperr.ErrInvalidCredentials
	}

	app := s.app()
	login := func(path, body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := login("/api/v1/login", `{"email":"hexlet@example.com","password":"qwerty"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = login("/api/v1/auth/login", `{"email":"hexlet@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, resp).Error)

	resp = login("/api/v1/login", `{"email":"hexlet@example.com","password":"qwerty"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
	body := decodeError(t, resp)
	assert.Equal(t, "rate_limited", body.Error)
	assert.True(t, body.Retryable)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer()
	resp := s.do(t, http.MethodGet, "/api/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, resp).Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	resp := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeError(c, fmt.Errorf("db exploded: %s", "secret"))
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "internal_error", body.Error)
	assert.NotContains(t, body.Message, "secret")
}
