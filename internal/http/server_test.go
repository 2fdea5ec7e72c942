package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/verifyd/internal/logging"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/schema"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

type resetterFunc func(ctx context.Context, id string) error

func (f resetterFunc) ResetTestData(ctx context.Context, id string) error { return f(ctx, id) }

type testServer struct {
	*Server
	logs *logging.TestLogger
}

func newTestServer(t *testing.T, opts ...session.Option) *testServer {
	t.Helper()
	fields, err := schema.NewStatic([]session.FieldOption{{Value: "email", Label: "Email"}})
	require.NoError(t, err)

	all := append([]session.Option{session.WithFieldOptions(fields)}, opts...)
	gw := persistence.NewMemory()
	reg := session.NewRegistry(gw, all...)

	logs := logging.NewTestLogger()
	cfg := NewDefaultConfig()
	cfg.RateLimit.Enabled = false
	srv, err := NewServer(reg, logs.Logger, cfg, WithSnapshotHistory(gw))
	require.NoError(t, err)
	return &testServer{Server: srv, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func checkpoints(n int) []session.Checkpoint {
	out := make([]session.Checkpoint, n)
	for i := range out {
		out[i] = session.Checkpoint{
			ID:             fmt.Sprintf("cp-%d", i+1),
			Index:          i + 1,
			Action:         "click",
			ExpectedResult: "it works",
		}
	}
	return out
}

func (s *testServer) create(t *testing.T, n int) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sessions", CreateRequest{FeatureName: "login", Checkpoints: checkpoints(n)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session.Projection](t, rec).Session.ID
}

func path(id, op string) string {
	return "/api/v1/sessions/" + id + "/" + op
}

func TestNewServer(t *testing.T) {
	reg := session.NewRegistry(nil)

	_, err := NewServer(nil, logging.NewNop(), nil)
	assert.ErrorContains(t, err, "registry cannot be nil")

	_, err = NewServer(reg, nil, nil)
	assert.ErrorContains(t, err, "logger is required")

	bad := NewDefaultConfig()
	bad.Port = 70000
	_, err = NewServer(reg, logging.NewNop(), bad)
	assert.ErrorContains(t, err, "port must be")

	srv, err := NewServer(reg, logging.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8085", srv.config.Addr())
}

func TestServer_HappyPath(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 2)

	rec := s.do(t, http.MethodPost, path(id, "preflight"), PreFlightRequest{Answers: map[string]string{"env": "staging"}})
	require.Equal(t, http.StatusOK, rec.Code)
	proj := decode[session.Projection](t, rec)
	assert.Equal(t, session.StatusTesting, proj.Status())
	require.NotNil(t, proj.Current)
	assert.Equal(t, "cp-1", proj.Current.ID)

	rec = s.do(t, http.MethodPost, path(id, "approve"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, path(id, "reject"), session.FeedbackInput{
		Issue: "button misaligned", Expected: "aligned", Category: session.CategoryUI,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	proj = decode[session.Projection](t, rec)
	assert.Equal(t, session.StatusCompleted, proj.Status())
	assert.Equal(t, session.Summary{Passed: 1, Failed: 1, NiceToHave: 1}, proj.Session.Summary)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, proj.Version, decode[session.Projection](t, rec).Version)

	rec = s.do(t, http.MethodPost, path(id, "end"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StatusEnded, decode[session.Projection](t, rec).Status())
}

func TestServer_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 2)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"approve before preflight", http.MethodPost, path(id, "approve"), nil, http.StatusConflict, "INVALID_STATE"},
		{"unknown session", http.MethodGet, "/api/v1/sessions/vs_nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"invalid plan", http.MethodPost, "/api/v1/sessions", CreateRequest{Checkpoints: []session.Checkpoint{{ID: "a", Index: 2, Action: "x"}}}, http.StatusBadRequest, "VALIDATION"},
		{"resume unsaved", http.MethodPost, path("vs_nope", "resume"), nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			body := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
			assert.Nil(t, body.Session)
		})
	}
}

func TestServer_RejectValidation(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 1)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, path(id, "preflight"), nil).Code)

	rec := s.do(t, http.MethodPost, path(id, "reject"), session.FeedbackInput{Issue: "  ", Expected: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[ErrorResponse](t, rec).Error.Code)

	req := httptest.NewRequest(http.MethodPost, path(id, "reject"), strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode[ErrorResponse](t, rec).Error.Message)
}

func TestServer_BlockAndResolve(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 2)
	s.do(t, http.MethodPost, path(id, "preflight"), nil)

	rec := s.do(t, http.MethodPost, path(id, "reject"), session.FeedbackInput{
		Issue: "crash", Expected: "no crash", Priority: session.PriorityBlocker,
	})
	proj := decode[session.Projection](t, rec)
	assert.Equal(t, session.StatusBlocked, proj.Status())
	assert.Len(t, proj.Blockers, 1)

	rec = s.do(t, http.MethodPost, path(id, "approve"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, path(id, "resolve"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proj = decode[session.Projection](t, rec)
	assert.Equal(t, session.StatusTesting, proj.Status())
	assert.Empty(t, proj.Blockers)
}

func TestServer_SaveAndResume(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 3)
	s.do(t, http.MethodPost, path(id, "preflight"), nil)
	s.do(t, http.MethodPost, path(id, "approve"), nil)

	rec := s.do(t, http.MethodPost, path(id, "save"), NotesRequest{Notes: "lunch"})
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[session.SaveResult](t, rec)
	assert.NotEmpty(t, saved.SnapshotID)

	s.do(t, http.MethodPost, path(id, "approve"), nil)

	rec = s.do(t, http.MethodPost, path(id, "resume"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[session.Projection](t, rec).Session.CurrentIndex)
}

func TestServer_SnapshotHistory(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 3)
	s.do(t, http.MethodPost, path(id, "preflight"), nil)

	var ids []string
	for _, notes := range []string{"morning", "lunch"} {
		rec := s.do(t, http.MethodPost, path(id, "save"), NotesRequest{Notes: notes})
		require.Equal(t, http.StatusOK, rec.Code)
		ids = append(ids, decode[session.SaveResult](t, rec).SnapshotID)
	}

	rec := s.do(t, http.MethodGet, path(id, "snapshots"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[SnapshotsResponse](t, rec)
	assert.Equal(t, id, body.SessionID)
	require.Len(t, body.Snapshots, 2)
	assert.Equal(t, ids[1], body.Snapshots[0].SnapshotID)
	assert.Equal(t, "lunch", body.Snapshots[0].Notes)
	assert.Equal(t, session.StatusTesting, body.Snapshots[0].Status)

	rec = s.do(t, http.MethodGet, path(id, "snapshots")+"?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[SnapshotsResponse](t, rec).Snapshots, 1)

	// Saves outlive the live session.
	s.do(t, http.MethodPost, path(id, "end"), nil)
	rec = s.do(t, http.MethodGet, path(id, "snapshots"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[SnapshotsResponse](t, rec).Snapshots, 2)

	rec = s.do(t, http.MethodGet, path(id, "snapshots")+"?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decode[ErrorResponse](t, rec).Error.Code)

	rec = s.do(t, http.MethodGet, path(id, "snapshots")+"?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	srv, err := NewServer(session.NewRegistry(nil), logging.NewNop(), nil)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path(id, "snapshots"), nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_RestartResetFailureCarriesProjection(t *testing.T) {
	failing := resetterFunc(func(context.Context, string) error { return errors.New("no responders") })
	s := newTestServer(t, session.WithTestDataResetter(failing))
	id := s.create(t, 1)
	s.do(t, http.MethodPost, path(id, "preflight"), nil)

	rec := s.do(t, http.MethodPost, path(id, "restart"), RestartRequest{ResetTestData: true})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "PERSISTENCE", body.Error.Code)
	require.NotNil(t, body.Session)
	assert.Equal(t, session.StatusPreFlight, body.Session.Status())
}

func TestServer_FormAndList(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, 1)
	b := s.create(t, 2)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/"+a+"/feedback-form", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	form := decode[session.FormStructure](t, rec)
	assert.Equal(t, []session.FieldOption{{Value: "email", Label: "Email"}}, form.Fields)
	assert.Len(t, form.Priorities, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse](t, rec)
	require.Len(t, list.Sessions, 2)
	assert.ElementsMatch(t, []string{a, b}, []string{list.Sessions[0].Session.ID, list.Sessions[1].Session.ID})
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	s.create(t, 1)

	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Sessions: 1}, decode[HealthResponse](t, rec))

	reg := session.NewRegistry(nil)
	srv, err := NewServer(reg, logging.NewNop(), nil,
		WithHealthCheck("nats", func(context.Context) error { return errors.New("disconnected") }),
		WithHealthCheck("storage", func(context.Context) error { return nil }),
	)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, map[string]string{"nats": "disconnected", "storage": "ok"}, health.Checks)
}

func TestServer_PrometheusMetrics(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 1)
	s.do(t, http.MethodPost, path(id, "approve"), nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `verifyd_sessions_live{status="PRE_FLIGHT"} 1`)
	assert.Contains(t, body, `verifyd_sessions_live{status="ENDED"} 0`)
	assert.Contains(t, body, `verifyd_api_session_operations_total{code="ok",operation="create"} 1`)
	assert.Contains(t, body, `verifyd_api_session_operations_total{code="INVALID_STATE",operation="approve"} 1`)
}

func TestServer_RequestLogging(t *testing.T) {
	s := newTestServer(t)
	id := s.create(t, 1)
	s.do(t, http.MethodPost, path(id, "approve"), nil)

	s.logs.AssertLogged(t, zapcore.InfoLevel, "http request")
	var found bool
	for _, e := range s.logs.FilterMessage("http request").All() {
		fields := e.ContextMap()
		if fields["route"] == "/api/v1/sessions/:id/approve" {
			found = true
			assert.EqualValues(t, http.StatusConflict, fields["status"])
			assert.Equal(t, id, fields["session_id"])
			assert.NotEmpty(t, fields["request_id"])
		}
	}
	assert.True(t, found)
}

func TestServer_RateLimit(t *testing.T) {
	reg := session.NewRegistry(nil)
	cfg := NewDefaultConfig()
	cfg.RateLimit = RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	srv, err := NewServer(reg, logging.NewNop(), cfg)
	require.NoError(t, err)
	s := &testServer{Server: srv}

	body := CreateRequest{FeatureName: "x", Checkpoints: checkpoints(1)}
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/sessions", body).Code)
	assert.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/sessions", body).Code)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decode[ErrorResponse](t, rec).Error.Code)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/sessions", nil).Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(session.NewSessionError(session.CodeValidation, "op", "", "", nil)))
	assert.Equal(t, http.StatusConflict, StatusFor(session.NewSessionError(session.CodeConcurrentModification, "op", "", "", nil)))
	assert.Equal(t, http.StatusBadGateway, StatusFor(session.NewSessionError(session.CodePersistence, "op", "", "", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
