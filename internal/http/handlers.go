package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// CreateRequest is the body of POST /api/v1/sessions.
type CreateRequest struct {
	FeatureName string               `json:"feature_name"`
	Checkpoints []session.Checkpoint `json:"checkpoints"`
}

// PreFlightRequest is the body of POST /sessions/:id/preflight.
type PreFlightRequest struct {
	Answers map[string]string `json:"answers"`
}

// NotesRequest is the body of approve and save.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// RestartRequest is the body of POST /sessions/:id/restart.
type RestartRequest struct {
	ResetTestData bool `json:"reset_test_data"`
}

// ListResponse is the body of GET /api/v1/sessions.
type ListResponse struct {
	Sessions []session.Projection `json:"sessions"`
}

// DefaultHistoryLimit is the number of snapshots listed when the request
// carries no limit.
const DefaultHistoryLimit = 20

// SnapshotsResponse is the body of GET /sessions/:id/snapshots.
type SnapshotsResponse struct {
	SessionID string                     `json:"session_id"`
	Snapshots []persistence.SnapshotInfo `json:"snapshots"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// observe counts the operation by outcome.
func (s *Server) observe(op string, err error) {
	code := "ok"
	if err != nil {
		code = string(session.CodeOf(err))
		if code == "" {
			code = "unknown"
		}
	}
	s.ops.WithLabelValues(op, code).Inc()
}

// mutate runs op against the store named by :id and renders the projection.
func (s *Server) mutate(c echo.Context, op string, fn func(context.Context, *session.Store) (session.Projection, error)) error {
	store, err := s.registry.Get(c.Param("id"))
	if err != nil {
		s.observe(op, err)
		return err
	}
	proj, err := fn(c.Request().Context(), store)
	s.observe(op, err)
	if err != nil {
		if proj.Session.ID != "" {
			return &sessionFailure{err: err, proj: proj}
		}
		return err
	}
	return c.JSON(http.StatusOK, proj)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Sessions: s.registry.Len()}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(c.Request().Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	return c.JSON(status, resp)
}

func (s *Server) handleList(c echo.Context) error {
	return c.JSON(http.StatusOK, ListResponse{Sessions: s.registry.List()})
}

func (s *Server) handleGet(c echo.Context) error {
	store, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, store.Projection())
}

func (s *Server) handleForm(c echo.Context) error {
	store, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return err
	}
	form, err := store.FeedbackFormStructure(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, form)
}

func (s *Server) handleCreate(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	store, err := s.registry.Create(c.Request().Context(), req.FeatureName, req.Checkpoints)
	s.observe("create", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, store.Projection())
}

func (s *Server) handlePreFlight(c echo.Context) error {
	var req PreFlightRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return s.mutate(c, "preflight", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.CompletePreFlight(ctx, req.Answers)
	})
}

func (s *Server) handleApprove(c echo.Context) error {
	var req NotesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return s.mutate(c, "approve", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.ApproveCheckpoint(ctx, req.Notes)
	})
}

func (s *Server) handleReject(c echo.Context) error {
	var req session.FeedbackInput
	if err := bind(c, &req); err != nil {
		return err
	}
	return s.mutate(c, "reject", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.RejectCheckpoint(ctx, req)
	})
}

func (s *Server) handleResolve(c echo.Context) error {
	return s.mutate(c, "resolve", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.ResolveBlockers(ctx)
	})
}

func (s *Server) handleRestart(c echo.Context) error {
	var req RestartRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return s.mutate(c, "restart", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.RestartSession(ctx, req.ResetTestData)
	})
}

func (s *Server) handleEnd(c echo.Context) error {
	return s.mutate(c, "end", func(ctx context.Context, st *session.Store) (session.Projection, error) {
		return st.EndSession(ctx)
	})
}

func (s *Server) handleSave(c echo.Context) error {
	var req NotesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	store, err := s.registry.Get(c.Param("id"))
	if err != nil {
		s.observe("save", err)
		return err
	}
	res, err := store.SaveProgress(c.Request().Context(), req.Notes)
	s.observe("save", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleResume(c echo.Context) error {
	store, err := s.registry.Resume(c.Request().Context(), c.Param("id"))
	s.observe("resume", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, store.Projection())
}

// handleSnapshots lists saved snapshots. The session need not be live, so an
// ended session's saves stay listable.
func (s *Server) handleSnapshots(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "snapshot history is not available")
	}
	limit := DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}
	id := c.Param("id")
	snaps, err := s.history.History(c.Request().Context(), id, limit)
	s.observe("history", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SnapshotsResponse{SessionID: id, Snapshots: snaps})
}
