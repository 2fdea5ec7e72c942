package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody. Session is set when the operation failed
// after changing state, as a restart whose test-data reset failed does.
type ErrorResponse struct {
	Error   ErrorBody           `json:"error"`
	Session *session.Projection `json:"session,omitempty"`
}

// sessionFailure carries a projection alongside a store error.
type sessionFailure struct {
	err  error
	proj session.Projection
}

func (f *sessionFailure) Error() string { return f.err.Error() }
func (f *sessionFailure) Unwrap() error { return f.err }

var statusByCode = map[session.ErrorCode]int{
	session.CodeValidation:             http.StatusBadRequest,
	session.CodeInvalidState:           http.StatusConflict,
	session.CodeConcurrentModification: http.StatusConflict,
	session.CodeNotFound:               http.StatusNotFound,
	session.CodePersistence:            http.StatusBadGateway,
}

// StatusFor maps a session error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByCode[session.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func codeForStatus(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// handleError renders every handler error as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		resp   ErrorResponse
		he     *echo.HTTPError
		fail   *sessionFailure
	)
	switch code := session.CodeOf(err); {
	case code != "":
		status = StatusFor(err)
		resp.Error = ErrorBody{Code: string(code), Message: err.Error()}
		if errors.As(err, &fail) {
			resp.Session = &fail.proj
		}
	case errors.As(err, &he):
		status = he.Code
		msg := http.StatusText(status)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		resp.Error = ErrorBody{Code: codeForStatus(status), Message: msg}
	default:
		status = http.StatusInternalServerError
		resp.Error = ErrorBody{Code: codeForStatus(status), Message: "internal server error"}
		s.logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, resp)
	}
	if writeErr != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(writeErr))
	}
}
