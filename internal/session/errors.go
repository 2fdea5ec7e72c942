package session

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels. Every error returned by the Store matches exactly one
// of these through errors.Is.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidState           = errors.New("operation not permitted in current state")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPersistence            = errors.New("persistence failed")
	ErrNotFound               = errors.New("not found")
)

// Validation errors.
var (
	ErrEmptyIssue      = errors.New("issue is required")
	ErrEmptyExpected   = errors.New("expected is required")
	ErrInvalidPriority = errors.New("priority must be blocker or nice-to-have")
	ErrInvalidCategory = errors.New("category is not in the fixed enumeration")
	ErrInvalidQueue    = errors.New("invalid checkpoint queue")
	ErrEmptySessionID  = errors.New("session_id is required")
)

// Persistence errors.
var (
	ErrSaveAbandoned    = errors.New("save abandoned: session ended")
	ErrHandoffAbandoned = errors.New("hand-off abandoned: session ended")
	ErrNoGateway        = errors.New("no persistence gateway configured")
)

// ErrorCode identifies the taxonomy class of a SessionError.
type ErrorCode string

const (
	CodeValidation             ErrorCode = "VALIDATION"
	CodeInvalidState           ErrorCode = "INVALID_STATE"
	CodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	CodePersistence            ErrorCode = "PERSISTENCE"
	CodeNotFound               ErrorCode = "NOT_FOUND"
)

var codeSentinels = map[ErrorCode]error{
	CodeValidation:             ErrValidation,
	CodeInvalidState:           ErrInvalidState,
	CodeConcurrentModification: ErrConcurrentModification,
	CodePersistence:            ErrPersistence,
	CodeNotFound:               ErrNotFound,
}

// SessionError carries the taxonomy code plus operation context.
type SessionError struct {
	Code      ErrorCode
	Message   string
	Cause     error
	SessionID string
	Operation string
}

// NewSessionError creates a coded error.
func NewSessionError(code ErrorCode, op, sessionID, message string, cause error) *SessionError {
	return &SessionError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		SessionID: sessionID,
		Operation: op,
	}
}

func (e *SessionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = codeSentinels[e.Code].Error()
	}
	if e.Operation != "" {
		msg = e.Operation + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// Is matches the taxonomy sentinel for e.Code.
func (e *SessionError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

func validationError(op, sessionID string, cause error) error {
	return NewSessionError(CodeValidation, op, sessionID, "", cause)
}

func invalidStateError(op, sessionID string, status Status) error {
	return NewSessionError(CodeInvalidState, op, sessionID,
		fmt.Sprintf("not permitted while %s", status), nil)
}

// persistenceError wraps cause unless a gateway already classified it.
func persistenceError(op, sessionID string, cause error) error {
	var se *SessionError
	if errors.As(cause, &se) && se.Code == CodePersistence {
		return cause
	}
	return NewSessionError(CodePersistence, op, sessionID, "", cause)
}

// NotFoundError builds the error a Gateway returns for an unknown session id.
func NotFoundError(sessionID string) error {
	return NewSessionError(CodeNotFound, "load", sessionID,
		fmt.Sprintf("session %q not found", sessionID), nil)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsConcurrentModification reports whether err is a ConcurrentModificationError.
func IsConcurrentModification(err error) bool { return errors.Is(err, ErrConcurrentModification) }

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool { return errors.Is(err, ErrPersistence) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CodeOf returns the taxonomy code of err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
