package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures log entries for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a logger that records every entry at debug level and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{Logger: Wrap(zap.New(core)), observed: observed}
}

// All returns every captured entry.
func (tl *TestLogger) All() []observer.LoggedEntry {
	return tl.observed.All()
}

// FilterMessage returns entries with exactly msg.
func (tl *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return tl.observed.FilterMessage(msg)
}

// AssertLogged fails t unless an entry with level and msg was captured.
func (tl *TestLogger) AssertLogged(t testing.TB, level zapcore.Level, msg string) {
	t.Helper()
	for _, e := range tl.observed.All() {
		if e.Level == level && e.Message == msg {
			return
		}
	}
	t.Errorf("expected %s log %q, got %d entries", level, msg, tl.observed.Len())
}

// AssertField fails t unless the entry with msg carries key=value.
func (tl *TestLogger) AssertField(t testing.TB, msg, key string, value interface{}) {
	t.Helper()
	for _, e := range tl.observed.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && v == value {
			return
		}
	}
	t.Errorf("expected log %q with %s=%v", msg, key, value)
}
