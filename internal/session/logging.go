package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Logger wraps zap.Logger with session-specific structured logging.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("session")}
}

// PreFlightCompleted logs the end of the pre-flight phase.
func (l *Logger) PreFlightCompleted(ctx context.Context, sessionID string, answers int, status Status) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields, zap.Int("answers", answers), zap.String("status", string(status)))
	l.logger.Info("pre-flight completed", fields...)
}

// CheckpointApproved logs a pass.
func (l *Logger) CheckpointApproved(ctx context.Context, sessionID string, cp Checkpoint, status Status) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields,
		zap.String("checkpoint_id", cp.ID),
		zap.Int("checkpoint_index", cp.Index),
		zap.String("status", string(status)),
	)
	l.logger.Info("checkpoint approved", fields...)
}

// CheckpointRejected logs a failure with its feedback classification.
func (l *Logger) CheckpointRejected(ctx context.Context, sessionID string, item FeedbackItem, status Status) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields,
		zap.String("checkpoint_id", item.CheckpointID),
		zap.Int("checkpoint_index", item.CheckpointIndex),
		zap.String("feedback_id", item.ID),
		zap.String("priority", string(item.Priority)),
		zap.String("category", string(item.Category)),
		zap.String("status", string(status)),
	)
	if item.IsBlocker() {
		l.logger.Warn("session blocked", fields...)
		return
	}
	l.logger.Info("checkpoint rejected", fields...)
}

// BlockersResolved logs the reopening of a blocked session.
func (l *Logger) BlockersResolved(ctx context.Context, sessionID string, resolved int, cursor int) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields, zap.Int("resolved", resolved), zap.Int("current_index", cursor))
	l.logger.Info("blockers resolved", fields...)
}

// Restarted logs a session restart.
func (l *Logger) Restarted(ctx context.Context, sessionID string, resetTestData bool) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields, zap.Bool("reset_test_data", resetTestData))
	l.logger.Info("session restarted", fields...)
}

// Saved logs a durable save.
func (l *Logger) Saved(ctx context.Context, sessionID, snapshotID string, duration time.Duration) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields, zap.String("snapshot_id", snapshotID), zap.Duration("duration", duration))
	l.logger.Info("progress saved", fields...)
}

// Ended logs session termination.
func (l *Logger) Ended(ctx context.Context, sessionID string, summary Summary, abandonedSaves int) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID)
	fields = append(fields,
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("blockers", summary.Blockers),
		zap.Int("nice_to_have", summary.NiceToHave),
		zap.Int("abandoned_saves", abandonedSaves),
	)
	l.logger.Info("session ended", fields...)
}

// Error logs an error with context.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	allFields := l.traceFields(ctx)
	allFields = append(allFields, zap.Error(err))
	allFields = append(allFields, fields...)
	l.logger.Error(msg, allFields...)
}

// Debug logs a debug message with context.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	allFields := l.traceFields(ctx)
	allFields = append(allFields, fields...)
	l.logger.Debug(msg, allFields...)
}

func (l *Logger) baseFields(ctx context.Context, sessionID string) []zap.Field {
	fields := []zap.Field{zap.String("session_id", sessionID)}
	return append(fields, l.traceFields(ctx)...)
}

// traceFields extracts trace context from the context.
func (l *Logger) traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	sc := span.SpanContext()
	fields := []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
	if sc.IsSampled() {
		fields = append(fields, zap.Bool("trace_sampled", true))
	}
	return fields
}
