package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/verifyd/internal/session"

// Metrics provides OpenTelemetry metrics for the session package.
type Metrics struct {
	operationsTotal  metric.Int64Counter
	approvalsTotal   metric.Int64Counter
	rejectionsTotal  metric.Int64Counter
	blockedTotal     metric.Int64Counter
	completedTotal   metric.Int64Counter
	openSessions     metric.Int64UpDownCounter
	saveDuration     metric.Float64Histogram
	persistFailTotal metric.Int64Counter

	initialized bool
}

// NewMetrics creates a new Metrics instance with the provided meter.
// If meter is nil, uses the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.operationsTotal, err = meter.Int64Counter(
		"verifyd.session.operations.total",
		metric.WithDescription("Session operations by name and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.approvalsTotal, err = meter.Int64Counter(
		"verifyd.session.checkpoints.approved.total",
		metric.WithDescription("Checkpoints approved"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"verifyd.session.checkpoints.rejected.total",
		metric.WithDescription("Checkpoints rejected, by priority and category"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, err
	}

	m.blockedTotal, err = meter.Int64Counter(
		"verifyd.session.blocked.total",
		metric.WithDescription("Transitions into BLOCKED"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.completedTotal, err = meter.Int64Counter(
		"verifyd.session.completed.total",
		metric.WithDescription("Sessions that exhausted their checkpoint queue"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.openSessions, err = meter.Int64UpDownCounter(
		"verifyd.session.open.count",
		metric.WithDescription("Sessions not yet ended"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.saveDuration, err = meter.Float64Histogram(
		"verifyd.session.save.duration.seconds",
		metric.WithDescription("Duration of persistence gateway saves"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.persistFailTotal, err = meter.Int64Counter(
		"verifyd.session.persistence.failures.total",
		metric.WithDescription("Failed collaborator hand-offs (save or test-data reset)"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordOperation counts one Store operation. session_id is omitted to bound cardinality.
func (m *Metrics) RecordOperation(ctx context.Context, op string, err error) {
	if m == nil || !m.initialized {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// RecordApproved counts an approval and a completion if the queue was exhausted.
func (m *Metrics) RecordApproved(ctx context.Context, status Status) {
	if m == nil || !m.initialized {
		return
	}
	m.approvalsTotal.Add(ctx, 1)
	if status == StatusCompleted {
		m.completedTotal.Add(ctx, 1)
	}
}

// RecordRejected counts a rejection.
func (m *Metrics) RecordRejected(ctx context.Context, item FeedbackItem, status Status) {
	if m == nil || !m.initialized {
		return
	}
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("priority", string(item.Priority)),
		attribute.String("category", string(item.Category)),
	))
	switch status {
	case StatusBlocked:
		m.blockedTotal.Add(ctx, 1)
	case StatusCompleted:
		m.completedTotal.Add(ctx, 1)
	}
}

// RecordCompleted counts a completion reached outside approve/reject.
func (m *Metrics) RecordCompleted(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.completedTotal.Add(ctx, 1)
}

// RecordOpened increments the open session gauge.
func (m *Metrics) RecordOpened(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.openSessions.Add(ctx, 1)
}

// RecordEnded decrements the open session gauge.
func (m *Metrics) RecordEnded(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.openSessions.Add(ctx, -1)
}

// RecordSave records a gateway round trip.
func (m *Metrics) RecordSave(ctx context.Context, duration time.Duration, err error) {
	if m == nil || !m.initialized {
		return
	}
	m.saveDuration.Record(ctx, duration.Seconds())
	if err != nil {
		m.persistFailTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("collaborator", "gateway")))
	}
}

// RecordResetFailure counts a failed test-data reset.
func (m *Metrics) RecordResetFailure(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.persistFailTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("collaborator", "test_data")))
}

// Tracer returns a tracer for the session package.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// StartSpan starts a new span with session context.
func StartSpan(ctx context.Context, name, sessionID string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	allOpts := append([]trace.SpanStartOption{
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	}, opts...)
	return Tracer().Start(ctx, name, allOpts...)
}

// endSpan records err (if any) and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
