package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/verifyd/internal/config"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"enabled defaults", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint is required"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol must be"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure connections"},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com:4318"
			c.Protocol = ProtocolHTTP
			c.Insecure = false
		}, ""},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, ""},
		{"rate", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 }, "sampling.rate"},
		{"export interval", func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 }, "export_interval"},
		{"shutdown", func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	assert.ErrorContains(t, err, "invalid telemetry config")
	assert.Nil(t, tel)
}

func TestNew_EnabledInstallsGlobals(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = false
	cfg.Shutdown.Timeout = config.Duration(time.Second)
	exporter := tracetest.NewInMemoryExporter()

	tel, err := New(context.Background(), cfg, WithSpanExporter(exporter))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	// Session spans go through the global provider.
	_, span := session.StartSpan(context.Background(), "session.approve", "vs_1")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "session.approve", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("session.id", "vs_1"))

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
}

func TestTestTelemetry_SessionMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	m, err := session.NewMetrics(tt.Meter(session.InstrumentationName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordApproved(ctx, session.StatusTesting)
	m.RecordApproved(ctx, session.StatusCompleted)

	assert.Equal(t, int64(2), tt.Counter(t, "verifyd.session.checkpoints.approved.total"))
	assert.Equal(t, int64(-1), tt.Counter(t, "verifyd.session.nonexistent"))

	_, span := tt.Tracer("test").Start(ctx, "op")
	span.SetAttributes(attribute.Int("checkpoint.index", 3))
	span.End()
	tt.AssertSpanAttribute(t, "op", "checkpoint.index", int64(3))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased")
}
