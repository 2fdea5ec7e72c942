package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	vhttp "github.com/fyrsmithlabs/verifyd/internal/http"
	"github.com/fyrsmithlabs/verifyd/internal/logging"
	"github.com/fyrsmithlabs/verifyd/internal/notify"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/schema"
	"github.com/fyrsmithlabs/verifyd/internal/session"
	"github.com/fyrsmithlabs/verifyd/internal/telemetry"
)

// app holds the wired daemon and the resources it must release.
type app struct {
	cfg       *Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	gateway   persistence.Gateway
	nc        *nats.Conn
	schema    *schema.File
	registry  *session.Registry
	server    *vhttp.Server
}

// newApp initializes dependencies in order: telemetry, logger, gateway,
// NATS, schema provider, registry and HTTP server. On failure everything
// already opened is closed.
func newApp(ctx context.Context, cfg *Config) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.logger, err = logging.NewLogger(&cfg.Logging, a.telemetry.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := a.logger.Underlying()

	a.gateway, err = persistence.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	metrics, err := session.NewMetrics(a.telemetry.Meter(session.InstrumentationName))
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}
	opts := []session.Option{
		session.WithConfig(&cfg.Session),
		session.WithLogger(zl),
		session.WithMetrics(metrics),
	}

	fields, err := a.fieldOptions(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, session.WithFieldOptions(fields))

	var publisher *notify.Publisher
	if cfg.NATS.Enabled {
		a.nc, err = notify.Connect(cfg.NATS, zl)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithTestDataResetter(notify.NewNATSResetter(a.nc, cfg.NATS.ResetSubject, zl,
			notify.WithRequestTimeout(cfg.NATS.RequestTimeout.Duration()))))
		if cfg.NATS.PublishUpdates {
			publisher = notify.NewPublisher(a.nc, notify.DefaultUpdatePrefix, zl)
		}
	}

	a.registry = session.NewRegistry(a.gateway, opts...)
	if publisher != nil {
		a.registry.OnStore(func(s *session.Store) { publisher.Attach(s) })
	}

	serverOpts := []vhttp.Option{
		vhttp.WithHealthCheck("telemetry", a.telemetryHealth),
		vhttp.WithSnapshotHistory(a.gateway),
	}
	if a.nc != nil {
		serverOpts = append(serverOpts, vhttp.WithHealthCheck("nats", a.natsHealth))
	}
	a.server, err = vhttp.NewServer(a.registry, a.logger, &cfg.Server, serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http server: %w", err)
	}

	a.logger.Info(ctx, "verifyd initialized",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("storage", string(cfg.Storage.Driver)),
		zap.Bool("nats", a.nc != nil),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
	)
	return a, nil
}

// fieldOptions builds the schema provider: a watched file when configured,
// the static list otherwise.
func (a *app) fieldOptions(ctx context.Context) (session.FieldOptionProvider, error) {
	if path := a.cfg.Schema.FieldsFile; path != "" {
		f, err := schema.NewFile(path, a.logger.Underlying())
		if err != nil {
			return nil, fmt.Errorf("failed to load schema file: %w", err)
		}
		a.schema = f
		if err := f.Watch(ctx); err != nil {
			a.logger.Warn(ctx, "schema file will not be reloaded", zap.Error(err))
		}
		return f, nil
	}
	static, err := schema.NewStatic(a.cfg.Schema.Fields)
	if err != nil {
		return nil, fmt.Errorf("invalid schema fields: %w", err)
	}
	return static, nil
}

func (a *app) telemetryHealth(context.Context) error {
	h := a.telemetry.Health()
	if h.Degraded {
		return fmt.Errorf("degraded: %s", strings.Join(h.Reasons, "; "))
	}
	return nil
}

func (a *app) natsHealth(context.Context) error {
	if status := a.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats %s", status)
	}
	return nil
}

// run serves until ctx is cancelled, then shuts the server down.
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutdown signal received")
	if err := a.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.schema != nil {
		errs = append(errs, a.schema.Close())
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
			errs = append(errs, err)
		}
	}
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Telemetry.Shutdown.Timeout.Duration())
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
		cancel()
	}
	if a.logger != nil {
		if err := errors.Join(errs...); err != nil {
			a.logger.Warn(ctx, "errors during shutdown", zap.Error(err))
		}
		_ = a.logger.Sync()
	}
}
