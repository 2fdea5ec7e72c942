// Package notify connects sessions to NATS: test-data reset requests and
// projection update events.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/config"
	"github.com/fyrsmithlabs/verifyd/internal/logging"
)

const (
	// DefaultResetSubject is the request subject for test-data resets.
	DefaultResetSubject = "verifyd.testdata.reset"
	// DefaultUpdatePrefix prefixes per-session projection events.
	DefaultUpdatePrefix = "verifyd.session"
)

// ErrNotConnected is returned when a NATS connection is required but absent.
var ErrNotConnected = errors.New("nats: not connected")

// Config controls the NATS integration. Token and User/Password are
// mutually exclusive ways to authenticate; both may be left empty.
type Config struct {
	Enabled        bool            `koanf:"enabled"`
	URL            string          `koanf:"url"`
	Token          config.Secret   `koanf:"token"`
	User           string          `koanf:"user"`
	Password       config.Secret   `koanf:"password"`
	ResetSubject   string          `koanf:"reset_subject"`
	PublishUpdates bool            `koanf:"publish_updates"`
	RequestTimeout config.Duration `koanf:"request_timeout"`
}

// DefaultConfig returns a disabled configuration with sane values.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		ResetSubject:   DefaultResetSubject,
		RequestTimeout: config.Duration(5 * time.Second),
	}
}

// Validate checks an enabled configuration. A disabled one is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if strings.TrimSpace(c.URL) == "" {
		errs = append(errs, errors.New("url is required when enabled"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.Token.IsSet() && c.User != "" {
		errs = append(errs, errors.New("token and user are mutually exclusive"))
	}
	if c.Password.IsSet() && c.User == "" {
		errs = append(errs, errors.New("password requires user"))
	}
	return errors.Join(errs...)
}

// authOptions maps the configured credentials to nats options.
func (c Config) authOptions() []nats.Option {
	switch {
	case c.Token.IsSet():
		return []nats.Option{nats.Token(c.Token.Value())}
	case c.User != "":
		return []nats.Option{nats.UserInfo(c.User, c.Password.Value())}
	}
	return nil
}

// Connect dials NATS with the reconnect policy used by the daemon.
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append([]nats.Option{
		nats.Name("verifyd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}, cfg.authOptions()...)
	logger.Info("connecting to nats",
		zap.String("url", cfg.URL),
		zap.String("user", cfg.User),
		logging.Secret("token", cfg.Token),
		logging.Secret("password", cfg.Password),
	)
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}
