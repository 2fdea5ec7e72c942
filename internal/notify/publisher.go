package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Publisher forwards session projections to NATS as JSON events.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a Publisher. prefix defaults to DefaultUpdatePrefix.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultUpdatePrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger.Named("notify")}
}

// Subject returns the update subject for sessionID.
func (p *Publisher) Subject(sessionID string) string {
	return fmt.Sprintf("%s.%s.updated", p.prefix, sessionID)
}

// Attach subscribes the publisher to store and returns the unsubscribe func.
func (p *Publisher) Attach(store *session.Store) func() {
	return store.Subscribe(p.Observe)
}

// Observe is a session.Observer. Publish failures are logged because
// observers cannot fail a committed transition.
func (p *Publisher) Observe(proj session.Projection) {
	if err := p.Publish(proj); err != nil {
		p.logger.Warn("failed to publish session update",
			zap.String("session_id", proj.Session.ID),
			zap.Uint64("version", proj.Version),
			zap.Error(err),
		)
	}
}

// Publish sends proj on its session subject.
func (p *Publisher) Publish(proj session.Projection) error {
	if p.nc == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(proj)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	if err := p.nc.Publish(p.Subject(proj.Session.ID), data); err != nil {
		return fmt.Errorf("publish session update: %w", err)
	}
	return nil
}
