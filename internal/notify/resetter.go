package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// errorPrefix marks a failed reset reply.
const errorPrefix = "error:"

// ResetRequest is the body of a test-data reset request.
type ResetRequest struct {
	SessionID   string    `json:"session_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NATSResetter signals the test-data collaborator over NATS request/reply.
// An empty reply is an acknowledgement; a reply starting with "error:" is a
// failure reported by the collaborator.
type NATSResetter struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	logger  *zap.Logger
}

// ResetterOption configures a NATSResetter.
type ResetterOption func(*NATSResetter)

// WithRequestTimeout bounds each reset request independently of the
// caller's context. Zero leaves the caller's deadline in charge.
func WithRequestTimeout(d time.Duration) ResetterOption {
	return func(r *NATSResetter) { r.timeout = d }
}

// NewNATSResetter creates a resetter publishing on subject (DefaultResetSubject when empty).
func NewNATSResetter(nc *nats.Conn, subject string, logger *zap.Logger, opts ...ResetterOption) *NATSResetter {
	if subject == "" {
		subject = DefaultResetSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &NATSResetter{nc: nc, subject: subject, logger: logger.Named("notify")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResetTestData sends a reset request and waits for the reply, the request
// timeout or ctx, whichever comes first.
func (r *NATSResetter) ResetTestData(ctx context.Context, sessionID string) error {
	if r.nc == nil {
		return ErrNotConnected
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	data, err := json.Marshal(ResetRequest{SessionID: sessionID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal reset request: %w", err)
	}
	msg, err := r.nc.RequestWithContext(ctx, r.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no test-data collaborator on %s: %w", r.subject, err)
		}
		return fmt.Errorf("reset request: %w", err)
	}
	if reply := strings.TrimSpace(string(msg.Data)); strings.HasPrefix(reply, errorPrefix) {
		return fmt.Errorf("test-data reset rejected: %s", strings.TrimSpace(strings.TrimPrefix(reply, errorPrefix)))
	}
	r.logger.Debug("test data reset acknowledged",
		zap.String("session_id", sessionID),
		zap.String("subject", r.subject),
	)
	return nil
}

// ResetHandler performs a reset on behalf of a collaborator service.
type ResetHandler func(ctx context.Context, req ResetRequest) error

// ServeResets answers reset requests on subject with handler. It is the
// collaborator side of NATSResetter, used by fixture services and tests.
func ServeResets(nc *nats.Conn, subject string, timeout time.Duration, handler ResetHandler) (*nats.Subscription, error) {
	if nc == nil {
		return nil, ErrNotConnected
	}
	if subject == "" {
		subject = DefaultResetSubject
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var req ResetRequest
		reply := []byte{}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			reply = []byte(errorPrefix + " malformed request: " + err.Error())
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := handler(ctx, req)
			cancel()
			if err != nil {
				reply = []byte(errorPrefix + " " + err.Error())
			}
		}
		_ = msg.Respond(reply)
	})
}

var _ session.TestDataResetter = (*NATSResetter)(nil)
