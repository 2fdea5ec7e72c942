package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/verifyd/internal/config"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T) *nats.Conn {
	t.Helper()
	srv := startTestNATSServer(t)
	cfg := DefaultConfig()
	cfg.URL = srv.ClientURL()
	nc, err := Connect(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func newStore(t *testing.T, opts ...session.Option) *session.Store {
	t.Helper()
	q, err := session.NewQueue([]session.Checkpoint{
		{ID: "a", Index: 1, Action: "open"},
		{ID: "b", Index: 2, Action: "submit"},
	})
	require.NoError(t, err)
	s, err := session.New(context.Background(), "notify", q, opts...)
	require.NoError(t, err)
	return s
}

func TestNATSResetter_Ack(t *testing.T) {
	nc := connect(t)
	got := make(chan ResetRequest, 1)
	sub, err := ServeResets(nc, "", time.Second, func(_ context.Context, req ResetRequest) error {
		got <- req
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	resetter := NewNATSResetter(nc, "", nil)
	require.NoError(t, resetter.ResetTestData(context.Background(), "vs_1"))

	req := <-got
	assert.Equal(t, "vs_1", req.SessionID)
	assert.False(t, req.RequestedAt.IsZero())
}

func TestNATSResetter_ErrorReply(t *testing.T) {
	nc := connect(t)
	sub, err := ServeResets(nc, "fixtures.reset", time.Second, func(context.Context, ResetRequest) error {
		return errors.New("database locked")
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	resetter := NewNATSResetter(nc, "fixtures.reset", nil)
	err = resetter.ResetTestData(context.Background(), "vs_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database locked")
}

func TestNATSResetter_NoResponders(t *testing.T) {
	nc := connect(t)
	resetter := NewNATSResetter(nc, "nobody.home", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := resetter.ResetTestData(ctx, "vs_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestNATSResetter_RequestTimeout(t *testing.T) {
	nc := connect(t)
	release := make(chan struct{})
	sub, err := ServeResets(nc, "slow.reset", time.Minute, func(ctx context.Context, _ ResetRequest) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		close(release)
		_ = sub.Unsubscribe()
	})

	resetter := NewNATSResetter(nc, "slow.reset", nil, WithRequestTimeout(50*time.Millisecond))
	start := time.Now()
	err = resetter.ResetTestData(context.Background(), "vs_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNATSResetter_NotConnected(t *testing.T) {
	err := NewNATSResetter(nil, "", nil).ResetTestData(context.Background(), "vs_1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNATSResetter_StoreRestart(t *testing.T) {
	nc := connect(t)
	resets := make(chan string, 1)
	sub, err := ServeResets(nc, "", time.Second, func(_ context.Context, req ResetRequest) error {
		resets <- req.SessionID
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	s := newStore(t, session.WithTestDataResetter(NewNATSResetter(nc, "", nil)))
	_, err = s.RestartSession(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, s.ID(), <-resets)
}

func TestPublisher_PublishesProjections(t *testing.T) {
	nc := connect(t)
	s := newStore(t)
	pub := NewPublisher(nc, "", nil)

	sub, err := nc.SubscribeSync(pub.Subject(s.ID()))
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	unsubscribe := pub.Attach(s)
	defer unsubscribe()

	ctx := context.Background()
	_, err = s.CompletePreFlight(ctx, nil)
	require.NoError(t, err)
	_, err = s.ApproveCheckpoint(ctx, "")
	require.NoError(t, err)

	for _, want := range []uint64{1, 2} {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		var proj session.Projection
		require.NoError(t, json.Unmarshal(msg.Data, &proj))
		assert.Equal(t, want, proj.Version)
		assert.Equal(t, s.ID(), proj.Session.ID)
	}
	assert.Equal(t, "verifyd.session."+s.ID()+".updated", pub.Subject(s.ID()))
}

func TestPublisher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := NewPublisher(nil, "", zap.New(core))

	pub.Observe(session.Projection{Session: session.Session{ID: "vs_1"}})
	entries := logs.FilterMessage("failed to publish session update").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "vs_1", entries[0].ContextMap()["session_id"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled ignores fields", func(c *Config) { c.URL = "" }, ""},
		{"enabled defaults", func(c *Config) { c.Enabled = true }, ""},
		{"blank url", func(c *Config) { c.Enabled = true; c.URL = " " }, "url is required"},
		{"zero timeout", func(c *Config) { c.Enabled = true; c.RequestTimeout = 0 }, "request_timeout must be positive"},
		{"token and user", func(c *Config) {
			c.Enabled = true
			c.Token = "t"
			c.User = "u"
		}, "mutually exclusive"},
		{"password without user", func(c *Config) { c.Enabled = true; c.Password = "p" }, "password requires user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConnect_Credentials(t *testing.T) {
	tests := []struct {
		name string
		opts natsserver.Options
		cfg  func(*Config)
	}{
		{
			name: "token",
			opts: natsserver.Options{Authorization: "s3cret-token"},
			cfg:  func(c *Config) { c.Token = config.Secret("s3cret-token") },
		},
		{
			name: "user and password",
			opts: natsserver.Options{Username: "verifyd", Password: "s3cret-pass"},
			cfg: func(c *Config) {
				c.User = "verifyd"
				c.Password = config.Secret("s3cret-pass")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.Host = "127.0.0.1"
			opts.Port = -1
			opts.NoLog = true
			opts.NoSigs = true
			srv, err := natsserver.NewServer(&opts)
			require.NoError(t, err)
			go srv.Start()
			require.True(t, srv.ReadyForConnections(5*time.Second))
			t.Cleanup(srv.Shutdown)

			cfg := DefaultConfig()
			cfg.Enabled = true
			cfg.URL = srv.ClientURL()
			tt.cfg(&cfg)
			require.NoError(t, cfg.Validate())

			core, logs := observer.New(zap.InfoLevel)
			nc, err := Connect(cfg, zap.New(core))
			require.NoError(t, err)
			t.Cleanup(nc.Close)
			require.NoError(t, nc.Flush())
			assert.True(t, nc.IsConnected())

			entries := logs.FilterMessage("connecting to nats").All()
			require.Len(t, entries, 1)
			dump := fmt.Sprint(entries[0].ContextMap())
			assert.NotContains(t, dump, "s3cret")
			assert.Contains(t, dump, "REDACTED")
		})
	}
}
