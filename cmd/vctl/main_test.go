package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/verifyd/internal/client"
	vhttp "github.com/fyrsmithlabs/verifyd/internal/http"
	"github.com/fyrsmithlabs/verifyd/internal/logging"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/schema"
	"github.com/fyrsmithlabs/verifyd/internal/session"
	"github.com/fyrsmithlabs/verifyd/internal/tui"
)

const planYAML = `feature_name: login
checkpoints:
  - id: open
    action: open the login page
    expected_result: form shows
  - id: submit
    action: submit valid credentials
    expected_result: dashboard loads
`

func writePlan(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "login.yaml")
	require.NoError(t, os.WriteFile(path, []byte(planYAML), 0o600))
	return path
}

func startServer(t *testing.T) string {
	t.Helper()
	fields, err := schema.NewStatic([]session.FieldOption{{Value: "email", Label: "Email"}})
	require.NoError(t, err)
	gw := persistence.NewMemory()
	reg := session.NewRegistry(gw, session.WithFieldOptions(fields))
	cfg := vhttp.NewDefaultConfig()
	cfg.RateLimit.Enabled = false
	srv, err := vhttp.NewServer(reg, logging.NewNop(), cfg, vhttp.WithSnapshotHistory(gw))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// vctl runs the CLI against server and returns stdout.
func vctl(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func createSession(t *testing.T, server string) string {
	t.Helper()
	out, err := vctl(t, server, "--json", "create", "--plan", writePlan(t))
	require.NoError(t, err)
	var proj session.Projection
	require.NoError(t, json.Unmarshal([]byte(out), &proj))
	require.NotEmpty(t, proj.Session.ID)
	return proj.Session.ID
}

func TestCLI_Workflow(t *testing.T) {
	server := startServer(t)
	id := createSession(t, server)

	out, err := vctl(t, server, "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, "PRE_FLIGHT")
	assert.Contains(t, out, "login")

	out, err = vctl(t, server, "preflight", id, "--answer", "env=staging", "--answer", "browser=firefox")
	require.NoError(t, err)
	assert.Contains(t, out, "TESTING")
	assert.Contains(t, out, "env=staging")
	assert.Contains(t, out, "#1 open the login page")

	out, err = vctl(t, server, "reject", id, "--issue", "button dead", "--expected", "form submits",
		"--priority", "blocker", "--category", "ui", "--field", "email")
	require.NoError(t, err)
	assert.Contains(t, out, "BLOCKED")
	assert.Contains(t, out, "[ui] #1 button dead -> form submits (field email)")

	_, err = vctl(t, server, "approve", id)
	require.Error(t, err)
	assert.True(t, client.IsCode(err, session.CodeInvalidState))

	out, err = vctl(t, server, "resolve", id)
	require.NoError(t, err)
	assert.Contains(t, out, "TESTING")

	_, err = vctl(t, server, "approve", id, "--notes", "ok")
	require.NoError(t, err)

	out, err = vctl(t, server, "save", id, "--notes", "halfway")
	require.NoError(t, err)
	assert.Contains(t, out, "saved snapshot")

	out, err = vctl(t, server, "approve", id)
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")

	out, err = vctl(t, server, "snapshots", id)
	require.NoError(t, err)
	assert.Contains(t, out, "SNAPSHOT")
	assert.Contains(t, out, "halfway")
	assert.Contains(t, out, "TESTING")

	out, err = vctl(t, server, "--json", "snapshots", id, "--limit", "1")
	require.NoError(t, err)
	var snaps []persistence.SnapshotInfo
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "halfway", snaps[0].Notes)

	out, err = vctl(t, server, "resume", id)
	require.NoError(t, err)
	assert.Contains(t, out, "TESTING")

	out, err = vctl(t, server, "end", id)
	require.NoError(t, err)
	assert.Contains(t, out, "ENDED")

	out, err = vctl(t, server, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestCLI_RestartAndForm(t *testing.T) {
	server := startServer(t)
	id := createSession(t, server)

	_, err := vctl(t, server, "preflight", id)
	require.NoError(t, err)
	out, err := vctl(t, server, "restart", id, "--reset-test-data")
	require.NoError(t, err)
	assert.Contains(t, out, "PRE_FLIGHT")

	out, err = vctl(t, server, "form", id)
	require.NoError(t, err)
	assert.Contains(t, out, "email\tEmail")
	assert.Contains(t, out, "blocker")
	assert.Contains(t, out, "accessibility")

	out, err = vctl(t, server, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "status: ok (1 live sessions)")
}

func TestCLI_Errors(t *testing.T) {
	server := startServer(t)

	_, err := vctl(t, server, "status", "missing")
	assert.True(t, client.IsCode(err, session.CodeNotFound))

	_, err = vctl(t, server, "preflight", "x", "--answer", "novalue")
	assert.ErrorContains(t, err, "must be key=value")

	_, err = vctl(t, server, "create")
	assert.ErrorContains(t, err, "required flag")

	id := createSession(t, server)
	_, err = vctl(t, server, "preflight", id)
	require.NoError(t, err)
	_, err = vctl(t, server, "reject", id, "--issue", "x")
	assert.True(t, client.IsCode(err, session.CodeValidation))
}

func TestRunOptions_LocalStoreResume(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "local.db")

	backend, closeFn, err := runOptions{planPath: writePlan(t), dbPath: db}.backend(ctx, &cli{})
	require.NoError(t, err)
	sb, ok := backend.(tui.StoreBackend)
	require.True(t, ok)
	_, err = sb.CompletePreFlight(ctx, nil)
	require.NoError(t, err)
	_, err = sb.Approve(ctx, "")
	require.NoError(t, err)
	_, err = sb.Save(ctx, "")
	require.NoError(t, err)
	id := sb.Store.ID()
	closeFn()

	backend, closeFn, err = runOptions{resumeID: id, dbPath: db}.backend(ctx, &cli{})
	require.NoError(t, err)
	defer closeFn()
	proj, err := backend.Projection(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTesting, proj.Status())
	assert.Equal(t, 1, proj.Progress.Current)

	_, _, err = runOptions{resumeID: id}.backend(ctx, &cli{})
	assert.ErrorContains(t, err, "--resume requires --db")
}

func TestRunOptions_Remote(t *testing.T) {
	backend, _, err := runOptions{remoteID: "abc"}.backend(context.Background(), &cli{server: "http://localhost:1"})
	require.NoError(t, err)
	rb, ok := backend.(tui.RemoteBackend)
	require.True(t, ok)
	assert.Equal(t, "abc", rb.SessionID)
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, session.Projection{
		Session: session.Session{ID: "s1", Status: session.StatusEnded, Summary: session.Summary{Passed: 2, Failed: 1, NiceToHave: 1}},
		Feedback: []session.FeedbackItem{
			{CheckpointIndex: 2, Issue: "slow", Expected: "fast", Category: session.CategoryPerformance},
		},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "session s1 ENDED: passed=2 failed=1 blockers=0 nice_to_have=1", lines[0])
	assert.Equal(t, "  - [performance] #2 slow -> fast", lines[1])

	buf.Reset()
	printOutcome(&buf, session.Projection{})
	assert.Empty(t, buf.String())
}

func TestParseAnswerFlags(t *testing.T) {
	got, err := parseAnswers([]string{"env=staging", " user = a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "staging", "user": " a=b"}, got)

	_, err = parseAnswers([]string{"=x"})
	assert.Error(t, err)
}
