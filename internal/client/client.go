// Package client is a typed Go client for the verifyd session API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	vhttp "github.com/fyrsmithlabs/verifyd/internal/http"
	"github.com/fyrsmithlabs/verifyd/internal/persistence"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// DefaultBaseURL matches the daemon's default listen address.
const DefaultBaseURL = "http://localhost:8085"

const maxResponseSize = 4 << 20

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Session is set when the server reports state that changed despite
	// the error, as for a restart whose test-data reset failed.
	Session *session.Projection
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError with code.
func IsCode(err error, code session.ErrorCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == string(code)
}

// Client talks to one verifyd server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create starts a session from a plan.
func (c *Client) Create(ctx context.Context, featureName string, checkpoints []session.Checkpoint) (session.Projection, error) {
	var out session.Projection
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", vhttp.CreateRequest{FeatureName: featureName, Checkpoints: checkpoints}, &out)
	return out, err
}

// List returns every live session.
func (c *Client) List(ctx context.Context) ([]session.Projection, error) {
	var out vhttp.ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Get returns the current projection of id.
func (c *Client) Get(ctx context.Context, id string) (session.Projection, error) {
	var out session.Projection
	err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &out)
	return out, err
}

// CompletePreFlight submits pre-flight answers.
func (c *Client) CompletePreFlight(ctx context.Context, id string, answers map[string]string) (session.Projection, error) {
	return c.mutate(ctx, id, "preflight", vhttp.PreFlightRequest{Answers: answers})
}

// Approve passes the current checkpoint.
func (c *Client) Approve(ctx context.Context, id, notes string) (session.Projection, error) {
	return c.mutate(ctx, id, "approve", vhttp.NotesRequest{Notes: notes})
}

// Reject records feedback against the current checkpoint.
func (c *Client) Reject(ctx context.Context, id string, in session.FeedbackInput) (session.Projection, error) {
	return c.mutate(ctx, id, "reject", in)
}

// ResolveBlockers clears the blocker set.
func (c *Client) ResolveBlockers(ctx context.Context, id string) (session.Projection, error) {
	return c.mutate(ctx, id, "resolve", nil)
}

// Restart returns the session to pre-flight. On a failed test-data reset
// the returned projection is the committed restart and err is an *APIError.
func (c *Client) Restart(ctx context.Context, id string, resetTestData bool) (session.Projection, error) {
	proj, err := c.mutate(ctx, id, "restart", vhttp.RestartRequest{ResetTestData: resetTestData})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Session != nil {
		return *apiErr.Session, err
	}
	return proj, err
}

// Save persists a snapshot.
func (c *Client) Save(ctx context.Context, id, notes string) (session.SaveResult, error) {
	var out session.SaveResult
	err := c.do(ctx, http.MethodPost, sessionPath(id, "save"), vhttp.NotesRequest{Notes: notes}, &out)
	return out, err
}

// End terminates the session.
func (c *Client) End(ctx context.Context, id string) (session.Projection, error) {
	return c.mutate(ctx, id, "end", nil)
}

// Resume reloads the session from its last save.
func (c *Client) Resume(ctx context.Context, id string) (session.Projection, error) {
	return c.mutate(ctx, id, "resume", nil)
}

// FeedbackForm returns the rejection form schema.
func (c *Client) FeedbackForm(ctx context.Context, id string) (session.FormStructure, error) {
	var out session.FormStructure
	err := c.do(ctx, http.MethodGet, sessionPath(id, "feedback-form"), nil, &out)
	return out, err
}

// Snapshots lists saved snapshots of the session, newest first. A limit of
// zero lets the server pick its default page size.
func (c *Client) Snapshots(ctx context.Context, id string, limit int) ([]persistence.SnapshotInfo, error) {
	path := sessionPath(id, "snapshots")
	if limit != 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out vhttp.SnapshotsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Snapshots, nil
}

// Health returns the server health report.
func (c *Client) Health(ctx context.Context) (vhttp.HealthResponse, error) {
	var out vhttp.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) mutate(ctx context.Context, id, op string, body interface{}) (session.Projection, error) {
	var out session.Projection
	err := c.do(ctx, http.MethodPost, sessionPath(id, op), body, &out)
	return out, err
}

func sessionPath(id, op string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	if op != "" {
		p += "/" + op
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body vhttp.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return &APIError{StatusCode: status, Code: "UNKNOWN", Message: strings.TrimSpace(string(data))}
	}
	return &APIError{
		StatusCode: status,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
		Session:    body.Session,
	}
}
