// Package tui is a terminal front end for one verification session.
package tui

import (
	"context"

	"github.com/fyrsmithlabs/verifyd/internal/client"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Backend is the set of session operations the UI drives. Every call
// returns a projection; the UI never inspects session internals.
type Backend interface {
	Projection(ctx context.Context) (session.Projection, error)
	CompletePreFlight(ctx context.Context, answers map[string]string) (session.Projection, error)
	Approve(ctx context.Context, notes string) (session.Projection, error)
	Reject(ctx context.Context, in session.FeedbackInput) (session.Projection, error)
	ResolveBlockers(ctx context.Context) (session.Projection, error)
	Restart(ctx context.Context, resetTestData bool) (session.Projection, error)
	Save(ctx context.Context, notes string) (session.SaveResult, error)
	End(ctx context.Context) (session.Projection, error)
	FeedbackForm(ctx context.Context) (session.FormStructure, error)
}

// StoreBackend drives an in-process Store.
type StoreBackend struct {
	Store *session.Store
}

// Projection returns the store's current projection. It never fails.
func (b StoreBackend) Projection(context.Context) (session.Projection, error) {
	return b.Store.Projection(), nil
}

// CompletePreFlight records the pre-flight answers and starts testing.
func (b StoreBackend) CompletePreFlight(ctx context.Context, answers map[string]string) (session.Projection, error) {
	return b.Store.CompletePreFlight(ctx, answers)
}

// Approve passes the current checkpoint.
func (b StoreBackend) Approve(ctx context.Context, notes string) (session.Projection, error) {
	return b.Store.ApproveCheckpoint(ctx, notes)
}

// Reject records feedback against the current checkpoint.
func (b StoreBackend) Reject(ctx context.Context, in session.FeedbackInput) (session.Projection, error) {
	return b.Store.RejectCheckpoint(ctx, in)
}

// ResolveBlockers clears the open blockers and resumes testing.
func (b StoreBackend) ResolveBlockers(ctx context.Context) (session.Projection, error) {
	return b.Store.ResolveBlockers(ctx)
}

// Restart returns the session to pre-flight, optionally resetting test data.
func (b StoreBackend) Restart(ctx context.Context, resetTestData bool) (session.Projection, error) {
	return b.Store.RestartSession(ctx, resetTestData)
}

// Save snapshots the session through the store's gateway.
func (b StoreBackend) Save(ctx context.Context, notes string) (session.SaveResult, error) {
	return b.Store.SaveProgress(ctx, notes)
}

// End ends the session.
func (b StoreBackend) End(ctx context.Context) (session.Projection, error) {
	return b.Store.EndSession(ctx)
}

// FeedbackForm returns the rejection form schema.
func (b StoreBackend) FeedbackForm(ctx context.Context) (session.FormStructure, error) {
	return b.Store.FeedbackFormStructure(ctx)
}

var _ Backend = StoreBackend{}

// RemoteBackend drives a session held by a verifyd server.
type RemoteBackend struct {
	Client    *client.Client
	SessionID string
}

// Projection fetches the session's current projection from the server.
func (b RemoteBackend) Projection(ctx context.Context) (session.Projection, error) {
	return b.Client.Get(ctx, b.SessionID)
}

// CompletePreFlight posts the pre-flight answers.
func (b RemoteBackend) CompletePreFlight(ctx context.Context, answers map[string]string) (session.Projection, error) {
	return b.Client.CompletePreFlight(ctx, b.SessionID, answers)
}

// Approve posts an approval of the current checkpoint.
func (b RemoteBackend) Approve(ctx context.Context, notes string) (session.Projection, error) {
	return b.Client.Approve(ctx, b.SessionID, notes)
}

// Reject posts feedback against the current checkpoint.
func (b RemoteBackend) Reject(ctx context.Context, in session.FeedbackInput) (session.Projection, error) {
	return b.Client.Reject(ctx, b.SessionID, in)
}

// ResolveBlockers asks the server to clear the open blockers.
func (b RemoteBackend) ResolveBlockers(ctx context.Context) (session.Projection, error) {
	return b.Client.ResolveBlockers(ctx, b.SessionID)
}

// Restart asks the server to restart the session.
func (b RemoteBackend) Restart(ctx context.Context, resetTestData bool) (session.Projection, error) {
	return b.Client.Restart(ctx, b.SessionID, resetTestData)
}

// Save asks the server to snapshot the session.
func (b RemoteBackend) Save(ctx context.Context, notes string) (session.SaveResult, error) {
	return b.Client.Save(ctx, b.SessionID, notes)
}

// End asks the server to end the session.
func (b RemoteBackend) End(ctx context.Context) (session.Projection, error) {
	return b.Client.End(ctx, b.SessionID)
}

// FeedbackForm fetches the rejection form schema.
func (b RemoteBackend) FeedbackForm(ctx context.Context) (session.FormStructure, error) {
	return b.Client.FeedbackForm(ctx, b.SessionID)
}

var _ Backend = RemoteBackend{}
