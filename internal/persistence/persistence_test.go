package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// buildSnapshot drives a real session into BLOCKED with resolved history.
func buildSnapshot(t *testing.T) session.Snapshot {
	t.Helper()
	ctx := context.Background()
	q, err := session.NewQueue([]session.Checkpoint{
		{ID: "open", Index: 1, Action: "Open the form", ExpectedResult: "Form renders"},
		{ID: "submit", Index: 2, Action: "Submit", ExpectedResult: "Saved", Element: "#submit"},
		{ID: "list", Index: 3, Action: "Open the list", ExpectedResult: "Row appears"},
	})
	require.NoError(t, err)
	s, err := session.New(ctx, "profile form", q)
	require.NoError(t, err)

	_, err = s.CompletePreFlight(ctx, map[string]string{"browser": "firefox"})
	require.NoError(t, err)
	_, err = s.RejectCheckpoint(ctx, session.FeedbackInput{Issue: "slow", Expected: "fast", Priority: session.PriorityBlocker})
	require.NoError(t, err)
	_, err = s.ResolveBlockers(ctx)
	require.NoError(t, err)
	_, err = s.ApproveCheckpoint(ctx, "ok now")
	require.NoError(t, err)
	_, err = s.RejectCheckpoint(ctx, session.FeedbackInput{Field: "name", Issue: "typo", Expected: "Name", Priority: session.PriorityBlocker, Category: session.CategoryUI})
	require.NoError(t, err)
	return s.Snapshot("end of day")
}

func gateways(t *testing.T) map[string]Gateway {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "verifyd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Gateway{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestGateway_RoundTrip(t *testing.T) {
	for name, gw := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			snap := buildSnapshot(t)
			require.NoError(t, gw.Save(ctx, snap))

			got, err := gw.Load(ctx, snap.SessionID)
			require.NoError(t, err)
			assert.Equal(t, snap, got)
			assert.Equal(t, snap.Blockers(), got.Blockers())
			assert.Equal(t, session.StatusBlocked, got.Session.Status)
			assert.Equal(t, 1, got.Session.CurrentIndex)
		})
	}
}

func TestGateway_LoadReturnsLatest(t *testing.T) {
	for name, gw := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := buildSnapshot(t)
			second := first.Clone()
			second.SnapshotID = first.SnapshotID + "-2"
			second.Notes = "later"
			second.SavedAt = first.SavedAt.Add(time.Minute)

			require.NoError(t, gw.Save(ctx, second))
			require.NoError(t, gw.Save(ctx, first))

			got, err := gw.Load(ctx, first.SessionID)
			require.NoError(t, err)
			assert.Equal(t, "later", got.Notes)
		})
	}
}

func TestGateway_NotFound(t *testing.T) {
	for name, gw := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			_, err := gw.Load(context.Background(), "vs_missing")
			require.Error(t, err)
			assert.True(t, session.IsNotFound(err))
		})
	}
}

func TestGateway_StoresCopies(t *testing.T) {
	ctx := context.Background()
	gw := NewMemory()
	snap := buildSnapshot(t)
	require.NoError(t, gw.Save(ctx, snap))

	snap.Session.PreFlightAnswers["browser"] = "chrome"
	snap.Ledger[0].Item.Issue = "changed"

	got, err := gw.Load(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "firefox", got.Session.PreFlightAnswers["browser"])
	assert.Equal(t, "slow", got.Ledger[0].Item.Issue)
	history, err := gw.History(ctx, snap.SessionID, MaxHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGateway_History(t *testing.T) {
	for name, gw := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := buildSnapshot(t)
			var saved []session.Snapshot
			for i, offset := range []time.Duration{time.Minute, 0, 2 * time.Minute} {
				snap := base.Clone()
				snap.SnapshotID = fmt.Sprintf("%s-%d", base.SnapshotID, i)
				snap.Notes = fmt.Sprintf("save %d", i)
				snap.SavedAt = base.SavedAt.Add(offset)
				require.NoError(t, gw.Save(ctx, snap))
				saved = append(saved, snap)
			}

			got, err := gw.History(ctx, base.SessionID, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, saved[2].SnapshotID, got[0].SnapshotID)
			assert.Equal(t, saved[0].SnapshotID, got[1].SnapshotID)
			assert.Equal(t, "save 2", got[0].Notes)
			assert.Equal(t, session.StatusBlocked, got[0].Status)
			assert.True(t, saved[2].SavedAt.Equal(got[0].SavedAt))

			all, err := gw.History(ctx, base.SessionID, MaxHistoryLimit)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			none, err := gw.History(ctx, "vs_missing", 5)
			require.NoError(t, err)
			assert.Empty(t, none)

			for _, limit := range []int{0, -1, MaxHistoryLimit + 1} {
				_, err = gw.History(ctx, base.SessionID, limit)
				assert.True(t, session.IsValidation(err), "limit %d", limit)
			}
		})
	}
}

func TestSQLite_DuplicateSnapshotIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	gw, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "dup.db"))
	require.NoError(t, err)
	defer gw.Close()

	snap := buildSnapshot(t)
	require.NoError(t, gw.Save(ctx, snap))
	err = gw.Save(ctx, snap)
	require.Error(t, err)
	assert.True(t, session.IsPersistence(err))
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")
	gw, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	snap := buildSnapshot(t)
	require.NoError(t, gw.Save(ctx, snap))
	require.NoError(t, gw.Close())

	gw, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer gw.Close()

	got, err := gw.Load(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	history, err := gw.History(ctx, snap.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.SnapshotID, history[0].SnapshotID)
	assert.Equal(t, session.StatusBlocked, history[0].Status)
	assert.True(t, snap.SavedAt.Equal(history[0].SavedAt))
}

func TestSQLite_ResumeThroughStore(t *testing.T) {
	ctx := context.Background()
	gw, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "resume.db"))
	require.NoError(t, err)
	defer gw.Close()

	q, err := session.NewQueue([]session.Checkpoint{{ID: "a", Index: 1, Action: "go"}})
	require.NoError(t, err)
	s, err := session.New(ctx, "resume", q, session.WithGateway(gw))
	require.NoError(t, err)
	_, err = s.CompletePreFlight(ctx, nil)
	require.NoError(t, err)
	_, err = s.SaveProgress(ctx, "")
	require.NoError(t, err)

	resumed, err := session.Resume(ctx, gw, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.Projection(), resumed.Projection())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	gw, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, gw)

	gw, err = Open(ctx, Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, gw)
	require.NoError(t, gw.Close())

	_, err = Open(ctx, Config{Driver: DriverSQLite})
	assert.Error(t, err)
	_, err = Open(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nCREATE TABLE x (a);\n\n", upSection("-- +migrate Up\nCREATE TABLE x (a);\n\n-- +migrate Down\nDROP TABLE x;"))
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}
