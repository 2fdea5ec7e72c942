package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Memory is an in-process gateway. It keeps every saved snapshot and stores
// deep copies, so callers can never alias persisted state.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]session.Snapshot
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]session.Snapshot)}
}

// Save appends a copy of snap to the session's history.
func (m *Memory) Save(ctx context.Context, snap session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.SessionID == "" {
		return session.ErrEmptySessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.SessionID] = append(m.snapshots[snap.SessionID], snap.Clone())
	return nil
}

// Load returns the most recently saved snapshot for sessionID.
func (m *Memory) Load(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.snapshots[sessionID]
	if len(history) == 0 {
		return session.Snapshot{}, session.NotFoundError(sessionID)
	}
	latest := history[0]
	for _, s := range history[1:] {
		if !s.SavedAt.Before(latest.SavedAt) {
			latest = s
		}
	}
	return latest.Clone(), nil
}

// History lists at most limit snapshots of sessionID, newest first.
func (m *Memory) History(ctx context.Context, sessionID string, limit int) ([]SnapshotInfo, error) {
	if err := checkHistoryLimit(sessionID, limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]SnapshotInfo, 0, len(m.snapshots[sessionID]))
	for _, s := range m.snapshots[sessionID] {
		out = append(out, infoOf(s))
	}
	m.mu.RUnlock()

	// Saves append in call order; SavedAt decides, later saves win ties.
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b SnapshotInfo) int { return b.SavedAt.Compare(a.SavedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Gateway = (*Memory)(nil)
