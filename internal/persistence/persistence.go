// Package persistence provides session snapshot gateways.
package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/verifyd/internal/session"
)

// Driver names a gateway implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverSQLite Driver = "sqlite"
)

// Config selects and configures a gateway.
type Config struct {
	Driver     Driver `koanf:"driver"`
	SQLitePath string `koanf:"sqlite_path"`
}

// Validate checks the storage configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory, "":
		return nil
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", c.Driver)
}

// Gateway is a session.Gateway that owns resources and keeps every saved
// snapshot.
type Gateway interface {
	session.Gateway
	// History lists at most limit snapshots of sessionID, newest first.
	History(ctx context.Context, sessionID string, limit int) ([]SnapshotInfo, error)
	Close() error
}

// MaxHistoryLimit caps a single History call.
const MaxHistoryLimit = 100

// SnapshotInfo describes one saved snapshot without its payload.
type SnapshotInfo struct {
	SnapshotID string         `json:"snapshot_id"`
	Status     session.Status `json:"status"`
	Version    uint64         `json:"version"`
	Notes      string         `json:"notes,omitempty"`
	SavedAt    time.Time      `json:"saved_at"`
}

func infoOf(snap session.Snapshot) SnapshotInfo {
	return SnapshotInfo{
		SnapshotID: snap.SnapshotID,
		Status:     snap.Session.Status,
		Version:    snap.Version,
		Notes:      snap.Notes,
		SavedAt:    snap.SavedAt.UTC(),
	}
}

func checkHistoryLimit(sessionID string, limit int) error {
	if limit <= 0 || limit > MaxHistoryLimit {
		return session.NewSessionError(session.CodeValidation, "history", sessionID,
			fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit), nil)
	}
	return nil
}

// Open builds the gateway named by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		return OpenSQLite(ctx, cfg.SQLitePath)
	}
	return NewMemory(), nil
}
