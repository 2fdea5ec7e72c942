package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/verifyd/internal/persistence/migrations"
	"github.com/fyrsmithlabs/verifyd/internal/session"
)

const migrationTable = "schema_migrations"

// SQLite stores snapshots as JSON rows. Every save is a new row; Load
// returns the newest one.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts snap as a new row.
func (s *SQLite) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.SessionID == "" {
		return session.ErrEmptySessionID
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return persistErr("save", snap.SessionID, fmt.Errorf("encode snapshot: %w", err))
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots (
	snapshot_id,
	session_id,
	status,
	version,
	notes,
	payload,
	saved_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		snap.SnapshotID,
		snap.SessionID,
		string(snap.Session.Status),
		int64(snap.Version),
		snap.Notes,
		string(payload),
		snap.SavedAt.UTC().UnixNano(),
	)
	if err != nil {
		return persistErr("save", snap.SessionID, fmt.Errorf("insert snapshot: %w", err))
	}
	return nil
}

// Load returns the newest snapshot for sessionID.
func (s *SQLite) Load(ctx context.Context, sessionID string) (session.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
SELECT payload
FROM snapshots
WHERE session_id = ?
ORDER BY saved_at DESC, id DESC
LIMIT 1
`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, session.NotFoundError(sessionID)
	}
	if err != nil {
		return session.Snapshot{}, persistErr("load", sessionID, fmt.Errorf("query snapshot: %w", err))
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return session.Snapshot{}, persistErr("load", sessionID, fmt.Errorf("decode snapshot: %w", err))
	}
	return snap, nil
}

// History lists at most limit snapshots of sessionID, newest first.
func (s *SQLite) History(ctx context.Context, sessionID string, limit int) ([]SnapshotInfo, error) {
	if err := checkHistoryLimit(sessionID, limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT snapshot_id, status, version, notes, saved_at
FROM snapshots
WHERE session_id = ?
ORDER BY saved_at DESC, id DESC
LIMIT ?
`, sessionID, limit)
	if err != nil {
		return nil, persistErr("history", sessionID, fmt.Errorf("list snapshots: %w", err))
	}
	defer rows.Close()

	out := make([]SnapshotInfo, 0, limit)
	for rows.Next() {
		var (
			info    SnapshotInfo
			status  string
			version int64
			savedAt int64
		)
		if err := rows.Scan(&info.SnapshotID, &status, &version, &info.Notes, &savedAt); err != nil {
			return nil, persistErr("history", sessionID, fmt.Errorf("scan snapshot: %w", err))
		}
		info.Status = session.Status(status)
		info.Version = uint64(version)
		info.SavedAt = time.Unix(0, savedAt).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("history", sessionID, fmt.Errorf("iterate snapshots: %w", err))
	}
	return out, nil
}

func persistErr(op, sessionID string, err error) error {
	return session.NewSessionError(session.CodePersistence, op, sessionID, "", err)
}

// applyMigrations runs each embedded *.sql file at most once.
func applyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM "+migrationTable+" WHERE name = ?", file,
		).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if count > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, upMarker)
	if start == -1 {
		return content
	}
	content = content[start+len(upMarker):]
	if end := strings.Index(content, downMarker); end != -1 {
		content = content[:end]
	}
	return content
}

var _ Gateway = (*SQLite)(nil)
