package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are stored as unix milliseconds so range comparisons are
// plain integer comparisons.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS center_snapshots (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	centers    TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_center_snapshots_fetched_at ON center_snapshots(fetched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, source string, centers []model.Center) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		Source:    source,
		Centers:   model.CloneCenters(centers),
		FetchedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	centersJSON, err := json.Marshal(snap.Centers)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal centers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO center_snapshots (id, source, centers, fetched_at) VALUES (?, ?, ?, ?)`,
		snap.ID, source, string(centersJSON), snap.FetchedAt.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, maxAge time.Duration) (*Snapshot, error) {
	var cutoff int64
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge).UnixMilli()
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, centers, fetched_at FROM center_snapshots
		 WHERE fetched_at >= ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		cutoff,
	)

	var snap Snapshot
	var centersJSON string
	var fetchedMs int64
	err := row.Scan(&snap.ID, &snap.Source, &centersJSON, &fetchedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest snapshot")
	}
	if err := json.Unmarshal([]byte(centersJSON), &snap.Centers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal snapshot centers")
	}
	snap.FetchedAt = time.UnixMilli(fetchedMs).UTC()
	return &snap, nil
}

func (s *SQLiteStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM center_snapshots WHERE id NOT IN (
			SELECT id FROM center_snapshots ORDER BY fetched_at DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune snapshots")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, email, access_token, refresh_token, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		sessionID, sess.Email, sess.AccessToken, sess.RefreshToken, time.Now().UTC().UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: save session")
}

func (s *SQLiteStore) LoadSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, access_token, refresh_token, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)

	var sess Session
	var updatedMs int64
	err := row.Scan(&sess.Email, &sess.AccessToken, &sess.RefreshToken, &updatedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load session")
	}
	sess.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &sess, nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return eris.Wrap(err, "sqlite: clear session")
}
