package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS center_snapshots (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source     TEXT NOT NULL,
	centers    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_center_snapshots_fetched_at ON center_snapshots(fetched_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, source string, centers []model.Center) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		Source:    source,
		Centers:   model.CloneCenters(centers),
		FetchedAt: time.Now().UTC(),
	}

	centersJSON, err := json.Marshal(snap.Centers)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal centers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO center_snapshots (id, source, centers, fetched_at) VALUES ($1, $2, $3, $4)`,
		snap.ID, source, centersJSON, snap.FetchedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert snapshot")
	}
	return snap, nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, maxAge time.Duration) (*Snapshot, error) {
	cutoff := time.Unix(0, 0).UTC()
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge).UTC()
	}

	var snap Snapshot
	var centersJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, centers, fetched_at FROM center_snapshots
		 WHERE fetched_at >= $1
		 ORDER BY fetched_at DESC LIMIT 1`,
		cutoff,
	).Scan(&snap.ID, &snap.Source, &centersJSON, &snap.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest snapshot")
	}
	if err := json.Unmarshal(centersJSON, &snap.Centers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal snapshot centers")
	}
	return &snap, nil
}

func (s *PostgresStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM center_snapshots WHERE id NOT IN (
			SELECT id FROM center_snapshots ORDER BY fetched_at DESC LIMIT $1
		)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune snapshots")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, email, access_token, refresh_token, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = EXCLUDED.updated_at`,
		sessionID, sess.Email, sess.AccessToken, sess.RefreshToken, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save session")
}

func (s *PostgresStore) LoadSession(ctx context.Context) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT email, access_token, refresh_token, updated_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.Email, &sess.AccessToken, &sess.RefreshToken, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load session")
	}
	return &sess, nil
}

func (s *PostgresStore) ClearSession(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return eris.Wrap(err, "postgres: clear session")
}
