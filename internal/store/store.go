package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ecocollect/ecocollect-cli/internal/config"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Snapshot is a stored copy of the last successful center fetch.
type Snapshot struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Centers   []model.Center `json:"centers"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Session holds the persisted backend credentials for the CLI user.
type Session struct {
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists center snapshots and the login session.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, source string, centers []model.Center) (*Snapshot, error)
	// LatestSnapshot returns the newest snapshot no older than maxAge, or
	// nil if there is none. maxAge <= 0 accepts any age.
	LatestSnapshot(ctx context.Context, maxAge time.Duration) (*Snapshot, error)
	// PruneSnapshots deletes all but the newest keep snapshots.
	PruneSnapshots(ctx context.Context, keep int) (int, error)

	// Session
	SaveSession(ctx context.Context, sess Session) error
	LoadSession(ctx context.Context) (*Session, error)
	ClearSession(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// sessionID keys the single session row.
const sessionID = "default"

// Open connects to the configured store and migrates it. It returns nil
// when the driver is "none".
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
