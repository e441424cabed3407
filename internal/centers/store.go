package centers

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Loader produces a validated center list.
type Loader interface {
	Load(ctx context.Context) (Result, error)
}

// Store holds the unfiltered center list for one session.
type Store struct {
	loader Loader

	mu       sync.RWMutex
	centers  []model.Center
	source   string
	warning  string
	loadedAt time.Time
}

// NewStore creates an empty store backed by loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Load fetches the list and replaces the held one. It fails only when ctx
// is cancelled; every other failure degrades to fallback data.
func (s *Store) Load(ctx context.Context) error {
	res, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	if res.Warning != "" {
		zap.L().Warn("center list degraded",
			zap.String("source", res.Source),
			zap.String("warning", res.Warning),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.centers = res.Centers
	s.source = res.Source
	s.warning = res.Warning
	s.loadedAt = time.Now()

	zap.L().Info("centers loaded",
		zap.Int("count", len(res.Centers)),
		zap.Int("dropped", res.Dropped),
		zap.String("source", res.Source),
	)
	return nil
}

// Centers returns a copy of the unfiltered list.
func (s *Store) Centers() []model.Center {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneCenters(s.centers)
}

// GetByID looks a center up by id.
func (s *Store) GetByID(id string) (model.Center, bool) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.centers {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return model.Center{}, false
}

// Source reports which tier supplied the current list.
func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Warning is the non-blocking notice for the current list, if any.
func (s *Store) Warning() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warning
}

// LoadedAt is when the current list was loaded; zero before the first Load.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
