package main

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/centers"
	"github.com/ecocollect/ecocollect-cli/internal/hours"
	"github.com/ecocollect/ecocollect-cli/internal/location"
	"github.com/ecocollect/ecocollect-cli/internal/resilience"
	"github.com/ecocollect/ecocollect-cli/internal/store"
	"github.com/ecocollect/ecocollect-cli/pkg/ecoapi"
)

// centersEnv holds everything the centers, auth and serve commands need.
type centersEnv struct {
	Store      store.Store // nil when store.driver is none or unavailable
	Client     ecoapi.Client
	Centers    *centers.Store
	Provider   location.Provider // nil when location.provider is none
	Checker    hours.Checker
	Directions centers.Directions
	Session    *sessionSaver
}

// Close releases resources held by the environment.
func (e *centersEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initCenters wires the backend client, the fallback chain and the local
// store. A store that cannot be opened is logged and skipped.
func initCenters(ctx context.Context) (*centersEnv, error) {
	if err := cfg.Validate("centers"); err != nil {
		return nil, err
	}

	checker, err := hours.NewChecker(cfg.Centers.OpenNowMode)
	if err != nil {
		return nil, err
	}
	provider, err := location.FromConfig(cfg.Location)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		zap.L().Warn("store unavailable, continuing without snapshots or sessions",
			zap.String("driver", cfg.Store.Driver),
			zap.Error(err),
		)
		st = nil
	}

	saver := &sessionSaver{st: st}
	client := newAPIClient(ctx, saver)

	var opts []centers.ResilientOption
	if st != nil {
		opts = append(opts, centers.WithSnapshots(st, time.Duration(cfg.Centers.SnapshotMaxAgeHours)*time.Hour))
	}
	if cfg.Centers.FixturePath != "" {
		opts = append(opts, centers.WithFixture(centers.NewStaticFixtureSource(cfg.Centers.FixturePath)))
	}
	source := centers.NewResilientSource(centers.NewRemoteSource(client, ecoapi.CenterQuery{}), opts...)

	return &centersEnv{
		Store:      st,
		Client:     client,
		Centers:    centers.NewStore(source),
		Provider:   provider,
		Checker:    checker,
		Directions: centers.NewDirections(cfg.Maps.BaseURL),
		Session:    saver,
	}, nil
}

// newAPIClient builds the backend client from config, seeded with any
// persisted session.
func newAPIClient(ctx context.Context, saver *sessionSaver) ecoapi.Client {
	opts := []ecoapi.Option{
		ecoapi.WithBaseURL(cfg.API.BaseURL),
		ecoapi.WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second),
		ecoapi.WithRateLimit(cfg.API.RateLimitRPS),
		ecoapi.WithUserAgent(cfg.API.UserAgent),
		ecoapi.WithRetryPolicy(resilience.PolicyFromConfig(cfg.Retry)),
		ecoapi.WithBreaker(resilience.BreakerFromConfig("ecoapi", cfg.Circuit)),
	}
	if saver.st != nil {
		if tokens, ok := saver.load(ctx); ok {
			opts = append(opts, ecoapi.WithTokens(tokens))
		}
		opts = append(opts, ecoapi.WithTokenHook(saver.save))
	}
	return ecoapi.NewClient(opts...)
}

// sessionSaver persists token changes made by the client.
type sessionSaver struct {
	st store.Store

	mu    sync.Mutex
	email string
}

func (s *sessionSaver) load(ctx context.Context) (ecoapi.Tokens, bool) {
	sess, err := s.st.LoadSession(ctx)
	if err != nil {
		zap.L().Warn("load session", zap.Error(err))
		return ecoapi.Tokens{}, false
	}
	if sess == nil {
		return ecoapi.Tokens{}, false
	}
	s.setEmail(sess.Email)
	return ecoapi.Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}, true
}

func (s *sessionSaver) setEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
}

// save runs from the client's token hook, which has no caller context.
func (s *sessionSaver) save(t ecoapi.Tokens) {
	if s.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	email := s.email
	s.mu.Unlock()

	var err error
	if t.Empty() {
		err = s.st.ClearSession(ctx)
	} else {
		err = s.st.SaveSession(ctx, store.Session{
			Email:        email,
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
		})
	}
	if err != nil {
		zap.L().Warn("persist session", zap.Error(eris.Wrap(err, "session hook")))
	}
}
