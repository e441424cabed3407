package centers

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/ecocollect/ecocollect-cli/internal/hours"
	"github.com/ecocollect/ecocollect-cli/internal/location"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Session is one activation of the center view: a loaded store, the
// user's position if it could be resolved, and the open-now policy.
type Session struct {
	Store    *Store
	Location *model.UserLocation
	Checker  hours.Checker
}

// Activate loads the store and resolves the location concurrently. Neither
// failure is fatal; only a cancelled ctx aborts activation.
func Activate(ctx context.Context, st *Store, provider location.Provider, checker hours.Checker) (*Session, error) {
	sess := &Session{Store: st, Checker: checker}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.Load(gctx)
	})
	g.Go(func() error {
		sess.Location = location.Resolve(gctx, provider)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "centers: activate")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "centers: activate")
	}
	return sess, nil
}

// Render runs the pipeline over the store's current list.
func (s *Session) Render(f model.FilterState, now time.Time) []model.CenterView {
	return Apply(s.Store.Centers(), f, s.Location, now, s.Checker)
}

// WithLocation returns a copy of the session using loc instead of the
// resolved position.
func (s *Session) WithLocation(loc *model.UserLocation) *Session {
	cp := *s
	cp.Location = loc
	return &cp
}
