// Package centers holds the collection-center list and derives the
// filtered, sorted view of it. Loading degrades through remote data, the
// last stored snapshot and a built-in fixture, so callers always get a
// usable list.
package centers

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ecocollect/ecocollect-cli/internal/model"
	"github.com/ecocollect/ecocollect-cli/internal/store"
	"github.com/ecocollect/ecocollect-cli/pkg/ecoapi"
)

// Source names reported alongside a loaded list.
const (
	SourceRemote   = "remote"
	SourceSnapshot = "snapshot"
	SourceFixture  = "fixture"
)

// Non-blocking notices shown when a fallback tier supplied the list.
const (
	WarningCached = "using cached data"
	WarningDemo   = "using demo data"
)

// ErrNoSnapshot is returned by SnapshotSource when nothing recent is stored.
var ErrNoSnapshot = eris.New("centers: no usable snapshot")

// DataSource yields a raw center list.
type DataSource interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Center, error)
}

// CenterLister is the part of the backend client RemoteSource needs.
type CenterLister interface {
	ListCenters(ctx context.Context, q ecoapi.CenterQuery) ([]ecoapi.Center, error)
}

// RemoteSource fetches centers from the backend.
type RemoteSource struct {
	client CenterLister
	query  ecoapi.CenterQuery
}

// NewRemoteSource creates a source that lists centers with the given
// server-side query. The pipeline filters again regardless.
func NewRemoteSource(client CenterLister, q ecoapi.CenterQuery) *RemoteSource {
	return &RemoteSource{client: client, query: q}
}

func (s *RemoteSource) Name() string { return SourceRemote }

func (s *RemoteSource) Fetch(ctx context.Context) ([]model.Center, error) {
	list, err := s.client.ListCenters(ctx, s.query)
	if err != nil {
		return nil, eris.Wrap(err, "centers: fetch remote")
	}
	out := make([]model.Center, 0, len(list))
	for _, c := range list {
		out = append(out, FromAPI(c))
	}
	return out, nil
}

// FromAPI converts a backend record into a Center.
func FromAPI(c ecoapi.Center) model.Center {
	return model.Center{
		ID:                 strings.TrimSpace(c.ID.String()),
		Name:               strings.TrimSpace(c.Name),
		Company:            c.Company,
		Address:            c.Address,
		Phone:              c.Phone,
		Email:              c.Email,
		Hours:              c.Hours,
		Description:        c.Description,
		Latitude:           c.Latitude,
		Longitude:          c.Longitude,
		AcceptedWasteTypes: c.WasteTypes(),
		Rating:             c.Rating,
	}
}

// SnapshotSource serves the newest stored snapshot within maxAge.
type SnapshotSource struct {
	store  store.Store
	maxAge time.Duration
}

// NewSnapshotSource creates a snapshot-backed source.
func NewSnapshotSource(st store.Store, maxAge time.Duration) *SnapshotSource {
	return &SnapshotSource{store: st, maxAge: maxAge}
}

func (s *SnapshotSource) Name() string { return SourceSnapshot }

func (s *SnapshotSource) Fetch(ctx context.Context) ([]model.Center, error) {
	snap, err := s.store.LatestSnapshot(ctx, s.maxAge)
	if err != nil {
		return nil, eris.Wrap(err, "centers: read snapshot")
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap.Centers, nil
}

// StaticFixtureSource serves a fixed list: the built-in demo centers, or
// the contents of a YAML file when a path is set.
type StaticFixtureSource struct {
	path string
}

// NewStaticFixtureSource creates a fixture source. An empty path selects
// the built-in list.
func NewStaticFixtureSource(path string) *StaticFixtureSource {
	return &StaticFixtureSource{path: path}
}

func (s *StaticFixtureSource) Name() string { return SourceFixture }

func (s *StaticFixtureSource) Fetch(_ context.Context) ([]model.Center, error) {
	if s.path == "" {
		return DefaultFixture(), nil
	}
	return LoadFixtureFile(s.path)
}

type fixtureFile struct {
	Centers []model.Center `yaml:"centers"`
}

// LoadFixtureFile reads centers from a YAML file with a top-level
// "centers" list.
func LoadFixtureFile(path string) ([]model.Center, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "centers: read fixture %s", path)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "centers: parse fixture %s", path)
	}
	if len(f.Centers) == 0 {
		return nil, eris.Errorf("centers: fixture %s has no centers", path)
	}
	return f.Centers, nil
}

// DefaultFixture returns the built-in demo centers.
func DefaultFixture() []model.Center {
	return []model.Center{
		{
			ID:                 "1",
			Name:               "Safaricom E-Waste CBD",
			Company:            "Safaricom PLC",
			Address:            "Kenyatta Ave, Nairobi CBD",
			Phone:              "+254 722 000 000",
			Hours:              "Mon - Fri: 8:00 AM - 5:00 PM",
			Latitude:           model.Float(-1.2841),
			Longitude:          model.Float(36.8155),
			AcceptedWasteTypes: []string{model.WasteElectronic, model.WastePlastic, model.WasteMetal},
			Rating:             model.Float(4.8),
		},
		{
			ID:                 "2",
			Name:               "Green Cycle Center Kilimani",
			Company:            "Green Cycle Kenya",
			Address:            "Argwings Kodhek Rd, Kilimani",
			Phone:              "+254 722 111 000",
			Hours:              "Mon - Sat: 7:00 AM - 6:00 PM",
			Latitude:           model.Float(-1.2921),
			Longitude:          model.Float(36.8219),
			AcceptedWasteTypes: []string{model.WastePlastic, model.WasteGlass, model.WastePaper},
			Rating:             model.Float(4.6),
		},
		{
			ID:                 "3",
			Name:               "Eco Point Westlands",
			Company:            "Eco Solutions Ltd",
			Address:            "Waiyaki Way, Westlands",
			Phone:              "+254 722 222 000",
			Hours:              "Mon - Fri: 8:00 AM - 5:00 PM",
			Latitude:           model.Float(-1.2630),
			Longitude:          model.Float(36.8063),
			AcceptedWasteTypes: []string{model.WasteGlass, model.WasteMetal, model.WasteElectronic},
			Rating:             model.Float(4.7),
		},
	}
}

// Result is a validated center list and where it came from.
type Result struct {
	Centers []model.Center
	Source  string
	Warning string
	Dropped int
}

// snapshotKeep is how many snapshots survive pruning after a remote load.
const snapshotKeep = 5

// ResilientSource loads from the primary source and falls back through a
// stored snapshot to a fixture. Each tier's list is validated; a tier that
// errors or yields no valid centers hands over to the next.
type ResilientSource struct {
	primary  DataSource
	snapshot *SnapshotSource
	fixture  DataSource
	store    store.Store
}

// ResilientOption configures a ResilientSource.
type ResilientOption func(*ResilientSource)

// WithSnapshots enables the snapshot tier and refreshes it after every
// successful primary load.
func WithSnapshots(st store.Store, maxAge time.Duration) ResilientOption {
	return func(r *ResilientSource) {
		if st == nil {
			return
		}
		r.store = st
		r.snapshot = NewSnapshotSource(st, maxAge)
	}
}

// WithFixture replaces the built-in fixture tier.
func WithFixture(src DataSource) ResilientOption {
	return func(r *ResilientSource) { r.fixture = src }
}

// NewResilientSource wraps primary with the fallback tiers. primary may be
// nil, in which case loading starts at the snapshot tier.
func NewResilientSource(primary DataSource, opts ...ResilientOption) *ResilientSource {
	r := &ResilientSource{
		primary: primary,
		fixture: NewStaticFixtureSource(""),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load returns the first usable tier. It only returns an error when ctx is
// cancelled.
func (r *ResilientSource) Load(ctx context.Context) (Result, error) {
	if r.primary != nil {
		res, err := r.try(ctx, r.primary, "")
		if err == nil {
			r.saveSnapshot(ctx, res.Centers)
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, eris.Wrap(ctx.Err(), "centers: load")
		}
		zap.L().Warn("center fetch failed, falling back", zap.Error(err))
	}

	if r.snapshot != nil {
		res, err := r.try(ctx, r.snapshot, WarningCached)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, eris.Wrap(ctx.Err(), "centers: load")
		}
		zap.L().Debug("snapshot unavailable", zap.Error(err))
	}

	res, err := r.try(ctx, r.fixture, WarningDemo)
	if err != nil {
		zap.L().Error("fixture unavailable, using built-in demo centers", zap.Error(err))
		kept, dropped := Validate(DefaultFixture())
		return Result{Centers: kept, Source: SourceFixture, Warning: WarningDemo, Dropped: dropped}, nil
	}
	return res, nil
}

func (r *ResilientSource) try(ctx context.Context, src DataSource, warning string) (Result, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	kept, dropped := Validate(raw)
	if len(kept) == 0 {
		return Result{}, eris.Errorf("centers: %s returned no valid centers", src.Name())
	}
	return Result{Centers: kept, Source: src.Name(), Warning: warning, Dropped: dropped}, nil
}

func (r *ResilientSource) saveSnapshot(ctx context.Context, list []model.Center) {
	if r.store == nil {
		return
	}
	if _, err := r.store.SaveSnapshot(ctx, SourceRemote, list); err != nil {
		zap.L().Warn("failed to save center snapshot", zap.Error(err))
		return
	}
	if _, err := r.store.PruneSnapshots(ctx, snapshotKeep); err != nil {
		zap.L().Warn("failed to prune center snapshots", zap.Error(err))
	}
}

// Validate keeps centers with a non-blank id and name and drops repeated
// ids, preserving order. It returns the kept list and the drop count.
func Validate(in []model.Center) ([]model.Center, int) {
	out := make([]model.Center, 0, len(in))
	seen := make(map[string]bool, len(in))
	dropped := 0
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		if !c.Valid() {
			dropped++
			zap.L().Debug("dropping center without id or name", zap.String("id", c.ID))
			continue
		}
		if seen[c.ID] {
			dropped++
			zap.L().Debug("dropping duplicate center id", zap.String("id", c.ID))
			continue
		}
		seen[c.ID] = true
		out = append(out, c.Clone())
	}
	return out, dropped
}
