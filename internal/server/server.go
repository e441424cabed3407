// Package server exposes the center view over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/centers"
	"github.com/ecocollect/ecocollect-cli/internal/export"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// Config wires the server's collaborators.
type Config struct {
	Session     *centers.Session
	Fetcher     centers.CenterFetcher
	Directions  centers.Directions
	Metrics     *Metrics
	CORSOrigins []string
	// Now defaults to time.Now; tests pin it for open-now checks.
	Now func() time.Time
}

// Server serves the HTTP API.
type Server struct {
	session    *centers.Session
	fetcher    centers.CenterFetcher
	directions centers.Directions
	metrics    *Metrics
	now        func() time.Time
	router     chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	s := &Server{
		session:    cfg.Session,
		fetcher:    cfg.Fetcher,
		directions: cfg.Directions,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.directions == (centers.Directions{}) {
		s.directions = centers.NewDirections("")
	}
	s.metrics.SetCenters(s.session.Store.Source(), len(s.session.Store.Centers()))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Route("/centers", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/reload", s.handleReload)
		r.Get("/{id}", s.handleDetail)
		r.Get("/{id}/directions", s.handleDirections)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f, err := filterFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := export.FormatJSON
	if v := q.Get("format"); v != "" {
		format, err = export.ParseFormat(v)
		if err != nil || format == export.FormatTable {
			writeError(w, http.StatusBadRequest, "format must be json, geojson or xlsx")
			return
		}
	}

	sess := s.session
	loc, err := locationFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if loc != nil {
		sess = sess.WithLocation(loc)
	}

	views := sess.Render(f, s.now())
	resp := export.NewListResponse(views, sess.Store.Source(), sess.Store.Warning())

	switch format {
	case export.FormatGeoJSON:
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := export.GeoJSON(w, views); err != nil {
			zap.L().Error("write geojson", zap.Error(err))
		}
	case export.FormatXLSX:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="centers.xlsx"`)
		if err := export.XLSX(w, views); err != nil {
			zap.L().Error("write xlsx", zap.Error(err))
		}
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := centers.ViewDetails(r.Context(), s.fetcher, s.session.Store, id)
	if err != nil {
		if errors.Is(err, centers.ErrNotFound) {
			writeError(w, http.StatusNotFound, "center not found")
			return
		}
		zap.L().Error("view details", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "details unavailable")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.session.Store.GetByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "center not found")
		return
	}

	loc, err := locationFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if loc == nil {
		loc = s.session.Location
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": s.directions.URL(c, loc)})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Store.Load(r.Context()); err != nil {
		zap.L().Error("reload centers", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "reload cancelled")
		return
	}
	st := s.session.Store
	count := len(st.Centers())
	s.metrics.SetCenters(st.Source(), count)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   count,
		"source":  st.Source(),
		"warning": st.Warning(),
	})
}

// filterFromQuery maps q, type, open_now, max_km and sort onto a filter
// state. type may repeat or hold a comma-separated list.
func filterFromQuery(q url.Values) (model.FilterState, error) {
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }

	f := model.DefaultFilterState().WithSearch(get("q"))

	var types []string
	for _, v := range q["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	f = f.WithWasteTypes(types...)

	if v := get("open_now"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			return f, eris.New("open_now must be a boolean")
		}
		f = f.WithOpenNow(open)
	}
	if v := get("max_km"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || km < 0 {
			return f, eris.New("max_km must be a non-negative number")
		}
		f = f.WithMaxDistance(km)
	}
	key, err := model.ParseSortKey(get("sort"))
	if err != nil {
		return f, eris.New("sort must be name, distance or rating")
	}
	return f.WithSort(key), nil
}

// locationFromQuery reads lat/lon. Both or neither must be given.
func locationFromQuery(q url.Values) (*model.UserLocation, error) {
	lat, lon := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, eris.New("lat and lon must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return nil, eris.New("lat must be a number within [-90, 90]")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || lo < -180 || lo > 180 {
		return nil, eris.New("lon must be a number within [-180, 180]")
	}
	return &model.UserLocation{Latitude: la, Longitude: lo}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
