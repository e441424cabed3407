// Package location resolves the user's position once per session. Failure
// is never fatal: callers continue without a location.
package location

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ecocollect/ecocollect-cli/internal/config"
	"github.com/ecocollect/ecocollect-cli/internal/model"
)

// ErrUnavailable is returned when a provider has no position to offer.
var ErrUnavailable = eris.New("location: unavailable")

// Provider yields the user's current position.
type Provider interface {
	Locate(ctx context.Context) (*model.UserLocation, error)
}

// StaticProvider always returns a fixed position.
type StaticProvider struct {
	Latitude  float64
	Longitude float64
}

// Locate returns the configured coordinates.
func (p StaticProvider) Locate(_ context.Context) (*model.UserLocation, error) {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return nil, eris.Errorf("location: coordinates out of range (%f, %f)", p.Latitude, p.Longitude)
	}
	return &model.UserLocation{Latitude: p.Latitude, Longitude: p.Longitude}, nil
}

// IPProvider looks the position up from an IP geolocation service. Both
// ip-api.com style ({"lat","lon"}) and ipapi.co style ({"latitude",
// "longitude"}) responses are understood.
type IPProvider struct {
	url  string
	http *http.Client
}

// IPOption configures an IPProvider.
type IPOption func(*IPProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) IPOption {
	return func(p *IPProvider) { p.http = hc }
}

// NewIPProvider creates a provider querying lookupURL.
func NewIPProvider(lookupURL string, timeout time.Duration, opts ...IPOption) *IPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &IPProvider{
		url:  lookupURL,
		http: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type ipResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Locate queries the lookup service.
func (p *IPProvider) Locate(ctx context.Context) (*model.UserLocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "location: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "location: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, eris.Errorf("location: unexpected status %d: %s", resp.StatusCode, string(b))
	}

	var body ipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "location: decode response")
	}
	if body.Status != "" && !strings.EqualFold(body.Status, "success") {
		return nil, eris.Wrapf(ErrUnavailable, "lookup failed: %s", body.Message)
	}

	lat, lon := body.Lat, body.Lon
	if lat == nil || lon == nil {
		lat, lon = body.Latitude, body.Longitude
	}
	if lat == nil || lon == nil {
		return nil, eris.Wrap(ErrUnavailable, "response has no coordinates")
	}
	return StaticProvider{Latitude: *lat, Longitude: *lon}.Locate(ctx)
}

// FromConfig builds the configured provider. It returns nil for "none".
func FromConfig(cfg config.LocationConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "static":
		return StaticProvider{Latitude: cfg.Latitude, Longitude: cfg.Longitude}, nil
	case "ip":
		if cfg.LookupURL == "" {
			return nil, eris.New("location: ip provider requires lookup_url")
		}
		return NewIPProvider(cfg.LookupURL, time.Duration(cfg.TimeoutSecs)*time.Second), nil
	default:
		return nil, eris.Errorf("location: unknown provider %q", cfg.Provider)
	}
}

// Resolve asks p for the position once. A nil provider, an error or a
// cancelled context all yield nil; errors are logged, never returned.
func Resolve(ctx context.Context, p Provider) *model.UserLocation {
	if p == nil {
		return nil
	}
	loc, err := p.Locate(ctx)
	if err != nil {
		zap.L().Info("location unavailable, continuing without distances", zap.Error(err))
		return nil
	}
	return loc
}
