package config

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Mode is
// "centers" (any command that loads centers) or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "centers", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "api.base_url must be an absolute URL")
	}
	if c.API.TimeoutSecs <= 0 {
		errs = append(errs, "api.timeout_secs must be > 0")
	}
	if c.API.RateLimitRPS < 0 {
		errs = append(errs, "api.rate_limit_rps must be >= 0")
	}

	switch strings.ToLower(c.Centers.OpenNowMode) {
	case "", "schedule", "fixed":
	default:
		errs = append(errs, "centers.open_now_mode must be schedule or fixed")
	}

	switch strings.ToLower(c.Location.Provider) {
	case "", "none", "ip":
	case "static":
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
			errs = append(errs, "location.latitude must be within [-90, 90]")
		}
		if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			errs = append(errs, "location.longitude must be within [-180, 180]")
		}
	default:
		errs = append(errs, "location.provider must be none, static or ip")
	}

	switch strings.ToLower(c.Store.Driver) {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, "store.driver must be none, sqlite or postgres")
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
