// Package ecoapi is a client for the Eco-Collect backend REST API.
package ecoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ecocollect/ecocollect-cli/internal/resilience"
)

const (
	defaultBaseURL  = "http://localhost:8000/api"
	defaultRadiusKm = 10.0
	maxErrorBody    = 4096
)

// Client is the Eco-Collect backend API.
type Client interface {
	Register(ctx context.Context, r Registration) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context) (Tokens, error)
	Logout(ctx context.Context) error
	Tokens() Tokens
	Profile(ctx context.Context) (*User, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error

	ListCenters(ctx context.Context, q CenterQuery) ([]Center, error)
	GetCenter(ctx context.Context, id string) (*Center, error)
	NearbyCenters(ctx context.Context, lat, lon, radiusKm float64) ([]Center, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (including any /api prefix).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTokens seeds the client with previously stored credentials.
func WithTokens(t Tokens) Option {
	return func(c *httpClient) { c.tokens = t }
}

// WithTokenHook registers fn to run whenever the held tokens change,
// including when they are cleared.
func WithTokenHook(fn func(Tokens)) Option {
	return func(c *httpClient) { c.onTokens = fn }
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) { c.retry = p }
}

// WithBreaker guards every call with b. If b has no Trips filter, only
// transient failures count against it.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		if b != nil && b.Trips == nil {
			b.Trips = resilience.IsTransient
		}
		c.breaker = b
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) { c.userAgent = ua }
}

type httpClient struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.Policy
	breaker   *resilience.Breaker
	userAgent string
	onTokens  func(Tokens)

	mu     sync.Mutex
	tokens Tokens
}

// NewClient creates a new backend client.
func NewClient(opts ...Option) Client {
	jar, _ := cookiejar.New(nil)
	c := &httpClient{
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 15 * time.Second, Jar: jar},
		retry:     resilience.DefaultPolicy(),
		userAgent: "ecocollect-cli",
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetries("ecoapi")
	}
	return c
}

func (c *httpClient) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *httpClient) setTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	hook := c.onTokens
	c.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

func (c *httpClient) Register(ctx context.Context, r Registration) (*Session, error) {
	if r.UserName == "" || r.Email == "" || r.Password == "" {
		return nil, eris.New("ecoapi: register: user name, email and password are required")
	}
	var sess Session
	if err := c.call(ctx, http.MethodPost, "/auth/register", nil, r, &sess, false); err != nil {
		return nil, eris.Wrap(err, "ecoapi: register")
	}
	if sess.AccessToken != "" {
		c.setTokens(sess.Tokens)
	}
	return &sess, nil
}

func (c *httpClient) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var sess Session
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, body, &sess, false); err != nil {
		return nil, eris.Wrap(err, "ecoapi: login")
	}
	if sess.AccessToken != "" {
		c.setTokens(sess.Tokens)
	}
	return &sess, nil
}

func (c *httpClient) Refresh(ctx context.Context) (Tokens, error) {
	current := c.Tokens()
	if current.RefreshToken == "" {
		return Tokens{}, eris.New("ecoapi: no refresh token")
	}

	var resp Tokens
	body := map[string]string{"refresh_token": current.RefreshToken}
	if err := c.call(ctx, http.MethodPost, "/auth/refresh", nil, body, &resp, false); err != nil {
		return Tokens{}, eris.Wrap(err, "ecoapi: refresh")
	}
	if resp.AccessToken == "" {
		return Tokens{}, eris.New("ecoapi: refresh returned no access token")
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = current.RefreshToken
	}
	c.setTokens(resp)
	return resp, nil
}

func (c *httpClient) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, false)
	c.setTokens(Tokens{})
	if err != nil {
		return eris.Wrap(err, "ecoapi: logout")
	}
	return nil
}

// Profile returns the logged-in account from /users/profile, falling back
// to /auth/me on backends that only serve the latter.
func (c *httpClient) Profile(ctx context.Context) (*User, error) {
	var raw json.RawMessage
	err := c.call(ctx, http.MethodGet, "/users/profile", nil, nil, &raw, true)
	if IsNotFound(err) {
		zap.L().Debug("ecoapi: /users/profile not served, trying /auth/me")
		err = c.call(ctx, http.MethodGet, "/auth/me", nil, nil, &raw, true)
	}
	if err != nil {
		return nil, eris.Wrap(err, "ecoapi: profile")
	}
	return decodeUser(raw)
}

// RequestPasswordReset asks the backend for a reset token. Backends that
// mail the token return an empty string.
func (c *httpClient) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", eris.New("ecoapi: password reset: empty email")
	}
	var resp struct {
		ResetToken string `json:"reset_token"`
		Token      string `json:"token"`
	}
	body := map[string]string{"email": email}
	if err := c.call(ctx, http.MethodPost, "/auth/forgot-password", nil, body, &resp, false); err != nil {
		return "", eris.Wrap(err, "ecoapi: password reset")
	}
	if resp.ResetToken != "" {
		return resp.ResetToken, nil
	}
	return resp.Token, nil
}

func (c *httpClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return eris.New("ecoapi: reset password: token and new password are required")
	}
	body := map[string]string{"new_password": newPassword}
	path := "/auth/reset-password/" + url.PathEscape(token)
	if err := c.call(ctx, http.MethodPost, path, nil, body, nil, false); err != nil {
		return eris.Wrap(err, "ecoapi: reset password")
	}
	return nil
}

func (c *httpClient) ListCenters(ctx context.Context, q CenterQuery) ([]Center, error) {
	params := url.Values{}
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}
	for _, t := range q.WasteTypes {
		params.Add("type", t)
	}
	if q.OpenNow {
		params.Set("open_now", "true")
	}

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/centers", params, nil, &raw, true); err != nil {
		return nil, eris.Wrap(err, "ecoapi: list centers")
	}
	centers, skipped, err := decodeCenterList(raw)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		zap.L().Debug("ecoapi: skipped malformed center entries", zap.Int("skipped", skipped))
	}
	return centers, nil
}

func (c *httpClient) GetCenter(ctx context.Context, id string) (*Center, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, eris.New("ecoapi: empty center id")
	}

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/centers/"+url.PathEscape(id), nil, nil, &raw, true); err != nil {
		return nil, eris.Wrapf(err, "ecoapi: get center %s", id)
	}
	return decodeCenter(raw)
}

func (c *httpClient) NearbyCenters(ctx context.Context, lat, lon, radiusKm float64) ([]Center, error) {
	if radiusKm <= 0 {
		radiusKm = defaultRadiusKm
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("radius", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/centers/nearby", params, nil, &raw, true); err != nil {
		return nil, eris.Wrap(err, "ecoapi: nearby centers")
	}
	centers, _, err := decodeCenterList(raw)
	return centers, err
}

// call performs one logical request. When authRetry is set and the backend
// answers 401 while a refresh token is held, the tokens are refreshed once
// and the request replayed; a failed refresh clears the tokens.
func (c *httpClient) call(ctx context.Context, method, path string, params url.Values, in, out any, authRetry bool) error {
	err := c.guarded(ctx, method, path, params, in, out)
	if err == nil || !authRetry || !IsUnauthorized(err) || c.Tokens().RefreshToken == "" {
		return err
	}

	zap.L().Debug("ecoapi: access token rejected, refreshing", zap.String("path", path))
	if _, rerr := c.Refresh(ctx); rerr != nil {
		c.setTokens(Tokens{})
		return eris.Wrap(rerr, "ecoapi: session expired")
	}
	return c.guarded(ctx, method, path, params, in, out)
}

func (c *httpClient) guarded(ctx context.Context, method, path string, params url.Values, in, out any) error {
	_, err := resilience.Guard(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, resilience.Do(ctx, c.retry, func(ctx context.Context) error {
			return c.do(ctx, method, path, params, in, out)
		})
	})
	return err
}

func (c *httpClient) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "ecoapi: rate limit wait")
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "ecoapi: marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return eris.Wrap(err, "ecoapi: create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if tok := c.Tokens().AccessToken; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return resilience.NewTransientError(eris.Wrap(err, "ecoapi: send request"), 0)
		}
		return eris.Wrap(err, "ecoapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(b)}
		if resilience.IsTransientStatus(resp.StatusCode) {
			return resilience.NewTransientError(serr, resp.StatusCode)
		}
		return serr
	}

	if out == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "ecoapi: read response"), 0)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = b
		return nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return eris.Wrap(err, "ecoapi: decode response")
	}
	return nil
}
