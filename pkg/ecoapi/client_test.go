package ecoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocollect/ecocollect-cli/internal/resilience"
)

func noRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 1}
}

func fastRetry(attempts int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1,
	}
}

func TestListCenters(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantIDs []string
	}{
		{
			name:    "bare_array",
			status:  http.StatusOK,
			body:    `[{"id": 1, "name": "A"}, {"id": "2", "name": "B"}]`,
			wantIDs: []string{"1", "2"},
		},
		{
			name:    "data_envelope",
			status:  http.StatusOK,
			body:    `{"data": [{"id": 7, "name": "Seven"}]}`,
			wantIDs: []string{"7"},
		},
		{
			name:    "skips_non_objects",
			status:  http.StatusOK,
			body:    `[null, 42, "x", {"id": 3, "name": "C"}]`,
			wantIDs: []string{"3"},
		},
		{
			name:    "empty_list",
			status:  http.StatusOK,
			body:    `[]`,
			wantIDs: []string{},
		},
		{
			name:    "not_a_list",
			status:  http.StatusOK,
			body:    `"nope"`,
			wantErr: "not a list",
		},
		{
			name:    "bad_request",
			status:  http.StatusBadRequest,
			body:    `{"error": "bad"}`,
			wantErr: "unexpected status 400",
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "boom"}`,
			wantErr: "unexpected status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/centers", r.URL.Path)
				assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL+"/api"), WithRetryPolicy(noRetry()))
			got, err := c.ListCenters(context.Background(), CenterQuery{})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, c := range got {
				ids = append(ids, c.ID.String())
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListCenters_QueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "green", q.Get("search"))
		assert.Equal(t, []string{"plastic", "glass"}, q["type"])
		assert.Equal(t, "true", q.Get("open_now"))
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	_, err := c.ListCenters(context.Background(), CenterQuery{
		Search:     " green ",
		WasteTypes: []string{"plastic", "glass"},
		OpenNow:    true,
	})
	require.NoError(t, err)
}

func TestGetCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/centers/1":
			w.Write([]byte(`{"id": 1, "name": "Safaricom E-Waste CBD", "acceptedTypes": ["Electronic", "Metal"], "latitude": -1.2841, "longitude": 36.8155}`)) //nolint:errcheck
		case "/centers/2":
			w.Write([]byte(`{"data": {"id": 2, "name": "Green Cycle", "accepted_waste_types": ["Plastic"], "rating": 4.6}}`)) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "Center not found"}`)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	ctx := context.Background()

	one, err := c.GetCenter(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, FlexID("1"), one.ID)
	assert.Equal(t, []string{"Electronic", "Metal"}, one.WasteTypes())
	require.NotNil(t, one.Latitude)
	assert.InDelta(t, -1.2841, *one.Latitude, 1e-9)

	two, err := c.GetCenter(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "Green Cycle", two.Name)
	assert.Equal(t, []string{"Plastic"}, two.WasteTypes())

	_, err = c.GetCenter(ctx, "99")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.GetCenter(ctx, " ")
	require.Error(t, err)
}

func TestNearbyCenters_DefaultRadius(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/centers/nearby", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "-1.2921", q.Get("lat"))
		assert.Equal(t, "36.8219", q.Get("lng"))
		assert.Equal(t, "10", q.Get("radius"))
		w.Write([]byte(`{"data": [{"id": 2, "name": "Green Cycle"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	got, err := c.NearbyCenters(context.Background(), -1.2921, 36.8219, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Green Cycle", got[0].Name)
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id": 1, "name": "A"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(fastRetry(3)))
	got, err := c.ListCenters(context.Background(), CenterQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(fastRetry(3)))
	_, err := c.GetCenter(context.Background(), "5")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := resilience.NewBreaker("ecoapi", 2, time.Hour)
	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithBreaker(b))
	ctx := context.Background()

	for range 2 {
		_, err := c.ListCenters(ctx, CenterQuery{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, b.State())

	_, err := c.ListCenters(ctx, CenterQuery{})
	require.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := resilience.NewBreaker("ecoapi", 1, time.Hour)
	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithBreaker(b))
	_, err := c.GetCenter(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestLoginStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann@example.com", body["email"])
		w.Write([]byte(`{"message": "Login successful", "access_token": "a1", "refresh_token": "r1", "user": {"id": 4, "user_name": "ann", "role": "user"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	var hooked []Tokens
	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithTokenHook(func(t Tokens) {
		hooked = append(hooked, t)
	}))

	sess, err := c.Login(context.Background(), "ann@example.com", "secret")
	require.NoError(t, err)
	require.NotNil(t, sess.User)
	assert.Equal(t, "ann", sess.User.UserName)
	assert.Equal(t, Tokens{AccessToken: "a1", RefreshToken: "r1"}, c.Tokens())
	require.Len(t, hooked, 1)
}

func TestLoginUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "Invalid credentials"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	_, err := c.Login(context.Background(), "x@example.com", "bad")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.True(t, c.Tokens().Empty())
}

func TestRefreshOn401ThenReplay(t *testing.T) {
	var refreshed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshed.Add(1)
			w.Write([]byte(`{"access_token": "fresh"}`)) //nolint:errcheck
		case "/centers":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`[{"id": 1, "name": "A"}]`)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithRetryPolicy(noRetry()),
		WithTokens(Tokens{AccessToken: "stale", RefreshToken: "r1"}),
	)
	got, err := c.ListCenters(context.Background(), CenterQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), refreshed.Load())
	assert.Equal(t, Tokens{AccessToken: "fresh", RefreshToken: "r1"}, c.Tokens())
}

func TestRefreshFailureClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var last Tokens
	c := NewClient(
		WithBaseURL(srv.URL),
		WithRetryPolicy(noRetry()),
		WithTokens(Tokens{AccessToken: "stale", RefreshToken: "r1"}),
		WithTokenHook(func(t Tokens) { last = t }),
	)
	_, err := c.ListCenters(context.Background(), CenterQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
	assert.True(t, c.Tokens().Empty())
	assert.True(t, last.Empty())
}

func TestNoRefreshWithoutRefreshToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithTokens(Tokens{AccessToken: "a"}))
	_, err := c.ListCenters(context.Background(), CenterQuery{})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogoutClearsTokensEvenOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithTokens(Tokens{AccessToken: "a", RefreshToken: "r"}))
	err := c.Logout(context.Background())
	require.Error(t, err)
	assert.True(t, c.Tokens().Empty())
}

func TestRateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithRateLimit(0.001))
	_, err := c.ListCenters(context.Background(), CenterQuery{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListCenters(ctx, CenterQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestUserAgentHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ecocollect-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithUserAgent("ecocollect-test/1.0"))
	_, err := c.ListCenters(context.Background(), CenterQuery{})
	require.NoError(t, err)
}

func TestWithTimeout(t *testing.T) {
	c := NewClient(WithTimeout(2 * time.Second)).(*httpClient)
	assert.Equal(t, 2*time.Second, c.http.Timeout)
	assert.NotNil(t, c.http.Jar)

	c = NewClient(WithTimeout(0)).(*httpClient)
	assert.Equal(t, 15*time.Second, c.http.Timeout)
}

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/register", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "amina", body["user_name"])
		assert.Equal(t, "civilian", body["role"])
		assert.Equal(t, true, body["terms_approved"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message": "User registered successfully", "user": {"id": 12, "user_name": "amina", "email": "a@example.com", "role": "civilian", "point_score": 0}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	sess, err := c.Register(context.Background(), Registration{
		UserName: "amina", Email: "a@example.com", Password: "pw", Role: "civilian", TermsApproved: true,
	})
	require.NoError(t, err)
	require.NotNil(t, sess.User)
	assert.Equal(t, FlexID("12"), sess.User.ID)
	// Cookie-session backends return no bearer tokens.
	assert.True(t, c.Tokens().Empty())

	_, err = c.Register(context.Background(), Registration{Email: "a@example.com"})
	assert.Error(t, err)
}

func TestRegister_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Email already registered"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	_, err := c.Register(context.Background(), Registration{UserName: "a", Email: "a@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Contains(t, err.Error(), "Email already registered")
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/profile", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id": 7, "user_name": "wanjiku", "role": "civilian", "points": 120}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()), WithTokens(Tokens{AccessToken: "tok"}))
	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wanjiku", u.UserName)
	assert.Equal(t, 120, u.PointScore)
}

func TestProfile_FallsBackToAuthMe(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path != "/auth/me" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id": 7, "user_name": "wanjiku", "role": "corporate", "point_score": 30}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	u, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/users/profile", "/auth/me"}, paths)
	assert.Equal(t, "corporate", u.Role)
	assert.Equal(t, 30, u.PointScore)
}

func TestProfile_Unauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "Not authenticated"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	_, err := c.Profile(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestPasswordReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/auth/forgot-password":
			assert.Equal(t, "a@example.com", body["email"])
			w.Write([]byte(`{"message": "Password reset token generated", "reset_token": "rst-1"}`)) //nolint:errcheck
		case "/auth/reset-password/rst-1":
			assert.Equal(t, "new-pw", body["new_password"])
			w.Write([]byte(`{"message": "Password has been reset successfully"}`)) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "Invalid or expired token"}`)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetryPolicy(noRetry()))
	token, err := c.RequestPasswordReset(context.Background(), " a@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "rst-1", token)

	require.NoError(t, c.ResetPassword(context.Background(), token, "new-pw"))

	err = c.ResetPassword(context.Background(), "stale", "new-pw")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))

	assert.Error(t, c.ResetPassword(context.Background(), "", "new-pw"))
	_, err = c.RequestPasswordReset(context.Background(), "")
	assert.Error(t, err)
}
