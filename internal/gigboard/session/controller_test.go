package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/session"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store/drivers/memory"
	"github.com/aussiebroadwan/gigboard/pkg/httpx"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const farFuture = "2099-01-01T00:00:00Z"

// ============================================================================
// Harness
// ============================================================================

type recorder struct {
	mu            sync.Mutex
	attempts      []string
	transitions   []string
	forcedLogouts int
}

func (r *recorder) RecordAuthAttempt(method, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, method+":"+outcome)
}

func (r *recorder) RecordTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recorder) RecordForcedLogout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forcedLogouts++
}

func (r *recorder) RecordBridgeOutcome(string) {}

// countingStore wraps a memory store and counts writes.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	saves int
}

func (s *countingStore) Save(ctx context.Context, creds store.Credentials) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, creds)
}

func (s *countingStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type harness struct {
	ctrl    *session.Controller
	store   *countingStore
	pending *store.PendingStore
	metrics *recorder

	mu     sync.Mutex
	routes []string
	hits   map[string]int
}

func (h *harness) Routes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.routes...)
}

func (h *harness) Hits(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func newHarness(t *testing.T, mux *http.ServeMux) *harness {
	t.Helper()

	h := &harness{
		store:   &countingStore{Store: memory.NewStore()},
		pending: store.NewPendingStore(30 * time.Minute),
		metrics: &recorder{},
		hits:    make(map[string]int),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.URL.Path]++
		h.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client := marketsdk.NewSDKClient(srv.URL)
	client.HTTPClient = marketsdk.NewHTTPClient(5*time.Second, httpx.RateLimitConfig{
		RequestsPerWindow: 1000,
		Window:            time.Second,
		Burst:             1000,
	}, slogx.Discard())

	h.ctrl = session.New(session.Config{
		Client:  client,
		Store:   h.store,
		Pending: h.pending,
		Navigator: session.NavigatorFunc(func(route string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.routes = append(h.routes, route)
		}),
		Metrics: h.metrics,
		Logger:  slogx.Discard(),
	})

	return h
}

// backendMux is a well-behaved backend: user@example.com/secret1 signs in,
// unverified@example.com is refused for being unverified, everything else is
// bad credentials.
func backendMux(t *testing.T) *http.ServeMux {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req marketsdk.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "bad json"})
			return
		}
		switch {
		case req.Email == "user@example.com" && req.Password == "secret1":
			httpx.WriteJSON(w, http.StatusOK, marketsdk.AuthResponse{AccessToken: "A", RefreshToken: "R", ExpiresAt: farFuture, Message: "ok"})
		case req.Email == "unverified@example.com":
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "Email not verified"})
		default:
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		}
	})
	mux.HandleFunc("GET /User/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer A":
			httpx.WriteJSON(w, http.StatusOK, marketsdk.UserProfile{FullName: "Test User", Email: "user@example.com", Role: marketsdk.RoleClient})
		case "Bearer G":
			httpx.WriteJSON(w, http.StatusOK, marketsdk.UserProfile{FullName: "Google User", Email: "g@example.com", Role: marketsdk.RoleFreelancer})
		default:
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
		}
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "token revoked"})
	})
	return mux
}

func login(t *testing.T, h *harness) {
	t.Helper()
	require.NoError(t, h.ctrl.LoginWithPassword(context.Background(), "user@example.com", "secret1"))
}

// ============================================================================
// Password login
// ============================================================================

func TestLoginWithPasswordEstablishesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))
	login(t, h)

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAuthenticated, snap.State)
	require.True(t, snap.Authenticated())
	require.Nil(t, snap.LastError)
	require.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), snap.ExpiresAt)
	require.NotNil(t, snap.User)
	require.Equal(t, "Test User", snap.User.FullName)

	require.Equal(t, map[string]string{
		"jwtToken":       "A",
		"refreshToken":   "R",
		"tokenExpiresAt": farFuture,
	}, h.store.Entries())

	require.Equal(t, []string{session.RouteHome}, h.Routes())
	require.Equal(t, []string{"password:success"}, h.metrics.attempts)
}

func TestLoginKeepsBackendExpiryAsSent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		expiresAt string
		want      time.Time
	}{
		{name: "zone-less", expiresAt: "2099-01-01T00:00:00", want: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "offset", expiresAt: "2099-01-01T07:00:00+07:00", want: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "seven fractional digits", expiresAt: "2099-01-01T00:00:00.1234567Z", want: time.Date(2099, 1, 1, 0, 0, 0, 123456700, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
				httpx.WriteJSON(w, http.StatusOK, marketsdk.AuthResponse{AccessToken: "opaque-token", RefreshToken: "R", ExpiresAt: tt.expiresAt})
			})
			mux.HandleFunc("GET /User/me", func(w http.ResponseWriter, r *http.Request) {
				httpx.WriteJSON(w, http.StatusOK, marketsdk.UserProfile{FullName: "Test User", Email: "user@example.com", Role: marketsdk.RoleClient})
			})

			h := newHarness(t, mux)
			require.NoError(t, h.ctrl.LoginWithPassword(context.Background(), "user@example.com", "secret1"))

			snap := h.ctrl.Snapshot()
			require.Equal(t, session.StateAuthenticated, snap.State)
			require.True(t, tt.want.Equal(snap.ExpiresAt), "expires at %s", snap.ExpiresAt)

			require.Equal(t, map[string]string{
				"jwtToken":       "opaque-token",
				"refreshToken":   "R",
				"tokenExpiresAt": tt.expiresAt,
			}, h.store.Entries())
		})
	}
}

func TestLoginWithPasswordBadCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))
	before := h.store.Entries()

	err := h.ctrl.LoginWithPassword(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	require.True(t, session.IsKind(err, session.KindAuthentication))
	require.True(t, marketsdk.IsUnauthorized(err))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.False(t, snap.CanResendVerification)
	require.NotNil(t, snap.LastError)
	require.Equal(t, session.KindAuthentication, snap.LastError.Kind)

	require.Equal(t, before, h.store.Entries())
	require.Zero(t, h.store.Saves())
	require.Empty(t, h.Routes())
	require.Zero(t, h.metrics.forcedLogouts)
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))
	login(t, h)
	before := h.store.Entries()

	err := h.ctrl.LoginWithPassword(context.Background(), "someone@example.com", "nope")
	require.True(t, session.IsKind(err, session.KindAuthentication))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAuthenticated, snap.State)
	require.NotNil(t, snap.User)
	require.Equal(t, before, h.store.Entries())
}

func TestLoginWithPasswordUnverifiedEmail(t *testing.T) {
	t.Parallel()

	mux := backendMux(t)
	resentTo := make(chan string, 1)
	mux.HandleFunc("POST /resend-verification", func(w http.ResponseWriter, r *http.Request) {
		var req marketsdk.ResendVerificationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resentTo <- req.Email
		httpx.WriteJSON(w, http.StatusOK, marketsdk.MessageResponse{Message: "sent"})
	})
	h := newHarness(t, mux)

	err := h.ctrl.LoginWithPassword(context.Background(), " unverified@example.com ", "pw")
	require.True(t, session.IsKind(err, session.KindUnverifiedEmail))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAnonymous, snap.State)
	require.True(t, snap.CanResendVerification)
	require.Equal(t, "unverified@example.com", snap.VerificationEmail)
	require.Zero(t, h.store.Saves())

	require.NoError(t, h.ctrl.ResendVerification(context.Background(), ""))
	require.Equal(t, "unverified@example.com", <-resentTo)
	require.False(t, h.ctrl.Snapshot().CanResendVerification)
}

func TestLoginWithPasswordValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))

	err := h.ctrl.LoginWithPassword(context.Background(), "", "")
	require.True(t, session.IsKind(err, session.KindValidation))

	var ae *session.AuthError
	require.True(t, errors.As(err, &ae))
	require.Contains(t, ae.Fields, "email")
	require.Contains(t, ae.Fields, "password")

	require.Zero(t, h.Hits(marketsdk.PathLogin))
	require.Equal(t, session.StateAnonymous, h.ctrl.Snapshot().State)
}

func TestLoginTransportError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := newHarness(t, mux)

	err := h.ctrl.LoginWithPassword(context.Background(), "user@example.com", "secret1")

	var ae *session.AuthError
	require.True(t, errors.As(err, &ae))
	require.Equal(t, session.KindTransport, ae.Kind)
	require.True(t, ae.Retryable())
	require.Equal(t, session.StateAnonymous, h.ctrl.Snapshot().State)
}

// ============================================================================
// Logout
// ============================================================================

func TestLogoutAlwaysClears(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"server accepts": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"server errors": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"connection dropped": func(w http.ResponseWriter, r *http.Request) {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
		},
	}

	for name, logoutHandler := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, logoutMux(backendMux(t), logoutHandler))
			login(t, h)

			require.NoError(t, h.ctrl.Logout(context.Background()))

			snap := h.ctrl.Snapshot()
			require.Equal(t, session.StateAnonymous, snap.State)
			require.Nil(t, snap.User)
			require.Empty(t, h.store.Entries())
			require.Equal(t, 1, h.Hits(marketsdk.PathLogout))
			require.Equal(t, []string{session.RouteHome, session.RouteLogin}, h.Routes())

			_, err := h.store.Load(context.Background())
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

// logoutMux serves base but routes /logout to handler.
func logoutMux(base *http.ServeMux, handler http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", base)
	mux.Handle("POST /logout", handler)
	return mux
}

func TestLogoutWhenAnonymous(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))

	require.NoError(t, h.ctrl.Logout(context.Background()))
	require.Equal(t, session.StateAnonymous, h.ctrl.Snapshot().State)
	require.Zero(t, h.Hits(marketsdk.PathLogout))
}

// ============================================================================
// Authorization failures
// ============================================================================

func TestUnauthorizedOnAnyRequestForcesLogout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))
	login(t, h)

	client, err := h.ctrl.Client(context.Background())
	require.NoError(t, err)

	err = client.Do(context.Background(), http.MethodGet, "/jobs", nil, nil)
	require.True(t, marketsdk.IsUnauthorized(err))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAnonymous, snap.State)
	require.Nil(t, snap.User)
	require.NotNil(t, snap.LastError)
	require.Equal(t, session.KindAuthorization, snap.LastError.Kind)
	require.Empty(t, h.store.Entries())
	require.Equal(t, 1, h.metrics.forcedLogouts)
	require.Equal(t, []string{session.RouteHome, session.RouteLogin}, h.Routes())

	_, err = h.ctrl.Client(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestUnauthorizedForStaleTokenIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))
	login(t, h)

	h.ctrl.HandleUnauthorized(context.Background(), "some-older-token")

	require.Equal(t, session.StateAuthenticated, h.ctrl.Snapshot().State)
	require.NotEmpty(t, h.store.Entries())
	require.Zero(t, h.metrics.forcedLogouts)
}

// ============================================================================
// Identity provider
// ============================================================================

func googleMux(t *testing.T, registered func() bool) *http.ServeMux {
	t.Helper()

	mux := backendMux(t)
	mux.HandleFunc("POST /google-login", func(w http.ResponseWriter, r *http.Request) {
		if !registered() {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": marketsdk.MessageGoogleRegisterRequired})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, marketsdk.AuthResponse{AccessToken: "G", RefreshToken: "GR", ExpiresAt: farFuture})
	})
	return mux
}

func TestLoginWithIdentityProviderKnownUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t, googleMux(t, func() bool { return true }))

	require.NoError(t, h.ctrl.LoginWithIdentityProvider(context.Background(), "cred"))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAuthenticated, snap.State)
	require.Equal(t, "Google User", snap.User.FullName)
	require.Equal(t, "G", h.store.Entries()["jwtToken"])
	require.False(t, snap.Pending)
}

func TestLoginWithIdentityProviderRegistrationRequired(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		registered bool
		regBody    map[string]any
	)
	mux := googleMux(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return registered
	})
	mux.HandleFunc("POST /google-register", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&regBody))
		registered = true
		httpx.WriteJSON(w, http.StatusOK, marketsdk.AuthResponse{AccessToken: "G", RefreshToken: "GR", ExpiresAt: farFuture})
	})
	h := newHarness(t, mux)

	err := h.ctrl.LoginWithIdentityProvider(context.Background(), "opaque-credential")
	require.True(t, session.IsKind(err, session.KindRegistrationRequired))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAnonymous, snap.State)
	require.True(t, snap.Pending)
	require.Nil(t, snap.LastError)
	require.Zero(t, h.store.Saves())
	require.Empty(t, h.store.Entries())
	require.Equal(t, []string{session.RouteRegisterWithProvider}, h.Routes())

	p, ok := h.ctrl.Pending(context.Background())
	require.True(t, ok)
	require.Equal(t, "opaque-credential", p.Credential)
	require.True(t, p.AwaitingRoleSelection)
	require.False(t, p.ID.IsZero())

	t.Run("freelancer without skills is rejected locally", func(t *testing.T) {
		err := h.ctrl.CompleteRegistration(context.Background(), session.Registration{Country: "AU"}, marketsdk.RoleFreelancer, "")
		require.True(t, session.IsKind(err, session.KindValidation))
		require.Zero(t, h.Hits(marketsdk.PathGoogleRegister))

		_, ok := h.ctrl.Pending(context.Background())
		require.True(t, ok)
	})

	t.Run("completing reuses the held credential", func(t *testing.T) {
		err := h.ctrl.CompleteRegistration(context.Background(), session.Registration{
			Country:  "AU",
			SkillIDs: []int{4},
		}, marketsdk.RoleFreelancer, "")
		require.NoError(t, err)

		mu.Lock()
		require.Equal(t, "opaque-credential", regBody["idToken"])
		require.Equal(t, "Freelancer", regBody["role"])
		require.NotContains(t, regBody, "password")
		mu.Unlock()

		snap := h.ctrl.Snapshot()
		require.Equal(t, session.StateAuthenticated, snap.State)
		require.False(t, snap.Pending)
		require.Equal(t, 1, h.store.Saves())

		_, ok := h.ctrl.Pending(context.Background())
		require.False(t, ok)
	})
}

func TestAbandonRegistration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, googleMux(t, func() bool { return false }))

	err := h.ctrl.LoginWithIdentityProvider(context.Background(), "cred")
	require.True(t, session.IsKind(err, session.KindRegistrationRequired))
	require.True(t, h.ctrl.Snapshot().Pending)

	require.NoError(t, h.ctrl.AbandonRegistration(context.Background()))
	require.False(t, h.ctrl.Snapshot().Pending)
}

func TestLoginWithIdentityProviderOtherFailure(t *testing.T) {
	t.Parallel()

	mux := backendMux(t)
	mux.HandleFunc("POST /google-login", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid Google token"})
	})
	h := newHarness(t, mux)

	err := h.ctrl.LoginWithIdentityProvider(context.Background(), "cred")
	require.True(t, session.IsKind(err, session.KindAuthentication))

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAnonymous, snap.State)
	require.False(t, snap.Pending)
	require.Equal(t, "Invalid Google token", snap.LastError.Message)
	require.Empty(t, h.Routes())
}

// ============================================================================
// Password registration
// ============================================================================

func TestCompleteRegistrationWithPassword(t *testing.T) {
	t.Parallel()

	mux := backendMux(t)
	mux.HandleFunc("POST /register/client", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusCreated, marketsdk.MessageResponse{Message: "registered"})
	})
	h := newHarness(t, mux)

	err := h.ctrl.CompleteRegistration(context.Background(), session.Registration{
		Email:    "user@example.com",
		Password: "secret1",
		FullName: "Test User",
		Country:  "AU",
	}, marketsdk.RoleClient, "")
	require.NoError(t, err)

	require.Equal(t, 1, h.Hits(marketsdk.PathRegisterClient))
	require.Equal(t, 1, h.Hits(marketsdk.PathLogin))
	require.Equal(t, session.StateAuthenticated, h.ctrl.Snapshot().State)
	require.Equal(t, "A", h.store.Entries()["jwtToken"])
}

func TestCompleteRegistrationPasswordWinsOverHeldCredential(t *testing.T) {
	t.Parallel()

	mux := googleMux(t, func() bool { return false })
	mux.HandleFunc("POST /register/client", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusCreated, marketsdk.MessageResponse{Message: "registered"})
	})
	mux.HandleFunc("POST /google-register", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, marketsdk.AuthResponse{AccessToken: "G", RefreshToken: "GR", ExpiresAt: farFuture})
	})
	h := newHarness(t, mux)

	err := h.ctrl.LoginWithIdentityProvider(context.Background(), "held-credential")
	require.True(t, session.IsKind(err, session.KindRegistrationRequired))

	err = h.ctrl.CompleteRegistration(context.Background(), session.Registration{
		Email:    "user@example.com",
		Password: "secret1",
		FullName: "Test User",
		Country:  "AU",
	}, marketsdk.RoleClient, "")
	require.NoError(t, err)

	require.Zero(t, h.Hits(marketsdk.PathGoogleRegister))
	require.Equal(t, 1, h.Hits(marketsdk.PathRegisterClient))
	require.Equal(t, "A", h.store.Entries()["jwtToken"])
	require.False(t, h.ctrl.Snapshot().Pending)
}

func TestCompleteRegistrationValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))

	t.Run("freelancer needs a skill", func(t *testing.T) {
		err := h.ctrl.CompleteRegistration(context.Background(), session.Registration{
			Email:    "ada@example.com",
			Password: "pw",
			FullName: "Ada",
			Country:  "GB",
		}, marketsdk.RoleFreelancer, "")

		var ae *session.AuthError
		require.True(t, errors.As(err, &ae))
		require.Equal(t, session.KindValidation, ae.Kind)
		require.Equal(t, map[string]string{"skillIds": "select at least one skill"}, ae.Fields)
	})

	t.Run("unknown role", func(t *testing.T) {
		err := h.ctrl.CompleteRegistration(context.Background(), session.Registration{}, "Admin", "")
		require.True(t, session.IsKind(err, session.KindValidation))
	})

	require.Zero(t, h.Hits(marketsdk.PathRegisterFreelancer))
	require.Zero(t, h.Hits(marketsdk.PathRegisterClient))
}

// ============================================================================
// Restore and expiry
// ============================================================================

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("unexpired session", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, backendMux(t))
		require.NoError(t, h.store.Save(context.Background(), store.Credentials{
			AccessToken: "A", RefreshToken: "R", ExpiresAt: time.Now().Add(time.Hour),
		}))

		require.NoError(t, h.ctrl.Restore(context.Background()))

		snap := h.ctrl.Snapshot()
		require.Equal(t, session.StateAuthenticated, snap.State)
		require.Equal(t, "user@example.com", snap.User.Email)
	})

	t.Run("expired session is cleared", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, backendMux(t))
		require.NoError(t, h.store.Save(context.Background(), store.Credentials{
			AccessToken: "A", RefreshToken: "R", ExpiresAt: time.Now().Add(-time.Minute),
		}))

		require.NoError(t, h.ctrl.Restore(context.Background()))

		require.Equal(t, session.StateAnonymous, h.ctrl.Snapshot().State)
		require.Empty(t, h.store.Entries())
		require.Zero(t, h.Hits(marketsdk.PathMe))
	})

	t.Run("rejected token is cleared", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, backendMux(t))
		require.NoError(t, h.store.Save(context.Background(), store.Credentials{
			AccessToken: "revoked", RefreshToken: "R", ExpiresAt: time.Now().Add(time.Hour),
		}))

		err := h.ctrl.Restore(context.Background())
		require.True(t, session.IsKind(err, session.KindAuthorization))
		require.Equal(t, session.StateAnonymous, h.ctrl.Snapshot().State)
		require.Empty(t, h.store.Entries())
	})

	t.Run("unreadable store counts as empty", func(t *testing.T) {
		t.Parallel()

		ctrl := session.New(session.Config{
			Client: marketsdk.NewSDKClient("http://127.0.0.1:0"),
			Store:  brokenStore{},
			Logger: slogx.Discard(),
		})

		require.NoError(t, ctrl.Restore(context.Background()))
		require.Equal(t, session.StateAnonymous, ctrl.Snapshot().State)
	})
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, store.Credentials) error { return errors.New("disk full") }
func (brokenStore) Load(context.Context) (store.Credentials, error) {
	return store.Credentials{}, errors.New("permission denied")
}
func (brokenStore) Clear(context.Context) error { return errors.New("permission denied") }
func (brokenStore) Close() error                { return nil }

func TestExpiredSessionReadsAnonymous(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Now()
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	h := newHarness(t, backendMux(t))
	ctrl := session.New(session.Config{
		Client: marketsdk.NewSDKClient("http://127.0.0.1:0"),
		Store:  h.store,
		Logger: slogx.Discard(),
		Now:    clock,
	})

	require.NoError(t, h.store.Save(context.Background(), store.Credentials{
		AccessToken: "A", RefreshToken: "R", ExpiresAt: now.Add(time.Minute),
	}))

	// Profile fetch fails against the dead address; the session still stands
	err := ctrl.Restore(context.Background())
	require.True(t, session.IsKind(err, session.KindTransport))
	require.Equal(t, session.StateAuthenticated, ctrl.Snapshot().State)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	require.Equal(t, session.StateAnonymous, ctrl.Snapshot().State)

	_, err = ctrl.Client(context.Background())
	require.ErrorIs(t, err, session.ErrNotAuthenticated)
	require.Empty(t, h.store.Entries())
}

// ============================================================================
// Ordering
// ============================================================================

func TestSubscribersSeeTransitionsInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, backendMux(t))

	var seen []string
	unsubscribe := h.ctrl.Subscribe(func(s session.Snapshot) {
		label := s.State.String()
		if s.User != nil {
			label += "+profile"
		}
		seen = append(seen, label)
	})

	login(t, h)
	unsubscribe()
	require.NoError(t, h.ctrl.Logout(context.Background()))

	require.Equal(t, []string{
		"anonymous",
		"authenticating",
		"authenticated",
		"authenticated+profile",
	}, seen)

	require.Equal(t, []string{
		"anonymous->authenticating",
		"authenticating->authenticated",
		"authenticated->anonymous",
	}, h.metrics.transitions)
}

func TestStaleProfileFetchIsDiscarded(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})

	base := backendMux(t)
	slow := http.NewServeMux()
	slow.Handle("/", base)
	slow.HandleFunc("GET /User/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer OLD" {
			close(entered)
			<-release
			httpx.WriteJSON(w, http.StatusOK, marketsdk.UserProfile{FullName: "Old User", Role: marketsdk.RoleClient})
			return
		}
		base.ServeHTTP(w, r)
	})
	h := newHarness(t, slow)

	require.NoError(t, h.store.Save(context.Background(), store.Credentials{
		AccessToken: "OLD", RefreshToken: "R", ExpiresAt: time.Now().Add(time.Hour),
	}))

	restored := make(chan error, 1)
	go func() { restored <- h.ctrl.Restore(context.Background()) }()

	<-entered
	login(t, h)
	close(release)
	require.NoError(t, <-restored)

	snap := h.ctrl.Snapshot()
	require.Equal(t, session.StateAuthenticated, snap.State)
	require.Equal(t, "Test User", snap.User.FullName)
	require.Equal(t, "A", h.store.Entries()["jwtToken"])
}
