// Package session owns the authentication state of the running client: who is
// signed in, with which credentials, and what the user should see next.
//
// All state lives in a Controller. Consumers read it through Snapshot or
// Subscribe; nothing else reads the token store directly.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/metrics"
	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
)

// State is where the controller is in the sign-in lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Routes the controller navigates to after a transition.
const (
	RouteHome                 = "/"
	RouteLogin                = "/login"
	RouteRegisterWithProvider = "/register?provider=google"
)

// Navigator receives the redirects the controller schedules.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Snapshot is a consistent view of the controller at one instant.
type Snapshot struct {
	State State

	// User is nil until the profile fetch completes.
	User      *marketsdk.UserProfile
	ExpiresAt time.Time

	// Pending is true while an identity provider credential is held for
	// registration.
	Pending bool

	LastError *AuthError

	// CanResendVerification is set after a login was refused because the email
	// address is unverified; VerificationEmail is the address to resend to.
	CanResendVerification bool
	VerificationEmail     string
}

// Authenticated reports whether the snapshot holds a live session.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

type Config struct {
	Client    *marketsdk.SDKClient
	Store     store.Store
	Pending   *store.PendingStore
	Navigator Navigator
	Metrics   metrics.Recorder
	Logger    *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	client  *marketsdk.SDKClient
	store   store.Store
	pending *store.PendingStore
	nav     Navigator
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time

	// notifyMu serialises commit+publish so subscribers see transitions in the
	// order they were applied. Always taken before mu.
	notifyMu sync.Mutex

	mu                sync.Mutex
	state             State
	inflight          int
	creds             *store.Credentials
	user              *marketsdk.UserProfile
	lastErr           *AuthError
	canResend         bool
	verificationEmail string

	// generation changes whenever the credentials are replaced or dropped, so
	// work started against an older session can tell it is stale.
	generation uint64

	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a controller and installs it as cfg.Client's OnUnauthorized hook.
// Call Restore to pick up a persisted session.
func New(cfg Config) *Controller {
	if cfg.Pending == nil {
		cfg.Pending = store.NewPendingStore(30 * time.Minute)
	}
	if cfg.Navigator == nil {
		cfg.Navigator = NavigatorFunc(func(string) {})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Controller{
		client:  cfg.Client,
		store:   cfg.Store,
		pending: cfg.Pending,
		nav:     cfg.Navigator,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
		state:   StateAnonymous,
		subs:    make(map[int]func(Snapshot)),
	}

	cfg.Client.OnUnauthorized = c.HandleUnauthorized
	return c
}

// operation tags ctx with a logger naming op.
func (c *Controller) operation(ctx context.Context, op string) (context.Context, *slog.Logger) {
	logger := c.logger.With("op", op)
	return slogx.WithContext(ctx, logger), logger
}

// ============================================================================
// Observation
// ============================================================================

// Snapshot returns the current state. A session whose access token has
// expired reads as anonymous even before anything has cleared it.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:                 c.state,
		LastError:             c.lastErr,
		CanResendVerification: c.canResend,
		VerificationEmail:     c.verificationEmail,
	}

	if _, err := c.pending.Get(context.Background()); err == nil {
		snap.Pending = true
	}

	if c.creds == nil {
		return snap
	}

	if c.creds.Expired(c.now()) {
		if snap.State == StateAuthenticated {
			snap.State = StateAnonymous
		}
		return snap
	}

	snap.ExpiresAt = c.creds.ExpiresAt
	if c.user != nil {
		u := *c.user
		snap.User = &u
	}
	return snap
}

// Subscribe registers fn to receive every snapshot published after a change,
// starting with the current one. fn runs synchronously on the goroutine that
// made the change and must not call back into operations that change state.
// The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	fn(snap)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// commit applies fn under the state lock and, when fn reports a change,
// publishes the resulting snapshot to subscribers.
func (c *Controller) commit(fn func() bool) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	from := c.state
	if !fn() {
		c.mu.Unlock()
		return false
	}
	to := c.state
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for id := 0; id < c.nextSub; id++ {
		if sub, ok := c.subs[id]; ok {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	if from != to {
		c.metrics.RecordTransition(from.String(), to.String())
	}

	for _, sub := range subs {
		sub(snap)
	}
	return true
}

// ============================================================================
// Transitions shared by the operations
// ============================================================================

// begin marks a credential exchange as in flight.
func (c *Controller) begin() {
	c.commit(func() bool {
		c.inflight++
		c.state = StateAuthenticating
		c.lastErr = nil
		return true
	})
}

// settledStateLocked is the state to fall back to once no exchange is in flight.
func (c *Controller) settledStateLocked() State {
	switch {
	case c.inflight > 0:
		return StateAuthenticating
	case c.creds != nil && !c.creds.Expired(c.now()):
		return StateAuthenticated
	default:
		return StateAnonymous
	}
}

// abort ends an exchange without touching the session. ae may be nil when the
// outcome is a redirect rather than an error.
func (c *Controller) abort(ae *AuthError, unverifiedEmail string) {
	c.commit(func() bool {
		c.inflight--
		c.state = c.settledStateLocked()
		c.lastErr = ae
		if ae != nil && ae.Kind == KindUnverifiedEmail {
			c.canResend = true
			c.verificationEmail = unverifiedEmail
		}
		return true
	})
}

// fail reports an error that was caught before any exchange began.
func (c *Controller) fail(ae *AuthError) *AuthError {
	c.commit(func() bool {
		c.lastErr = ae
		return true
	})
	return ae
}

// establish replaces the session with the one in resp, persists it, schedules
// the redirect home and fetches the profile.
func (c *Controller) establish(ctx context.Context, method string, resp *marketsdk.AuthResponse) error {
	logger := slogx.FromContext(ctx)

	expiresAt, err := resp.Expiry()
	if err != nil {
		ae := &AuthError{Kind: KindTransport, Message: "The server sent an unusable session.", Err: err}
		c.abort(ae, "")
		c.metrics.RecordAuthAttempt(method, string(ae.Kind))
		return ae
	}

	creds := store.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	// Keep the backend's spelling unless the expiry came from the token.
	if _, err := marketsdk.ParseTimestamp(resp.ExpiresAt); err == nil {
		creds.ExpiresAtText = resp.ExpiresAt
	}
	if creds.Expired(c.now()) {
		ae := &AuthError{Kind: KindAuthentication, Message: "The server sent an expired session."}
		c.abort(ae, "")
		c.metrics.RecordAuthAttempt(method, string(ae.Kind))
		return ae
	}

	c.commit(func() bool {
		// Persistence failures are not fatal: the session still works for
		// this process, it just won't survive a restart.
		if err := c.store.Save(ctx, creds); err != nil {
			logger.Warn("failed to persist session", "error", err)
		}

		c.inflight--
		c.creds = &creds
		c.user = nil
		c.generation++
		c.state = StateAuthenticated
		c.lastErr = nil
		c.canResend = false
		c.verificationEmail = ""
		return true
	})

	if err := c.pending.Delete(ctx); err != nil {
		logger.Warn("failed to drop pending exchange", "error", err)
	}

	c.metrics.RecordAuthAttempt(method, "success")
	logger.Info("session established", "method", method, "expires_at", expiresAt)
	c.nav.Navigate(RouteHome)

	if err := c.RefreshProfile(ctx); err != nil {
		logger.Warn("profile fetch after sign-in failed", "error", err)
	}

	return nil
}

// dropSessionLocked forgets the session in memory and in the store.
func (c *Controller) dropSessionLocked(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		slogx.FromContext(ctx).Warn("failed to clear persisted session", "error", err)
	}

	c.creds = nil
	c.user = nil
	c.generation++
	c.state = c.settledStateLocked()
}

// expireIfNeeded clears a session whose access token has run out.
func (c *Controller) expireIfNeeded(ctx context.Context) {
	c.commit(func() bool {
		if c.creds == nil || !c.creds.Expired(c.now()) {
			return false
		}
		slogx.FromContext(ctx).Info("session expired")
		c.dropSessionLocked(ctx)
		return true
	})
}

// currentToken returns the live access token and the generation it belongs to.
func (c *Controller) currentToken() (string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.creds == nil || c.creds.Expired(c.now()) {
		return "", 0, false
	}
	return c.creds.AccessToken, c.generation, true
}

// Client returns an SDK session bound to the current access token for calls
// the controller does not wrap. A 401 on any of them ends the session.
func (c *Controller) Client(ctx context.Context) (*marketsdk.Session, error) {
	c.expireIfNeeded(ctx)

	token, _, ok := c.currentToken()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return c.client.NewSession(token), nil
}

// Pending returns the held identity provider exchange, if any.
func (c *Controller) Pending(ctx context.Context) (store.PendingExchange, bool) {
	p, err := c.pending.Get(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to read pending exchange", "error", err)
		}
		return store.PendingExchange{}, false
	}
	return p, true
}
