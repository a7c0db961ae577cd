// Package google signs users in with Google (or any OpenID Connect issuer)
// from a terminal: the authorization URL is presented to the user, a loopback
// server receives the redirect, and the verified ID token becomes the
// credential handed to the bridge.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/idp"
	"github.com/aussiebroadwan/gigboard/pkg/cryptox"
	"github.com/aussiebroadwan/gigboard/pkg/httpx"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	DefaultIssuer       = "https://accounts.google.com"
	DefaultCallbackAddr = "127.0.0.1:8765"
	callbackPath        = "/callback"
)

type Config struct {
	Issuer       string
	ClientSecret string

	// CallbackAddr is where the loopback redirect listener binds. Port 0
	// picks a free port.
	CallbackAddr string

	// HTTPClient is used for discovery, key fetches and the code exchange.
	HTTPClient *http.Client

	// Present shows the authorization URL to the user.
	Present func(authURL string)

	Logger *slog.Logger
}

// Loader runs discovery against the issuer in the background. Until it has
// succeeded the provider reads as not loaded, the same way a sign-in script
// that is still downloading would.
type Loader struct {
	cfg Config

	mu       sync.Mutex
	provider *Provider
	err      error
	started  bool
}

func NewLoader(cfg Config) *Loader {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = DefaultCallbackAddr
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Present == nil {
		logger := cfg.Logger
		cfg.Present = func(authURL string) {
			logger.Info("open this URL to sign in", "url", authURL)
		}
	}
	return &Loader{cfg: cfg}
}

// Start begins discovery. Calling it again is a no-op.
func (l *Loader) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, l.cfg.HTTPClient), l.cfg.Issuer)

		l.mu.Lock()
		defer l.mu.Unlock()

		if err != nil {
			l.err = fmt.Errorf("google: discovery: %w", err)
			l.cfg.Logger.Warn("identity provider discovery failed", "issuer", l.cfg.Issuer, "error", err)
			return
		}
		l.provider = &Provider{cfg: l.cfg, oidc: provider}
		l.cfg.Logger.Debug("identity provider discovered", "issuer", l.cfg.Issuer)
	}()
}

func (l *Loader) Lookup() (idp.Provider, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.provider == nil {
		return nil, false
	}
	return l.provider, true
}

// Err returns why discovery failed, if it did.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Provider runs one authorization code flow with PKCE per Render.
type Provider struct {
	cfg  Config
	oidc *oidc.Provider

	mu       sync.Mutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	callback func(credential string)
}

func (p *Provider) Initialize(clientID string, callback func(credential string)) error {
	if clientID == "" {
		return errors.New("google: empty client id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.oauth = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     p.oidc.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	p.verifier = p.oidc.Verifier(&oidc.Config{ClientID: clientID})
	p.callback = callback
	return nil
}

// flow is the per-attempt secret material.
type flow struct {
	oauth        oauth2.Config
	state        string
	nonce        string
	codeVerifier string

	once sync.Once
	done chan struct{}
}

// Render starts the loopback listener and presents the authorization URL.
// The listener stops after one successful sign-in or when ctx is cancelled.
func (p *Provider) Render(ctx context.Context) error {
	p.mu.Lock()
	if p.oauth == nil {
		p.mu.Unlock()
		return errors.New("google: render before initialize")
	}
	oauthCfg := *p.oauth
	p.mu.Unlock()

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.cfg.CallbackAddr)
	if err != nil {
		return fmt.Errorf("google: listen on %s: %w", p.cfg.CallbackAddr, err)
	}
	oauthCfg.RedirectURL = "http://" + ln.Addr().String() + callbackPath

	f := &flow{
		oauth:        oauthCfg,
		state:        state,
		nonce:        uuid.NewString(),
		codeVerifier: oauth2.GenerateVerifier(),
		done:         make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get(callbackPath, p.callbackHandler(f))

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.cfg.Logger.Warn("loopback listener stopped", "error", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := f.oauth.AuthCodeURL(f.state,
		oauth2.S256ChallengeOption(f.codeVerifier),
		oidc.Nonce(f.nonce),
	)
	p.cfg.Present(authURL)

	return nil
}

func (p *Provider) callbackHandler(f *flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.NoCache(w)

		if errParam := r.FormValue("error"); errParam != "" {
			http.Error(w, fmt.Sprintf("Sign-in failed: %s - %s", errParam, r.FormValue("error_description")), http.StatusBadRequest)
			return
		}

		code := r.FormValue("code")
		if code == "" || r.FormValue("state") != f.state {
			http.Error(w, "Invalid sign-in response", http.StatusBadRequest)
			return
		}

		ctx := oidc.ClientContext(r.Context(), p.cfg.HTTPClient)

		token, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(f.codeVerifier))
		if err != nil {
			p.cfg.Logger.Warn("code exchange failed", "error", err)
			http.Error(w, "Token exchange failed", http.StatusBadGateway)
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			http.Error(w, "No ID token in response", http.StatusBadGateway)
			return
		}

		p.mu.Lock()
		verifier, callback := p.verifier, p.callback
		p.mu.Unlock()

		idToken, err := verifier.Verify(ctx, rawIDToken)
		if err != nil {
			p.cfg.Logger.Warn("id token verification failed", "error", err)
			http.Error(w, "ID token verification failed", http.StatusUnauthorized)
			return
		}

		if idToken.Nonce != f.nonce {
			http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			return
		}

		delivered := false
		f.once.Do(func() {
			delivered = true
			close(f.done)
		})
		if !delivered {
			http.Error(w, "Sign-in already completed", http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Signed in. You can close this window and return to the terminal.\n"))

		p.cfg.Logger.Info("identity provider sign-in completed", "credential", cryptox.FingerprintToken(rawIDToken))
		callback(rawIDToken)
	}
}
