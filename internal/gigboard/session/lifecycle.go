package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
)

// Restore picks up a persisted session at startup. An unexpired stored session
// makes the controller authenticated straight away and the profile is fetched
// afterwards; the returned error is that fetch's. A store that cannot be read
// counts as empty.
func (c *Controller) Restore(ctx context.Context) error {
	ctx, logger := c.operation(ctx, "restore")

	creds, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("stored session unreadable, starting anonymous", "error", err)
		}
		return nil
	}

	if creds.Expired(c.now()) {
		logger.Info("stored session expired", "expired_at", creds.ExpiresAt)
		if err := c.store.Clear(ctx); err != nil {
			logger.Warn("failed to clear expired session", "error", err)
		}
		return nil
	}

	c.commit(func() bool {
		c.creds = &creds
		c.user = nil
		c.generation++
		c.state = c.settledStateLocked()
		return true
	})
	logger.Info("session restored", "expires_at", creds.ExpiresAt)

	return c.RefreshProfile(ctx)
}

// RefreshProfile fetches the signed-in user's profile. The result is only
// applied if the session it was fetched for is still the current one.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	c.expireIfNeeded(ctx)

	token, generation, ok := c.currentToken()
	if !ok {
		return ErrNotAuthenticated
	}

	profile, err := c.client.NewSession(token).Me(ctx)
	if err != nil {
		// A 401 has already ended the session through HandleUnauthorized.
		return classify(err, true)
	}

	applied := c.commit(func() bool {
		if c.generation != generation || c.creds == nil || c.creds.AccessToken != token {
			return false
		}
		c.user = profile
		return true
	})
	if !applied {
		slogx.FromContext(ctx).Debug("discarding profile fetched for a replaced session")
	}

	return nil
}

// Logout tells the backend (best effort) and then always forgets the session.
func (c *Controller) Logout(ctx context.Context) error {
	ctx, logger := c.operation(ctx, "logout")

	c.mu.Lock()
	var token string
	if c.creds != nil {
		token = c.creds.AccessToken
	}
	c.mu.Unlock()

	if token != "" {
		if err := c.client.Logout(ctx, token); err != nil {
			logger.Info("logout notification failed, clearing session anyway", "error", err)
		}
	}

	if err := c.pending.Delete(ctx); err != nil {
		logger.Warn("failed to drop pending exchange", "error", err)
	}

	c.commit(func() bool {
		c.dropSessionLocked(ctx)
		c.lastErr = nil
		c.canResend = false
		c.verificationEmail = ""
		return true
	})

	logger.Info("logged out")
	c.nav.Navigate(RouteLogin)
	return nil
}

// HandleUnauthorized ends the session because the backend rejected token.
// Rejections of tokens the controller no longer holds are ignored, so a slow
// request from a previous session cannot sign out the current one.
func (c *Controller) HandleUnauthorized(ctx context.Context, token string) {
	dropped := c.commit(func() bool {
		if c.creds == nil || c.creds.AccessToken != token {
			return false
		}
		c.dropSessionLocked(ctx)
		c.lastErr = classify(&marketsdk.APIError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}, true)
		return true
	})
	if !dropped {
		return
	}

	slogx.FromContext(ctx).Warn("access token rejected, session cleared")
	c.metrics.RecordForcedLogout()
	c.nav.Navigate(RouteLogin)
}
