package session

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
	"github.com/aussiebroadwan/gigboard/pkg/jwtx"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
)

// Method labels used in metrics and logs.
const (
	methodPassword       = "password"
	methodGoogle         = "google"
	methodGoogleRegister = "google_register"
	methodRegister       = "register"
)

// LoginWithPassword exchanges an email and password for a session.
//
// A refusal because the address is unverified leaves the session untouched
// and sets CanResendVerification. Any other failure leaves the session
// untouched too.
func (c *Controller) LoginWithPassword(ctx context.Context, email, password string) error {
	ctx, _ = c.operation(ctx, "login_password")

	req := marketsdk.LoginRequest{Email: strings.TrimSpace(email), Password: password}
	if errs := req.Validate(); errs != nil {
		return c.fail(validationError(errs))
	}

	c.begin()
	return c.passwordExchange(ctx, methodPassword, req)
}

// passwordExchange runs the /login call for an exchange begin has opened.
func (c *Controller) passwordExchange(ctx context.Context, method string, req marketsdk.LoginRequest) error {
	resp, err := c.client.Login(ctx, req)
	if err != nil {
		ae := classify(err, false)
		slogx.FromContext(ctx).Info("password login failed", "kind", ae.Kind, "error", err)
		c.abort(ae, req.Email)
		c.metrics.RecordAuthAttempt(method, string(ae.Kind))
		return ae
	}

	return c.establish(ctx, method, resp)
}

// LoginWithIdentityProvider exchanges a third-party credential for a session.
// The credential is passed through untouched.
//
// When the backend has never seen the identity, the credential is held as a
// pending exchange, the user is routed to registration and an AuthError of
// kind KindRegistrationRequired is returned. The token store is not written.
func (c *Controller) LoginWithIdentityProvider(ctx context.Context, credential string) error {
	ctx, logger := c.operation(ctx, "login_identity_provider")

	if strings.TrimSpace(credential) == "" {
		return c.fail(validationError(map[string]string{"idToken": "required"}))
	}

	c.begin()

	resp, err := c.client.GoogleLogin(ctx, credential)
	if err == nil {
		return c.establish(ctx, methodGoogle, resp)
	}

	ae := classify(err, false)
	if ae.Kind != KindRegistrationRequired {
		logger.Info("identity provider login failed", "kind", ae.Kind, "error", err)
		c.abort(ae, "")
		c.metrics.RecordAuthAttempt(methodGoogle, string(ae.Kind))
		return ae
	}

	// The hint only pre-fills the registration form; an unreadable
	// credential is still the backend's to judge.
	hint, _ := jwtx.PeekIdentity(credential)

	p, err := c.pending.Put(ctx, store.PendingExchange{
		Credential:            credential,
		AwaitingRoleSelection: true,
		Hint:                  hint,
	})
	if err != nil {
		ae = &AuthError{Kind: KindTransport, Message: "Could not hold your sign-in, try again.", Err: err}
		c.abort(ae, "")
		return ae
	}

	logger.Info("identity unknown to backend, registration required", "pending_id", p.ID)
	c.abort(nil, "")
	c.metrics.RecordAuthAttempt(methodGoogle, string(KindRegistrationRequired))
	c.nav.Navigate(RouteRegisterWithProvider)

	return ae
}

// ResendVerification asks the backend to mail the verification link again.
// An empty email falls back to the address of the last refused login.
func (c *Controller) ResendVerification(ctx context.Context, email string) error {
	ctx, logger := c.operation(ctx, "resend_verification")

	email = strings.TrimSpace(email)
	if email == "" {
		c.mu.Lock()
		email = c.verificationEmail
		c.mu.Unlock()
	}
	if email == "" {
		return c.fail(validationError(map[string]string{"email": "required"}))
	}

	if _, err := c.client.ResendVerification(ctx, email); err != nil {
		ae := classify(err, false)
		logger.Info("resend verification failed", "kind", ae.Kind, "error", err)
		return c.fail(ae)
	}

	logger.Info("verification email requested")
	c.commit(func() bool {
		c.canResend = false
		c.lastErr = nil
		return true
	})
	return nil
}
