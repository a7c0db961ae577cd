package marketsdk

import (
	"context"
	"net/http"
	"strings"
)

// ============================================================================
// Login
// ============================================================================

// Login exchanges an email and password for a session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, PathLogin, req)
}

// GoogleLogin exchanges an identity provider credential for a session.
// When the backend does not know the identity the returned error satisfies
// IsRegistrationRequired.
func (c *SDKClient) GoogleLogin(ctx context.Context, idToken string) (*AuthResponse, error) {
	return c.authenticate(ctx, PathGoogleLogin, GoogleLoginRequest{IDToken: idToken})
}

// GoogleRegister creates an account from an identity provider credential and
// returns the new session.
func (c *SDKClient) GoogleRegister(ctx context.Context, req GoogleRegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, PathGoogleRegister, req)
}

// authenticate posts in to path and decodes the session it returns. The
// registration-required sentinel is turned into an error whichever status code
// carried it.
func (c *SDKClient) authenticate(ctx context.Context, path string, in any) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := decodeJSON(resp, &authResp); err != nil {
		return nil, err
	}

	if !authResp.HasTokens() && strings.EqualFold(authResp.Message, MessageGoogleRegisterRequired) {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: MessageGoogleRegisterRequired}
	}

	return &authResp, nil
}

// ============================================================================
// Registration
// ============================================================================

// RegisterClient creates a Client account. Some deployments answer with a
// session straight away, others only with a message; callers should check
// HasTokens on the result.
func (c *SDKClient) RegisterClient(ctx context.Context, req RegisterClientRequest) (*AuthResponse, error) {
	return c.register(ctx, PathRegisterClient, req)
}

// RegisterFreelancer creates a Freelancer account. See RegisterClient.
func (c *SDKClient) RegisterFreelancer(ctx context.Context, req RegisterFreelancerRequest) (*AuthResponse, error) {
	return c.register(ctx, PathRegisterFreelancer, req)
}

func (c *SDKClient) register(ctx context.Context, path string, in any) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := decodeJSON(resp, &authResp); err != nil {
		return nil, err
	}

	return &authResp, nil
}

// ResendVerification asks the backend to send the verification email again.
func (c *SDKClient) ResendVerification(ctx context.Context, email string) (*MessageResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, PathResendVerification, ResendVerificationRequest{Email: email})
	if err != nil {
		return nil, err
	}

	var msg MessageResponse
	if err := decodeJSON(resp, &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}

// ============================================================================
// Logout
// ============================================================================

// Logout notifies the backend that token is no longer in use. It does not go
// through a Session: a rejected token on logout is not an authorization
// failure worth reporting.
func (c *SDKClient) Logout(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, PathLogout, nil, token)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}

	return decodeJSON(resp, nil)
}
