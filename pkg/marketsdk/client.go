package marketsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/httpx"
	"github.com/aussiebroadwan/gigboard/pkg/slogx"
)

// SDKClient is a client for the marketplace REST backend.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// OnUnauthorized is invoked whenever an authenticated request made through a
	// Session is rejected with 401. token is the bearer credential that was
	// rejected so the receiver can ignore failures of credentials it no longer
	// holds. Login endpoints never trigger it: a 401 there is bad credentials.
	OnUnauthorized func(ctx context.Context, token string)
}

// NewSDKClient creates a new marketplace client with the default timeout and
// credential endpoint rate limit.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: NewHTTPClient(10*time.Second, httpx.AuthLimit, slog.Default()),
	}
}

// NewHTTPClient builds the HTTP client the SDK expects: every request is logged
// with a request ID, and the credential endpoints are rate limited locally so a
// user repeatedly submitting a form fails fast instead of hammering the backend.
func NewHTTPClient(timeout time.Duration, limit httpx.RateLimitConfig, logger *slog.Logger) *http.Client {
	var transport http.RoundTripper = httpx.NewRateLimitedTransport(
		http.DefaultTransport,
		limit,
		httpx.PathsKeyExtractor(CredentialPaths...),
	)
	transport = slogx.NewTransport(transport, logger)

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewSession wraps an access token for authenticated calls.
func (c *SDKClient) NewSession(accessToken string) *Session {
	return &Session{client: c, accessToken: accessToken}
}
