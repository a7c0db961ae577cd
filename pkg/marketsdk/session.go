package marketsdk

import (
	"context"
	"net/http"
)

// Session performs requests on behalf of an authenticated user.
// A Session is immutable; after re-authentication create a new one.
type Session struct {
	client      *SDKClient
	accessToken string
}

// AccessToken returns the bearer credential this session sends.
func (s *Session) AccessToken() string {
	return s.accessToken
}

// Me fetches the profile of the authenticated user.
func (s *Session) Me(ctx context.Context) (*UserProfile, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, PathMe, nil)
	if err != nil {
		return nil, err
	}

	var profile UserProfile
	if err := decodeJSON(resp, &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Do performs an arbitrary authenticated JSON request against the backend, for
// endpoints the SDK has no typed wrapper for. in and out may be nil.
func (s *Session) Do(ctx context.Context, method, path string, in, out any) error {
	resp, err := s.doAuthRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	return decodeJSON(resp, out)
}
