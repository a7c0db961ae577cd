package marketsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MessageGoogleRegisterRequired is the sentinel message the backend returns when
// an identity provider credential belongs to nobody it knows yet.
const MessageGoogleRegisterRequired = "GOOGLE_REGISTER_REQUIRED"

// ErrRegistrationRequired matches (via errors.Is) any APIError carrying the
// registration-required sentinel.
var ErrRegistrationRequired = errors.New("marketsdk: registration required")

// APIError is a non-2xx response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int `json:"-"`

	// Message is the backend's human readable message, or the status text when
	// the body carried none.
	Message string `json:"message"`

	// Details contains field-specific validation errors when the backend sends them
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrRegistrationRequired) see through the status code.
func (e *APIError) Is(target error) bool {
	return target == ErrRegistrationRequired && e.Message == MessageGoogleRegisterRequired
}

// parseErrorResponse turns a non-2xx response into an *APIError.
// Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		Message string            `json:"message"`
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Message = errResp.Message
		if apiErr.Message == "" {
			apiErr.Message = errResp.Error
		}
		apiErr.Details = errResp.Details
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		// Some endpoints answer with a bare string
		apiErr.Message = strings.Trim(text, `"`)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsUnverifiedEmail reports whether err is the backend refusing a login because
// the account's email address has not been verified yet.
func IsUnverifiedEmail(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != http.StatusUnauthorized && apiErr.StatusCode != http.StatusForbidden {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "verif")
}

// IsRegistrationRequired reports whether err is the registration-required sentinel.
func IsRegistrationRequired(err error) bool {
	return errors.Is(err, ErrRegistrationRequired)
}

// IsTransport reports whether err happened before any response was received.
func IsTransport(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr)
}
