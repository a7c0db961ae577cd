package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/httpx"
	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
)

// ErrNotAuthenticated is returned by operations that need a live session when
// there is none.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// ErrorKind classifies what went wrong so the caller can pick the affordance to
// show (inline field errors, a resend button, a retry button).
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindAuthentication       ErrorKind = "authentication"
	KindUnverifiedEmail      ErrorKind = "unverified_email"
	KindRegistrationRequired ErrorKind = "registration_required"
	KindAuthorization        ErrorKind = "authorization"
	KindTransport            ErrorKind = "transport"
)

// AuthError is the error every Controller operation returns.
type AuthError struct {
	Kind    ErrorKind
	Message string

	// Fields maps form field names to reasons for validation errors.
	Fields map[string]string

	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Retryable reports whether trying the same thing again might work.
func (e *AuthError) Retryable() bool {
	return e.Kind == KindTransport
}

// IsKind reports whether err is an *AuthError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == k
}

func validationError(fields map[string]string) *AuthError {
	return &AuthError{
		Kind:    KindValidation,
		Message: "Please fix the highlighted fields.",
		Fields:  fields,
	}
}

// classify maps an SDK error onto the taxonomy. authenticated tells whether
// the failed request carried a session token: a 401 there means the session
// was rejected, while on a credential exchange it means bad credentials.
func classify(err error, authenticated bool) *AuthError {
	var rlErr *httpx.RateLimitError
	var apiErr *marketsdk.APIError

	switch {
	case errors.As(err, &rlErr):
		return &AuthError{
			Kind:    KindTransport,
			Message: fmt.Sprintf("Too many attempts, try again in %s.", rlErr.RetryAfter.Round(time.Second)),
			Err:     err,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &AuthError{Kind: KindTransport, Message: "The request timed out, try again.", Err: err}
	case marketsdk.IsRegistrationRequired(err):
		return &AuthError{Kind: KindRegistrationRequired, Message: "Finish creating your account to continue.", Err: err}
	case marketsdk.IsUnverifiedEmail(err):
		return &AuthError{Kind: KindUnverifiedEmail, Message: "Please verify your email address before signing in.", Err: err}
	case !errors.As(err, &apiErr):
		return &AuthError{Kind: KindTransport, Message: "Could not reach the server, try again.", Err: err}
	case apiErr.StatusCode == http.StatusUnauthorized && authenticated:
		return &AuthError{Kind: KindAuthorization, Message: "Your session has ended, please sign in again.", Err: err}
	case apiErr.StatusCode == http.StatusUnauthorized:
		return &AuthError{Kind: KindAuthentication, Message: "Invalid email or password.", Err: err}
	case apiErr.StatusCode >= 500:
		return &AuthError{Kind: KindTransport, Message: "The server had a problem, try again.", Err: err}
	default:
		return &AuthError{Kind: KindAuthentication, Message: apiErr.Message, Fields: apiErr.Details, Err: err}
	}
}
