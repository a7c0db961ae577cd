package marketsdk

import (
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/jwtx"
)

// Role is the kind of account a user registers as.
type Role string

const (
	RoleClient     Role = "Client"
	RoleFreelancer Role = "Freelancer"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient, nil
	case "freelancer":
		return RoleFreelancer, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// ============================================================================
// Authentication Types
// ============================================================================

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleLoginRequest is the body of POST /google-login.
type GoogleLoginRequest struct {
	// IDToken is the identity provider credential, passed through verbatim
	IDToken string `json:"idToken"`
}

// AuthResponse is returned by every endpoint that establishes a session.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresAt is the backend's timestamp as sent. See ParseTimestamp.
	ExpiresAt string `json:"expiresAt"`

	Message string `json:"message,omitempty"`
}

// HasTokens reports whether the response carries a session.
func (r *AuthResponse) HasTokens() bool {
	return r != nil && r.AccessToken != ""
}

// timestampLayouts are tried in order. The zone-less layouts cover .NET
// DateTime values serialized without a Kind; those are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a backend timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Expiry parses ExpiresAt. When the backend leaves it out or sends something
// unparsable the exp claim of the access token is used instead.
func (r *AuthResponse) Expiry() (time.Time, error) {
	if r.ExpiresAt != "" {
		if t, err := ParseTimestamp(r.ExpiresAt); err == nil {
			return t, nil
		}
	}

	t, err := jwtx.ExpiresAt(r.AccessToken)
	if err != nil {
		return time.Time{}, fmt.Errorf("no usable expiry in auth response: %w", err)
	}
	return t, nil
}

// ============================================================================
// Registration Types
// ============================================================================

// RegisterClientRequest is the body of POST /register/client.
type RegisterClientRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Country  string `json:"country"`
}

// RegisterFreelancerRequest is the body of POST /register/freelancer.
type RegisterFreelancerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"fullName"`
	Country      string `json:"country"`
	PortfolioURL string `json:"portfolioUrl,omitempty"`
	SkillIDs     []int  `json:"skillIds"`
}

// GoogleRegisterRequest is the body of POST /google-register.
type GoogleRegisterRequest struct {
	IDToken      string `json:"idToken"`
	Country      string `json:"country"`
	Role         Role   `json:"role"`
	PortfolioURL string `json:"portfolioUrl,omitempty"`
	SkillIDs     []int  `json:"skillIds,omitempty"`
}

// ResendVerificationRequest is the body of POST /resend-verification.
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ============================================================================
// Profile Types
// ============================================================================

// UserProfile is the authenticated user as returned by GET /User/me.
type UserProfile struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	ImageURL string `json:"imageUrl,omitempty"`
}
