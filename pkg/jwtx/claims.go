// Package jwtx reads claims out of bearer tokens the client holds but cannot
// verify: backend access tokens and identity provider credentials. Nothing in
// here checks signatures; the backend is the only party that trusts a token.
package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoExpiry  = errors.New("jwtx: token has no exp claim")
)

// Claims is the union of what we care about in access tokens and in OpenID
// Connect ID tokens.
type Claims struct {
	jwt.RegisteredClaims

	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Identity is a display-only hint about who a credential belongs to, used to
// pre-fill registration forms.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Peek decodes the payload of a compact JWS without verifying it.
func Peek(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, ErrMalformed
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	return &claims, nil
}

// ExpiresAt returns the exp claim of token.
func ExpiresAt(token string) (time.Time, error) {
	claims, err := Peek(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.UTC(), nil
}

// PeekIdentity extracts the identity hint carried by an ID token.
func PeekIdentity(token string) (Identity, error) {
	claims, err := Peek(token)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
