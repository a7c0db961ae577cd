package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/marketsdk"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Persisted entry keys. Drivers that store entries individually use these
// names; drivers that store one record use them as the record's field names.
const (
	KeyAccessToken  = "jwtToken"
	KeyRefreshToken = "refreshToken"
	KeyExpiresAt    = "tokenExpiresAt"
)

// Keys lists every key a Store owns, in write order.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt}

// Credentials is the persisted half of a session. Token strings are opaque.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time

	// ExpiresAtText is tokenExpiresAt as the backend sent it. Empty means the
	// RFC 3339 UTC form of ExpiresAt.
	ExpiresAtText string
}

// Expired reports whether the access token has expired at now.
func (c Credentials) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Entries renders c as the key/value pairs drivers persist.
func (c Credentials) Entries() map[string]string {
	expiresAt := c.ExpiresAtText
	if expiresAt == "" {
		expiresAt = canonicalExpiry(c.ExpiresAt)
	}

	return map[string]string{
		KeyAccessToken:  c.AccessToken,
		KeyRefreshToken: c.RefreshToken,
		KeyExpiresAt:    expiresAt,
	}
}

// FromEntries rebuilds Credentials from persisted entries. Unless all three
// entries are present and non-empty the result is ErrNotFound; a partial triple
// is never returned.
func FromEntries(entries map[string]string) (Credentials, error) {
	for _, k := range Keys {
		if entries[k] == "" {
			return Credentials{}, ErrNotFound
		}
	}

	text := entries[KeyExpiresAt]
	expiresAt, err := marketsdk.ParseTimestamp(text)
	if err != nil {
		return Credentials{}, errors.Join(ErrNotFound, err)
	}

	creds := Credentials{
		AccessToken:  entries[KeyAccessToken],
		RefreshToken: entries[KeyRefreshToken],
		ExpiresAt:    expiresAt,
	}
	if text != canonicalExpiry(expiresAt) {
		creds.ExpiresAtText = text
	}
	return creds, nil
}

func canonicalExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Store persists session credentials across process restarts. Concrete drivers
// (memory, file, sqlite) implement this.
type Store interface {
	// Save writes all three entries as one unit, replacing whatever was there.
	// Token structure is not validated.
	Save(ctx context.Context, creds Credentials) error

	// Load returns the stored triple or ErrNotFound.
	Load(ctx context.Context) (Credentials, error)

	// Clear removes all three entries. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
