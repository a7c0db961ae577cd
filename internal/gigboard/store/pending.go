package store

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/gigboard/pkg/idx"
	"github.com/aussiebroadwan/gigboard/pkg/jwtx"
)

// KeyPendingCredential is where the held identity provider credential lives.
const KeyPendingCredential = "googleIdToken"

// PendingExchange is an identity provider credential the backend did not
// recognise, held until the user picks a role and registration is retried.
type PendingExchange struct {
	ID                    idx.ID
	Credential            string
	AwaitingRoleSelection bool

	// Hint is read from the credential without verification and is only fit
	// for pre-filling forms.
	Hint jwtx.Identity

	CreatedAt time.Time
}

// PendingStore is short-lived, process-scoped storage for at most one
// PendingExchange. Entries older than the TTL read as absent.
type PendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]PendingExchange
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]PendingExchange, 1),
	}
}

// Put replaces any held exchange with p, stamping it with an ID and creation
// time when missing.
func (s *PendingStore) Put(ctx context.Context, p PendingExchange) (PendingExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID.IsZero() {
		p.ID = idx.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	s.entries[KeyPendingCredential] = p
	return p, nil
}

// Get returns the held exchange or ErrNotFound.
func (s *PendingStore) Get(ctx context.Context) (PendingExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[KeyPendingCredential]
	if !ok {
		return PendingExchange{}, ErrNotFound
	}

	if s.ttl > 0 && s.now().Sub(p.CreatedAt) >= s.ttl {
		delete(s.entries, KeyPendingCredential)
		return PendingExchange{}, ErrNotFound
	}

	return p, nil
}

// Delete drops the held exchange. Idempotent.
func (s *PendingStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, KeyPendingCredential)
	return nil
}
