package auth

import (
	"errors"
	"sync"
	"time"
)

var ErrTokenRejected = errors.New("could not refresh")

type tokenKey struct {
	credential     string
	tokenID        string
	refreshTokenID string
}

// TokenRegistry remembers issued refresh tokens so that each one can be
// exchanged exactly once before it expires.
type TokenRegistry struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[tokenKey]time.Time
}

func NewTokenRegistry(ttl time.Duration, now func() time.Time) *TokenRegistry {
	if now == nil {
		now = time.Now
	}
	return &TokenRegistry{
		ttl:    ttl,
		now:    now,
		tokens: map[tokenKey]time.Time{},
	}
}

func (r *TokenRegistry) Store(credential, tokenID, refreshTokenID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, expiration := range r.tokens {
		if expiration.Before(now) {
			delete(r.tokens, key)
		}
	}
	r.tokens[tokenKey{credential, tokenID, refreshTokenID}] = now.Add(r.ttl)
}

// Consume removes the token and fails if it was unknown or expired.
func (r *TokenRegistry) Consume(credential, tokenID, refreshTokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tokenKey{credential, tokenID, refreshTokenID}
	expiration, ok := r.tokens[key]
	if !ok {
		return ErrTokenRejected
	}
	delete(r.tokens, key)

	if expiration.Before(r.now()) {
		return ErrTokenRejected
	}
	return nil
}

// Revoke drops every token issued to credential.
func (r *TokenRegistry) Revoke(credential string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key := range r.tokens {
		if key.credential == credential {
			delete(r.tokens, key)
			n++
		}
	}
	return n
}

func (r *TokenRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
