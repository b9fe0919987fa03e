package core

import (
	"context"
	"time"
)

// SessionQuery derives the authorization status from a Store. The result is
// never cached: every call reads the store again.
type SessionQuery struct {
	// EnforceExpiry additionally requires a parseable expire_at in the future.
	// Off by default: presence of the token alone authorizes.
	EnforceExpiry bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSessionQuery builds the query configured by cfg.
func NewSessionQuery(cfg Config) SessionQuery {
	return SessionQuery{EnforceExpiry: cfg.EnforceExpiry}
}

func (q SessionQuery) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

// IsAuthenticated reports whether s currently holds a usable credential.
// Storage failures count as "no credential". With EnforceExpiry, a stale or
// partial entry is cleared before returning false.
func (q SessionQuery) IsAuthenticated(ctx context.Context, s Store) bool {
	if s == nil {
		return false
	}
	cred, err := s.Get(ctx)
	if err != nil {
		return false
	}
	if !q.EnforceExpiry {
		return cred.Present()
	}
	if exp, ok := cred.Expiry(); ok && cred.Present() && q.now().Before(exp) {
		return true
	}
	// leftover halves (expire_at without token and the reverse) go too
	if cred != (Credential{}) {
		_ = s.Clear(ctx)
	}
	return false
}
