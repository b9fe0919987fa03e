package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const credentialSessionName = "gate_session"

// CookieBackend keeps the credential in a signed cookie held by the browser:
// per-origin, survives reloads, never synced anywhere else.
type CookieBackend struct {
	cfg   Config
	store *sessions.CookieStore
}

func NewCookieBackend(cfg Config, store *sessions.CookieStore) *CookieBackend {
	return &CookieBackend{cfg: cfg, store: store}
}

// Open implements StoreProvider. Writes go to w as Set-Cookie headers, so
// they must happen before the response body.
func (b *CookieBackend) Open(w http.ResponseWriter, r *http.Request) (Store, error) {
	return &CookieStore{cfg: b.cfg, store: b.store, w: w, r: r}, nil
}

// CookieStore is the Store view of one request's credential cookie.
type CookieStore struct {
	cfg   Config
	store *sessions.CookieStore
	w     http.ResponseWriter
	r     *http.Request
}

func (s *CookieStore) session() (*sessions.Session, error) {
	sess, err := s.store.Get(s.r, credentialSessionName)
	if err != nil {
		return sess, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return sess, nil
}

func (s *CookieStore) Get(ctx context.Context) (Credential, error) {
	sess, err := s.session()
	if err != nil {
		return Credential{}, err
	}
	token, _ := sess.Values[KeyToken].(string)
	expireAt, _ := sess.Values[KeyExpireAt].(string)
	return Credential{Token: token, ExpireAt: expireAt}, nil
}

func (s *CookieStore) Set(ctx context.Context, token string, expireAt time.Time) error {
	if token == "" {
		return ErrEmptyToken
	}
	// an undecodable cookie is simply replaced
	sess, _ := s.session()
	sess.Values = map[interface{}]interface{}{KeyToken: token}
	if v := FormatExpireAt(expireAt); v != "" {
		sess.Values[KeyExpireAt] = v
	}
	applySessionOptions(s.cfg, sess)
	if err := sess.Save(s.r, s.w); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CookieStore) Clear(ctx context.Context) error {
	sess, _ := s.session()
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(s.cfg, sess)
	sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	if err := sess.Save(s.r, s.w); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Subscribe is a no-op: a browser-held cookie has no invalidation channel,
// so other tabs only notice a logout on their next request.
func (s *CookieStore) Subscribe(fn func(SessionEvent)) func() {
	return func() {}
}

// Snapshot reports true: the store sees only the cookie of its own request.
func (s *CookieStore) Snapshot() bool { return true }
