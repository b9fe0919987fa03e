package core

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
)

// MemoryBackend keeps credentials of all visitors in process memory.
// Used by tests and SESSION_BACKEND=memory; nothing survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Credential
	events  *eventBroker
	visitor *VisitorIdentity
}

// NewMemoryBackend builds an empty backend. visitor may be nil when only For is used.
func NewMemoryBackend(visitor *VisitorIdentity) *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]Credential),
		events:  newEventBroker(),
		visitor: visitor,
	}
}

// For returns the store of one visitor.
func (b *MemoryBackend) For(visitorID string) *MemoryStore {
	return &MemoryStore{backend: b, visitor: visitorID}
}

// Open implements StoreProvider.
func (b *MemoryBackend) Open(w http.ResponseWriter, r *http.Request) (Store, error) {
	id, err := b.visitor.ID(w, r)
	if err != nil {
		return nil, err
	}
	return b.For(id), nil
}

// MemoryStore is the Store of one visitor inside a MemoryBackend.
type MemoryStore struct {
	backend *MemoryBackend
	visitor string
}

func (s *MemoryStore) Get(ctx context.Context) (Credential, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.entries[s.visitor], nil
}

func (s *MemoryStore) Set(ctx context.Context, token string, expireAt time.Time) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.backend.mu.Lock()
	s.backend.entries[s.visitor] = Credential{Token: token, ExpireAt: FormatExpireAt(expireAt)}
	s.backend.mu.Unlock()
	s.backend.events.publish(s.visitor, SessionEvent{Kind: EventSet})
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.backend.mu.Lock()
	_, existed := s.backend.entries[s.visitor]
	delete(s.backend.entries, s.visitor)
	s.backend.mu.Unlock()
	if existed {
		s.backend.events.publish(s.visitor, SessionEvent{Kind: EventClear})
	}
	return nil
}

func (s *MemoryStore) Subscribe(fn func(SessionEvent)) func() {
	return s.backend.events.subscribe(s.visitor, fn)
}

// Put writes a raw credential, bypassing validation. Lets tests and fixtures
// reproduce partial or malformed stores.
func (s *MemoryStore) Put(c Credential) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if c == (Credential{}) {
		delete(s.backend.entries, s.visitor)
		return
	}
	s.backend.entries[s.visitor] = c
}

// VisitorIdentity hands out a stable, signed visitor id cookie. Server-side
// backends key their entries by it, the way a browser keys storage by origin.
type VisitorIdentity struct {
	cfg   Config
	store *sessions.CookieStore
}

const visitorSessionName = "gate_visitor"

// NewVisitorIdentity wraps a gorilla cookie store.
func NewVisitorIdentity(cfg Config, store *sessions.CookieStore) *VisitorIdentity {
	return &VisitorIdentity{cfg: cfg, store: store}
}

// ID returns the visitor id of r, issuing a new cookie on w when none is present.
func (v *VisitorIdentity) ID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := v.store.Get(r, visitorSessionName)
	if err != nil && !sess.IsNew {
		return "", err
	}
	if id, _ := sess.Values["vid"].(string); id != "" {
		return id, nil
	}
	// unreadable or missing cookie: start over with a fresh identity
	id := newVisitorID()
	sess.Values["vid"] = id
	applySessionOptions(v.cfg, sess)
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}
