package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Persisted keys. Every backend stores exactly these two values per visitor.
const (
	KeyToken    = "token"
	KeyExpireAt = "expire_at"
)

// Session backends selectable through SESSION_BACKEND.
const (
	BackendCookie = "cookie"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ExpireAtLayout is the on-disk format of expire_at, the same RFC3339 string the login API returns.
const ExpireAtLayout = time.RFC3339

var (
	// ErrStorageUnavailable wraps any failure of the backing storage.
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrEmptyToken is returned by Set when the caller passes no token.
	ErrEmptyToken = errors.New("empty credential token")
)

// Credential is what the store holds for one visitor. Zero value means logged out.
type Credential struct {
	Token string
	// ExpireAt is the raw expire_at value; empty when absent.
	ExpireAt string
}

// Present reports whether a non-empty token is stored. The token is opaque:
// any non-empty value counts, whitespace included.
func (c Credential) Present() bool {
	return c.Token != ""
}

// Expiry parses ExpireAt. ok is false when the value is absent or malformed.
func (c Credential) Expiry() (t time.Time, ok bool) {
	if c.ExpireAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(ExpireAtLayout, c.ExpireAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatExpireAt renders an expiry instant for storage.
func FormatExpireAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ExpireAtLayout)
}

// snapshotStore is implemented by stores bound to the request they were
// opened for. Re-reading one returns the values that request carried and
// Subscribe never fires, so a long-lived check must ask again through a new
// request instead.
type snapshotStore interface {
	Snapshot() bool
}

func isSnapshot(s Store) bool {
	ss, ok := s.(snapshotStore)
	return ok && ss.Snapshot()
}

// SessionEventKind tells subscribers which mutation happened.
type SessionEventKind string

const (
	EventSet   SessionEventKind = "set"
	EventClear SessionEventKind = "clear"
)

// SessionEvent is delivered to Subscribe callbacks after the store changed.
type SessionEvent struct {
	Kind SessionEventKind
}

// Store is one visitor's credential storage.
// Implementations must treat token and expire_at as one unit on Clear.
type Store interface {
	Get(ctx context.Context) (Credential, error)
	Set(ctx context.Context, token string, expireAt time.Time) error
	Clear(ctx context.Context) error
	// Subscribe registers fn for changes made through any handle of the same
	// visitor's storage. The returned func cancels the subscription.
	Subscribe(fn func(SessionEvent)) (cancel func())
}

// StoreProvider opens the Store bound to the visitor making request r.
type StoreProvider interface {
	Open(w http.ResponseWriter, r *http.Request) (Store, error)
}

// eventBroker fans out session events per visitor inside one process.
type eventBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(SessionEvent)
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[string]map[int]func(SessionEvent))}
}

func (b *eventBroker) subscribe(visitor string, fn func(SessionEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[visitor] == nil {
		b.subs[visitor] = make(map[int]func(SessionEvent))
	}
	b.subs[visitor][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[visitor], id)
			if len(b.subs[visitor]) == 0 {
				delete(b.subs, visitor)
			}
		})
	}
}

func (b *eventBroker) publish(visitor string, ev SessionEvent) {
	b.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(b.subs[visitor]))
	for _, fn := range b.subs[visitor] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	// callbacks run outside the lock so they may call back into the store
	for _, fn := range fns {
		fn(ev)
	}
}
