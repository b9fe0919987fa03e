package core

import (
	"context"
	"sync"
	"time"
)

// GuardState is the lifecycle of one guarded view.
//
//	checking -> authorized
//	checking -> unauthorized -> redirecting
//	authorized -> unauthorized -> redirecting   (only through Recheck/Watch)
//
// redirecting is terminal for the mount.
type GuardState int

const (
	StateChecking GuardState = iota
	StateAuthorized
	StateUnauthorized
	StateRedirecting
)

func (s GuardState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthorized:
		return "authorized"
	case StateUnauthorized:
		return "unauthorized"
	case StateRedirecting:
		return "redirecting"
	default:
		return "unknown"
	}
}

// NavMode distinguishes a history-replacing bounce from a normal navigation.
type NavMode int

const (
	NavPush NavMode = iota
	NavReplace
)

// Adapter is the contract a routing framework implements for the guard and
// logout action.
type Adapter interface {
	// Redirect navigates to path. It must not render the current view.
	Redirect(path string, mode NavMode)
	// OnMount runs fn when the guarded view is being entered.
	OnMount(fn func())
}

// Guard gates entry to protected views.
type Guard struct {
	Query     SessionQuery
	LoginPath string
	// Observe, when set, is told about every state transition.
	Observe func(from, to GuardState)
}

// NewGuard builds the guard configured by cfg.
func NewGuard(cfg Config) *Guard {
	return &Guard{Query: NewSessionQuery(cfg), LoginPath: firstNonEmpty(cfg.LoginPath, "/login")}
}

// Mount enters a protected view. The returned Mount has already left
// StateChecking once the adapter ran the mount hook.
func (g *Guard) Mount(ctx context.Context, store Store, adapter Adapter) *Mount {
	m := &Mount{guard: g, store: store, adapter: adapter, state: StateChecking}
	adapter.OnMount(func() { m.evaluate(ctx) })
	return m
}

// Mount is one guarded view instance.
type Mount struct {
	guard   *Guard
	store   Store
	adapter Adapter

	mu        sync.Mutex
	state     GuardState
	unmounted bool
}

// State returns the current state.
func (m *Mount) State() GuardState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Render calls view only while authorized and reports whether it did.
// Protected content is therefore never produced in any other state.
func (m *Mount) Render(view func()) bool {
	if m.State() != StateAuthorized {
		return false
	}
	view()
	return true
}

// Recheck derives the status again, e.g. after the store changed.
func (m *Mount) Recheck(ctx context.Context) GuardState {
	m.evaluate(ctx)
	return m.State()
}

// Watch re-checks on every store event and every interval (if > 0) until
// the mount leaves StateAuthorized or ctx ends. It returns the final state.
func (m *Mount) Watch(ctx context.Context, interval time.Duration) GuardState {
	events := make(chan struct{}, 1)
	cancel := m.store.Subscribe(func(SessionEvent) {
		select {
		case events <- struct{}{}:
		default:
		}
	})
	defer cancel()

	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		if st := m.State(); st != StateAuthorized {
			return st
		}
		select {
		case <-ctx.Done():
			return m.State()
		case <-events:
			m.Recheck(ctx)
		case <-tick:
			m.Recheck(ctx)
		}
	}
}

// Unmount detaches the view; later checks no longer navigate.
func (m *Mount) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmounted = true
}

func (m *Mount) evaluate(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateRedirecting || m.unmounted {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ok := m.guard.Query.IsAuthenticated(ctx, m.store)

	m.mu.Lock()
	if m.state == StateRedirecting || m.unmounted {
		m.mu.Unlock()
		return
	}
	from := m.state
	if ok {
		m.state = StateAuthorized
		m.mu.Unlock()
		if from != StateAuthorized {
			m.observe(from, StateAuthorized)
		}
		return
	}
	// unauthorized is left for redirecting before the lock is released so
	// the redirect is issued exactly once
	m.state = StateRedirecting
	m.mu.Unlock()

	m.observe(from, StateUnauthorized)
	m.adapter.Redirect(m.guard.LoginPath, NavReplace)
	m.observe(StateUnauthorized, StateRedirecting)
}

func (m *Mount) observe(from, to GuardState) {
	if m.guard.Observe != nil {
		m.guard.Observe(from, to)
	}
}
