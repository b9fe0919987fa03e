package core

import (
	"context"
	"sync"
	"time"
)

type navigation struct {
	path string
	mode NavMode
}

// recordingAdapter stands in for a router framework.
type recordingAdapter struct {
	mu     sync.Mutex
	mounts int
	navs   []navigation
}

func (a *recordingAdapter) OnMount(fn func()) {
	a.mu.Lock()
	a.mounts++
	a.mu.Unlock()
	fn()
}

func (a *recordingAdapter) Redirect(path string, mode NavMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.navs = append(a.navs, navigation{path: path, mode: mode})
}

func (a *recordingAdapter) navigations() []navigation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]navigation(nil), a.navs...)
}

// brokenStore fails every operation like a disabled storage.
type brokenStore struct{}

func (brokenStore) Get(context.Context) (Credential, error) {
	return Credential{}, ErrStorageUnavailable
}
func (brokenStore) Set(context.Context, string, time.Time) error { return ErrStorageUnavailable }
func (brokenStore) Clear(context.Context) error                 { return ErrStorageUnavailable }
func (brokenStore) Subscribe(func(SessionEvent)) func()         { return func() {} }

// fakeAuth accepts one email/password pair; alice has ID 7.
type fakeAuth struct {
	mu    sync.Mutex
	users map[string]string
	name  string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: map[string]string{"alice@example.com": "s3cret"}, name: "alice"}
}

func (a *fakeAuth) Authenticate(ctx context.Context, email, password string) (User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pw, ok := a.users[email]; ok && pw == password {
		return User{ID: 7, Username: a.name, Email: email}, nil
	}
	return User{}, ErrInvalidCredentials
}

func (a *fakeAuth) Register(ctx context.Context, username, email, password string) (User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if username == "" || email == "" || password == "" {
		return User{}, ErrInvalidInput
	}
	if _, ok := a.users[email]; ok {
		return User{}, ErrUserExists
	}
	a.users[email] = password
	return User{ID: int64(len(a.users)), Username: username, Email: email}, nil
}

func (a *fakeAuth) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if userID != 7 {
		return ErrUserNotFound
	}
	if newPassword == "" {
		return ErrInvalidInput
	}
	if a.users["alice@example.com"] != oldPassword {
		return ErrIncorrectPassword
	}
	a.users["alice@example.com"] = newPassword
	return nil
}

func (a *fakeAuth) ChangeUsername(ctx context.Context, userID int64, newUsername string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case userID != 7:
		return ErrUserNotFound
	case newUsername == "":
		return ErrInvalidInput
	case newUsername == a.name:
		return ErrSameUsername
	case newUsername == "taken":
		return ErrUserExists
	}
	a.name = newUsername
	return nil
}

func future() time.Time { return time.Now().Add(time.Hour) }
func past() time.Time   { return time.Now().Add(-time.Hour) }

func testConfig() Config {
	cfg := fromSource(func(string) string { return "" })
	cfg.SessionKey = "test-session-key-0123456789abcdef"
	cfg.RecheckInterval = 0
	return cfg
}
