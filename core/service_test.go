package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu    sync.Mutex
	users map[string]UserRecord
	err   error
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]UserRecord{}} }

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByID(ctx context.Context, id int64) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) update(id int64, fn func(*UserRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for email, u := range m.users {
		if u.ID == id {
			if err := fn(&u); err != nil {
				return err
			}
			m.users[email] = u
			return nil
		}
	}
	return ErrUserNotFound
}

func (m *memUsers) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return m.update(id, func(u *UserRecord) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

func (m *memUsers) UpdateUsername(ctx context.Context, id int64, username string) error {
	taken := func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, u := range m.users {
			if u.Username == username && u.ID != id {
				return true
			}
		}
		return false
	}
	if taken() {
		return ErrUserExists
	}
	return m.update(id, func(u *UserRecord) error {
		u.Username = username
		return nil
	})
}

func (m *memUsers) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if _, ok := m.users[email]; ok {
		return 0, ErrUserExists
	}
	id := int64(len(m.users) + 1)
	m.users[email] = UserRecord{ID: id, Username: username, Email: email, PasswordHash: passwordHash}
	return id, nil
}

func (m *memUsers) HasAny(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users) > 0, m.err
}

func newTestAuth() (*RepositoryAuthService, *memUsers) {
	users := newMemUsers()
	svc := NewRepositoryAuthService(users)
	svc.cost = bcrypt.MinCost
	return svc, users
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestAuth()

	u, err := svc.Register(ctx, " bob ", "bob@example.com", "hunter2")
	if err != nil || u.ID != 1 || u.Username != "bob" {
		t.Fatalf("register = %+v, %v", u, err)
	}
	if rec := users.users["bob@example.com"]; rec.PasswordHash == "hunter2" {
		t.Fatalf("password stored in clear")
	}
	if _, err := svc.Register(ctx, "bob", "bob@example.com", "x"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := svc.Register(ctx, "", "x@example.com", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("invalid err = %v", err)
	}

	if got, err := svc.Authenticate(ctx, "bob@example.com", "hunter2"); err != nil || got.ID != 1 {
		t.Fatalf("authenticate = %+v, %v", got, err)
	}
	for _, pw := range []string{"wrong", ""} {
		if _, err := svc.Authenticate(ctx, "bob@example.com", pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("password %q err = %v", pw, err)
		}
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestAuthenticateReportsRepositoryFailure(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestAuth()
	_, _ = svc.Register(ctx, "bob", "bob@example.com", "hunter2")

	outage := errors.New("connection refused")
	users.err = outage
	_, err := svc.Authenticate(ctx, "bob@example.com", "hunter2")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("outage err = %v, want a non-credential error", err)
	}
	if !errors.Is(err, outage) {
		t.Fatalf("outage err = %v, want it wrapped", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth()
	u, _ := svc.Register(ctx, "bob", "bob@example.com", "hunter2")

	if err := svc.ChangePassword(ctx, u.ID, "wrong", "n3w"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("wrong old password err = %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, "hunter2", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty new password err = %v", err)
	}
	if err := svc.ChangePassword(ctx, 99, "hunter2", "n3w"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user err = %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, "hunter2", "n3w"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob@example.com", "n3w"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestChangeUsername(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestAuth()
	bob, _ := svc.Register(ctx, "bob", "bob@example.com", "hunter2")
	_, _ = svc.Register(ctx, "carol", "carol@example.com", "hunter2")

	cases := []struct {
		name string
		in   string
		want error
	}{
		{"blank", "  ", ErrInvalidInput},
		{"unchanged", "bob", ErrSameUsername},
		{"taken", "carol", ErrUserExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.ChangeUsername(ctx, bob.ID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if err := svc.ChangeUsername(ctx, bob.ID, " robert "); err != nil {
		t.Fatalf("change username: %v", err)
	}
	if got := users.users["bob@example.com"].Username; got != "robert" {
		t.Fatalf("username = %q", got)
	}
}

func TestLoginFlowStoresCredential(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth()
	_, _ = svc.Register(ctx, "bob", "bob@example.com", "hunter2")
	flow := LoginFlow{Auth: svc, Tokens: NewTokenIssuer("secret", "session-gate")}
	store := NewMemoryBackend(nil).For("v1")

	res, err := flow.Login(ctx, store, LoginRequest{Email: "bob@example.com", Password: "hunter2", Expire: -1})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	cred, _ := store.Get(ctx)
	if cred.Token != res.Token || cred.ExpireAt != res.ExpireAt {
		t.Fatalf("stored %+v, returned %+v", cred, res)
	}
	if !(SessionQuery{EnforceExpiry: true}).IsAuthenticated(ctx, store) {
		t.Fatalf("fresh login not authenticated")
	}

	_, err = flow.Login(ctx, store, LoginRequest{Email: "bob@example.com", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad login err = %v", err)
	}
	if again, _ := store.Get(ctx); again != cred {
		t.Fatalf("failed login touched the store")
	}

	if _, err := flow.Login(ctx, nil, LoginRequest{Email: "bob@example.com", Password: "hunter2"}); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("nil store err = %v", err)
	}
}

func TestBootstrapUser(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestAuth()
	cfg := testConfig()
	cfg.BootstrapUser = "admin@example.com"
	cfg.BootstrapPasswordPath = filepath.Join(t.TempDir(), "password")

	if err := BootstrapUser(ctx, svc, users, cfg); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	data, err := os.ReadFile(cfg.BootstrapPasswordPath)
	if err != nil {
		t.Fatalf("read password: %v", err)
	}
	pw := strings.TrimSpace(string(data))
	if len(pw) != 24 {
		t.Fatalf("password length = %d", len(pw))
	}
	if _, err := svc.Authenticate(ctx, "admin@example.com", pw); err != nil {
		t.Fatalf("bootstrap user cannot log in: %v", err)
	}

	// second run is a no-op
	if err := BootstrapUser(ctx, svc, users, cfg); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if len(users.users) != 1 {
		t.Fatalf("users = %d", len(users.users))
	}
}
