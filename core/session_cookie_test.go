package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// cookieRoundTrip opens the cookie store of a request carrying cookies.
func cookieRoundTrip(backend *CookieBackend, cookies []*http.Cookie) (*httptest.ResponseRecorder, Store) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	store, _ := backend.Open(rec, req)
	return rec, store
}

func TestCookieStoreSurvivesReload(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	backend := NewCookieBackend(cfg, NewCookieCodec(cfg))

	rec, store := cookieRoundTrip(backend, nil)
	exp := future()
	if err := store.Set(ctx, "abc", exp); err != nil {
		t.Fatalf("set: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != credentialSessionName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}

	_, reloaded := cookieRoundTrip(backend, cookies)
	cred, err := reloaded.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.Token != "abc" || cred.ExpireAt != FormatExpireAt(exp) {
		t.Fatalf("cred = %+v", cred)
	}

	rec, reloaded = cookieRoundTrip(backend, cookies)
	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("clear did not expire the cookie: %+v", cleared)
	}
}

func TestCookieStoreEmptyToken(t *testing.T) {
	cfg := testConfig()
	_, store := cookieRoundTrip(NewCookieBackend(cfg, NewCookieCodec(cfg)), nil)
	if err := store.Set(context.Background(), "", future()); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("err = %v", err)
	}
}

func TestCookieStoreTamperedCookieIsUnavailable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	backend := NewCookieBackend(cfg, NewCookieCodec(cfg))

	tampered := []*http.Cookie{{Name: credentialSessionName, Value: "not-a-signed-value"}}
	_, store := cookieRoundTrip(backend, tampered)
	if _, err := store.Get(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("get err = %v", err)
	}
	if (SessionQuery{}).IsAuthenticated(ctx, store) {
		t.Fatalf("tampered cookie authenticated")
	}

	// a cookie signed with another key is no better
	other := testConfig()
	other.SessionKey = "another-key-fedcba9876543210fedcba"
	rec, foreign := cookieRoundTrip(NewCookieBackend(other, NewCookieCodec(other)), nil)
	_ = foreign.Set(ctx, "abc", future())
	_, store = cookieRoundTrip(backend, rec.Result().Cookies())
	if (SessionQuery{}).IsAuthenticated(ctx, store) {
		t.Fatalf("foreign cookie authenticated")
	}
}

func TestVisitorIdentityIsStable(t *testing.T) {
	cfg := testConfig()
	visitor := NewVisitorIdentity(cfg, NewCookieCodec(cfg))

	rec := httptest.NewRecorder()
	id, err := visitor.ID(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || id == "" {
		t.Fatalf("id = %q err = %v", id, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	again, err := visitor.ID(httptest.NewRecorder(), req)
	if err != nil || again != id {
		t.Fatalf("second id = %q err = %v, want %q", again, err, id)
	}

	other, _ := visitor.ID(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if other == id {
		t.Fatalf("two visitors share id %q", id)
	}
}

func TestNewStoreProvider(t *testing.T) {
	cfg := testConfig()
	cookies := NewCookieCodec(cfg)

	cases := []struct {
		backend string
		wantErr bool
	}{
		{BackendCookie, false},
		{BackendMemory, false},
		{BackendRedis, true}, // no client
		{"etcd", true},
	}
	for _, tc := range cases {
		cfg.SessionBackend = tc.backend
		_, err := NewStoreProvider(cfg, cookies, nil)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v", tc.backend, err)
		}
	}
}
