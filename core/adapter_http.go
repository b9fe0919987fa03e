package core

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

// httpAdapter maps guard navigation onto a plain net/http response.
type httpAdapter struct {
	w   http.ResponseWriter
	r   *http.Request
	api bool
}

func (a httpAdapter) OnMount(fn func()) { fn() }

func (a httpAdapter) Redirect(path string, mode NavMode) {
	if a.api {
		status, body := navBody(path, mode)
		writeJSON(a.w, status, body)
		return
	}
	http.Redirect(a.w, a.r, path, navStatus(mode))
}

// Protect wraps next so it only runs for authorized visitors. Page requests
// are redirected to the login view.
func Protect(guard *Guard, provider StoreProvider, next http.Handler) http.Handler {
	return protect(guard, provider, next, false)
}

// ProtectAPI is Protect for JSON endpoints.
func ProtectAPI(guard *Guard, provider StoreProvider, next http.Handler) http.Handler {
	return protect(guard, provider, next, true)
}

func protect(guard *Guard, provider StoreProvider, next http.Handler, api bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := openStore(provider, w, r)
		m := guard.Mount(r.Context(), store, httpAdapter{w: w, r: r, api: api})
		m.Render(func() { next.ServeHTTP(w, withStore(r, store)) })
	})
}

// LogoutHTTP is the net/http counterpart of LogoutHandler.
func LogoutHTTP(logout Logout, provider StoreProvider, api bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := openStore(provider, w, r)
		if err := logout.Run(r.Context(), store, httpAdapter{w: w, r: r, api: api}); err != nil {
			log.Printf("logout: clear failed: %v", err)
		}
	})
}

// SessionStatusHTTP is the net/http counterpart of SessionStatusHandler.
func SessionStatusHTTP(query SessionQuery, provider StoreProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionStatus(r.Context(), query, openStore(provider, w, r)))
	})
}

// sseWriter writes server-sent events on a flushable response.
type sseWriter struct {
	w http.ResponseWriter
}

func (s sseWriter) event(name, data string) {
	fmt.Fprintf(s.w, "event:%s\ndata:%s\n\n", name, data)
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s sseWriter) OnMount(fn func()) { fn() }

func (s sseWriter) Redirect(path string, mode NavMode) { s.event("redirect", path) }

// SessionEventsHTTP is the net/http counterpart of SessionEventsHandler.
func SessionEventsHTTP(guard *Guard, provider StoreProvider, interval time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := openStore(provider, w, r)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		sse := sseWriter{w: w}
		m := guard.Mount(r.Context(), store, sse)
		defer m.Unmount()
		if m.State() != StateAuthorized {
			return
		}
		sse.event("status", StateAuthorized.String())
		if isSnapshot(store) {
			sse.event("poll", pollSeconds(interval))
			return
		}
		m.Watch(r.Context(), interval)
	})
}
