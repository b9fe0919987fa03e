package core

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type storeContextKey struct{}

// StoreFromContext returns the store opened by the guard for this request.
func StoreFromContext(ctx context.Context) (Store, bool) {
	s, ok := ctx.Value(storeContextKey{}).(Store)
	return s, ok
}

func withStore(r *http.Request, s Store) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), storeContextKey{}, s))
}

// ginAdapter maps guard navigation onto a gin response.
type ginAdapter struct {
	c   *gin.Context
	api bool
}

func (a ginAdapter) OnMount(fn func()) { fn() }

func (a ginAdapter) Redirect(path string, mode NavMode) {
	if a.api {
		status, body := navBody(path, mode)
		a.c.AbortWithStatusJSON(status, body)
		return
	}
	a.c.Redirect(navStatus(mode), path)
	a.c.Abort()
}

// openStore treats an unreachable backend like an empty store.
func openStore(provider StoreProvider, w http.ResponseWriter, r *http.Request) Store {
	store, err := provider.Open(w, r)
	if err != nil {
		log.Printf("session store unavailable: %v", err)
		return nil
	}
	return store
}

// RequireSession guards page routes: unauthorized visitors are bounced to
// the login view and the handlers after it never run.
func RequireSession(guard *Guard, provider StoreProvider) gin.HandlerFunc {
	return requireSession(guard, provider, false)
}

// RequireSessionAPI is RequireSession for JSON endpoints: the bounce is a
// 401 carrying the login path.
func RequireSessionAPI(guard *Guard, provider StoreProvider) gin.HandlerFunc {
	return requireSession(guard, provider, true)
}

func requireSession(guard *Guard, provider StoreProvider, api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := openStore(provider, c.Writer, c.Request)
		m := guard.Mount(c.Request.Context(), store, ginAdapter{c: c, api: api})
		if !m.Render(func() {
			c.Request = withStore(c.Request, store)
			c.Next()
		}) {
			c.Abort()
		}
	}
}

// LogoutHandler runs the logout action; pages get a 303 to the landing view,
// JSON clients the landing path.
func LogoutHandler(logout Logout, provider StoreProvider, api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := openStore(provider, c.Writer, c.Request)
		if err := logout.Run(c.Request.Context(), store, ginAdapter{c: c, api: api}); err != nil {
			log.Printf("logout: clear failed: %v", err)
		}
	}
}

// SessionStatusHandler reports the derived status without redirecting.
func SessionStatusHandler(query SessionQuery, provider StoreProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sessionStatus(c.Request.Context(), query, openStore(provider, c.Writer, c.Request)))
	}
}

func sessionStatus(ctx context.Context, query SessionQuery, store Store) gin.H {
	ok := query.IsAuthenticated(ctx, store)
	body := gin.H{"authenticated": ok}
	if ok {
		if cred, err := store.Get(ctx); err == nil && cred.ExpireAt != "" {
			body["expire_at"] = cred.ExpireAt
		}
	}
	return body
}

// sseAdapter delivers navigation to an open EventSource.
type sseAdapter struct {
	c *gin.Context
}

func (a sseAdapter) OnMount(fn func()) { fn() }

func (a sseAdapter) Redirect(path string, mode NavMode) {
	a.c.SSEvent("redirect", path)
	a.c.Writer.Flush()
}

// SessionEventsHandler keeps a guard mounted for an open dashboard and
// pushes a redirect event once the session is revoked or expires.
func SessionEventsHandler(guard *Guard, provider StoreProvider, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		ctx := c.Request.Context()
		store := openStore(provider, c.Writer, c.Request)
		m := guard.Mount(ctx, store, sseAdapter{c: c})
		defer m.Unmount()
		if m.State() != StateAuthorized {
			return
		}
		c.SSEvent("status", StateAuthorized.String())
		if isSnapshot(store) {
			// the cookie of this request never changes and a Set-Cookie from
			// Clear could no longer be sent; the page polls the status instead
			c.SSEvent("poll", pollSeconds(interval))
			c.Writer.Flush()
			return
		}
		c.Writer.Flush()
		m.Watch(ctx, interval)
	}
}
