package core

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// originPolicy validates Origin/Referer against the allowed list.
type originPolicy struct {
	allowed map[string]struct{}
}

func newOriginPolicy(cfg Config) originPolicy {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}
	return originPolicy{allowed: allowed}
}

func (p originPolicy) isAllowed(origin string) bool {
	if origin == "" {
		// Same-origin navigation (no Origin header) is allowed.
		return true
	}
	if len(p.allowed) == 0 {
		return false
	}
	_, ok := p.allowed[strings.ToLower(origin)]
	return ok
}

func requestOrigin(r *http.Request) string {
	origin := r.Header.Get("Origin")
	referer := r.Header.Get("Referer")
	if origin == "" && referer != "" {
		if u, err := url.Parse(referer); err == nil {
			origin = u.Scheme + "://" + u.Host
		}
	}
	// a page posting to its own host is same-origin
	if origin != "" && r.Host != "" {
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return ""
		}
	}
	return origin
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	policy := newOriginPolicy(cfg)
	return func(c *gin.Context) {
		origin := requestOrigin(c.Request)

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !policy.isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c.Writer.Header(), origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !policy.isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c.Writer.Header(), origin)
		}
		c.Next()
	}
}

// OriginRefererHTTP is OriginRefererMiddleware for net/http.
func OriginRefererHTTP(cfg Config, next http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := requestOrigin(r)
		if !policy.isAllowed(origin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			return
		}
		if origin != "" {
			setCORSHeaders(w.Header(), origin)
		}
		if r.Method == http.MethodOptions && origin != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Vary", "Origin")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// csrfGuard issues and validates a per-visitor CSRF token kept in the
// visitor cookie.
type csrfGuard struct {
	cfg   Config
	store *sessions.CookieStore
}

// check returns the visitor's token, or a non-zero status when the request
// must be rejected.
func (g csrfGuard) check(w http.ResponseWriter, r *http.Request) (string, int, string) {
	session, err := g.store.Get(r, visitorSessionName)
	if err != nil && !session.IsNew {
		return "", http.StatusInternalServerError, "session error"
	}

	token, _ := session.Values["csrf_token"].(string)
	if token == "" {
		token, err = generateCSRFToken()
		if err != nil {
			return "", http.StatusInternalServerError, "failed to issue csrf token"
		}
		session.Values["csrf_token"] = token
		applySessionOptions(g.cfg, session)
		if err := session.Save(r, w); err != nil {
			return "", http.StatusInternalServerError, "failed to persist session"
		}
	}

	if !isSafeMethod(r.Method) && !csrfExemptPath(r.URL.Path) {
		sent := r.Header.Get("X-CSRF-Token")
		if sent == "" {
			sent = r.PostFormValue("csrf_token")
		}
		if sent == "" || sent != token {
			return token, http.StatusForbidden, "invalid csrf token"
		}
	}

	// Expose token so pages and scripts can reuse it.
	w.Header().Set("X-CSRF-Token", token)
	return token, 0, ""
}

// CSRFMiddleware issues and validates a per-visitor CSRF token.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	g := csrfGuard{cfg: cfg, store: store}
	return func(c *gin.Context) {
		token, status, msg := g.check(c.Writer, c.Request)
		if status != 0 {
			code := "FORBIDDEN"
			if status == http.StatusInternalServerError {
				code = "INTERNAL_SERVER_ERROR"
			}
			respondError(c, status, code, msg)
			c.Abort()
			return
		}
		c.Set("csrf_token", token)
		c.Next()
	}
}

// CSRFHTTP is CSRFMiddleware for net/http.
func CSRFHTTP(cfg Config, store *sessions.CookieStore, next http.Handler) http.Handler {
	g := csrfGuard{cfg: cfg, store: store}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, status, msg := g.check(w, r)
		if status != 0 {
			code := "FORBIDDEN"
			if status == http.StatusInternalServerError {
				code = "INTERNAL_SERVER_ERROR"
			}
			writeError(w, status, code, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfTokenOf returns the token issued to r by the CSRF middleware.
func csrfTokenOf(w http.ResponseWriter) string {
	return w.Header().Get("X-CSRF-Token")
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Paths that intentionally skip CSRF validation: the login flow creates the
// session the token is bound to.
func csrfExemptPath(path string) bool {
	switch path {
	case "/api/v1/auth/login", "/api/v1/auth/register":
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = cfg.SessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
