package core

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/sessions"
)

// NewHTTPHandler is the net/http variant of NewRouter: the same views and
// endpoints on a plain ServeMux, sharing the guard, store and logout core.
func NewHTTPHandler(cfg Config, cookies *sessions.CookieStore, provider StoreProvider, flow LoginFlow) http.Handler {
	guard := NewGuard(cfg)
	logout := NewLogout(cfg)
	statusSvc := NewStatusService(provider)
	startedAt := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	page := func(name, title string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			writePage(w, http.StatusOK, name, PageData{Title: title})
		}
	}
	mux.HandleFunc("GET /{$}", page("landing.html", "Session Gate"))
	mux.HandleFunc("GET /login", page("login.html", "Login"))
	mux.HandleFunc("GET /register", page("register.html", "Register"))

	mux.Handle("GET "+DashboardPath, Protect(guard, provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, _ := StoreFromContext(r.Context())
		writePage(w, http.StatusOK, "dashboard.html", dashboardData(r.Context(), store, csrfTokenOf(w), guard.LoginPath))
	})))
	mux.Handle("POST /logout", LogoutHTTP(logout, provider, false))

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		form := isFormPost(r)
		req, err := decodeLogin(r, form)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}

		store := openStore(provider, w, r)
		res, err := flow.Login(r.Context(), store, req)
		if err != nil {
			status, code, msg := loginFailure(err)
			if form {
				writePage(w, status, "login.html", PageData{Title: "Login", Error: msg})
				return
			}
			writeError(w, status, code, msg)
			return
		}

		if form {
			http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		form := isFormPost(r)
		req, err := decodeRegister(r, form)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}

		if _, err := flow.Register(r.Context(), req); err != nil {
			status, code, msg := registerFailure(err)
			if form {
				writePage(w, status, "register.html", PageData{Title: "Register", Error: msg})
				return
			}
			writeError(w, status, code, msg)
			return
		}

		if form {
			http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "registration successful"})
	})

	mux.Handle("POST /api/v1/auth/logout", LogoutHTTP(logout, provider, true))
	mux.Handle("GET /api/v1/session", SessionStatusHTTP(guard.Query, provider))
	mux.Handle("GET /api/v1/session/events", SessionEventsHTTP(guard, provider, cfg.RecheckInterval))
	mux.Handle("GET /api/v1/me", ProtectAPI(guard, provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := verifiedClaims(r, flow.Tokens)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": claims.UserID, "expire_at": FormatExpireAt(claims.ExpiresAt.Time)})
	})))
	mux.Handle("POST /api/v1/user/change-password", ProtectAPI(guard, provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := verifiedClaims(r, flow.Tokens)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		var req ChangePasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
		if err := flow.Auth.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
			status, code, msg := accountFailure(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
	})))
	mux.Handle("POST /api/v1/user/change-username", ProtectAPI(guard, provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := verifiedClaims(r, flow.Tokens)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		var req ChangeUsernameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
		if err := flow.Auth.ChangeUsername(r.Context(), claims.UserID, req.NewUsername); err != nil {
			status, code, msg := accountFailure(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "username changed successfully"})
	})))
	mux.Handle("GET /api/v1/status", ProtectAPI(guard, provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, CollectGateStatus(r.Context(), cfg, statusSvc, startedAt))
	})))

	// Global middleware: request log -> origin/CORS -> CSRF
	return logRequests(OriginRefererHTTP(cfg, CSRFHTTP(cfg, cookies, mux)))
}

func writePage(w http.ResponseWriter, status int, name string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := renderPage(w, name, data); err != nil {
		log.Printf("render %s: %v", name, err)
	}
}

func decodeLogin(r *http.Request, form bool) (LoginRequest, error) {
	var req LoginRequest
	if !form {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	if v := r.PostFormValue("expire"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, err
		}
		req.Expire = n
	}
	return req, nil
}

func decodeRegister(r *http.Request, form bool) (RegisterRequest, error) {
	var req RegisterRequest
	if !form {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	return req, nil
}

// statusRecorder captures the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working behind the recorder.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
