package core

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// DashboardPath is the protected view.
const DashboardPath = "/dashboard"

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, cookies *sessions.CookieStore, provider StoreProvider, flow LoginFlow) *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(pageTemplates)

	guard := NewGuard(cfg)
	logout := NewLogout(cfg)
	statusSvc := NewStatusService(provider)
	startedAt := time.Now()

	// Global middleware: origin/CORS -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(CSRFMiddleware(cfg, cookies))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "landing.html", PageData{Title: "Session Gate"})
	})
	r.GET("/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.html", PageData{Title: "Login"})
	})
	r.GET("/register", func(c *gin.Context) {
		c.HTML(http.StatusOK, "register.html", PageData{Title: "Register"})
	})

	r.GET(DashboardPath, RequireSession(guard, provider), func(c *gin.Context) {
		store, _ := StoreFromContext(c.Request.Context())
		c.HTML(http.StatusOK, "dashboard.html", dashboardData(c.Request.Context(), store, c.GetString("csrf_token"), guard.LoginPath))
	})
	r.POST("/logout", LogoutHandler(logout, provider, false))

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			form := isFormPost(c.Request)
			var req LoginRequest
			if err := c.ShouldBind(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
				return
			}

			store := openStore(provider, c.Writer, c.Request)
			res, err := flow.Login(c.Request.Context(), store, req)
			if err != nil {
				status, code, msg := loginFailure(err)
				if form {
					c.HTML(status, "login.html", PageData{Title: "Login", Error: msg})
					return
				}
				respondError(c, status, code, msg)
				return
			}

			if form {
				c.Redirect(http.StatusSeeOther, DashboardPath)
				return
			}
			c.JSON(http.StatusOK, res)
		})

		api.POST("/auth/register", func(c *gin.Context) {
			form := isFormPost(c.Request)
			var req RegisterRequest
			if err := c.ShouldBind(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
				return
			}

			if _, err := flow.Register(c.Request.Context(), req); err != nil {
				status, code, msg := registerFailure(err)
				if form {
					c.HTML(status, "register.html", PageData{Title: "Register", Error: msg})
					return
				}
				respondError(c, status, code, msg)
				return
			}

			if form {
				c.Redirect(http.StatusSeeOther, guard.LoginPath)
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "registration successful"})
		})

		api.POST("/auth/logout", LogoutHandler(logout, provider, true))

		api.GET("/session", SessionStatusHandler(guard.Query, provider))
		api.GET("/session/events", SessionEventsHandler(guard, provider, cfg.RecheckInterval))

		api.GET("/me", RequireSessionAPI(guard, provider), func(c *gin.Context) {
			claims, ok := verifiedClaims(c.Request, flow.Tokens)
			if !ok {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID, "expire_at": FormatExpireAt(claims.ExpiresAt.Time)})
		})

		user := api.Group("/user", RequireSessionAPI(guard, provider))
		{
			user.POST("/change-password", func(c *gin.Context) {
				claims, ok := verifiedClaims(c.Request, flow.Tokens)
				if !ok {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
					return
				}
				var req ChangePasswordRequest
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
					return
				}
				if err := flow.Auth.ChangePassword(c.Request.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
					status, code, msg := accountFailure(err)
					respondError(c, status, code, msg)
					return
				}
				c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
			})

			user.POST("/change-username", func(c *gin.Context) {
				claims, ok := verifiedClaims(c.Request, flow.Tokens)
				if !ok {
					respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
					return
				}
				var req ChangeUsernameRequest
				if err := c.ShouldBindJSON(&req); err != nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
					return
				}
				if err := flow.Auth.ChangeUsername(c.Request.Context(), claims.UserID, req.NewUsername); err != nil {
					status, code, msg := accountFailure(err)
					respondError(c, status, code, msg)
					return
				}
				c.JSON(http.StatusOK, gin.H{"message": "username changed successfully"})
			})
		}

		api.GET("/status", RequireSessionAPI(guard, provider), func(c *gin.Context) {
			c.JSON(http.StatusOK, CollectGateStatus(c.Request.Context(), cfg, statusSvc, startedAt))
		})
	}

	return r
}

// verifiedClaims checks the stored token with the issuer. Data endpoints
// validate server-side; the page gate does not.
func verifiedClaims(r *http.Request, tokens *TokenIssuer) (*Claims, bool) {
	store, ok := StoreFromContext(r.Context())
	if !ok || tokens == nil {
		return nil, false
	}
	cred, err := store.Get(r.Context())
	if err != nil || !cred.Present() {
		return nil, false
	}
	claims, err := tokens.Verify(cred.Token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func loginFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, ErrStorageUnavailable):
		log.Printf("login: %v", err)
		return http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session storage unavailable"
	default:
		log.Printf("login: %v", err)
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed"
	}
}

func registerFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, "CONFLICT", err.Error()
	default:
		log.Printf("register: %v", err)
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "registration failed"
	}
}

// accountFailure maps errors of the authenticated account endpoints.
func accountFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSameUsername):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, ErrIncorrectPassword):
		return http.StatusBadRequest, "INCORRECT_PASSWORD", err.Error()
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	default:
		log.Printf("account update: %v", err)
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "update failed"
	}
}

func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}
