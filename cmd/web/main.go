package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"session-gate/core"
)

func main() {
	dotenv := core.LoadDotenv()
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "web.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	if dotenv != "" {
		log.Printf("loaded environment from %s", dotenv)
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()
	if err := core.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	var redisClient *redis.Client
	if cfg.SessionBackend == core.BackendRedis {
		redisClient, err = core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
	}

	// Gorilla cookie store signs the credential, visitor and CSRF cookies.
	cookies := core.NewCookieCodec(cfg)
	var provider core.StoreProvider
	if redisClient != nil {
		provider, err = core.NewStoreProvider(cfg, cookies, redisClient)
	} else {
		provider, err = core.NewStoreProvider(cfg, cookies, nil)
	}
	if err != nil {
		log.Fatalf("failed to build session store: %v", err)
	}

	userRepo := core.NewPgUserRepository(db)
	authService := core.NewRepositoryAuthService(userRepo)
	flow := core.LoginFlow{Auth: authService, Tokens: core.NewTokenIssuer(cfg.JWTSecret, "session-gate")}

	if err := core.BootstrapUser(ctx, authService, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap user failed: %v", err)
	}

	var handler http.Handler
	switch cfg.Router {
	case "http":
		handler = core.NewHTTPHandler(cfg, cookies, provider, flow)
	default:
		handler = core.NewRouter(cfg, cookies, provider, flow)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("starting web server on %s router=%s session_backend=%s enforce_expiry=%t",
		srv.Addr, cfg.Router, cfg.SessionBackend, cfg.EnforceExpiry)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}
