package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-gate/core"
)

// The sweeper removes expired credentials from the redis backend and
// announces each removal, so dashboards still open in any tab are bounced
// to the login view without waiting for their next navigation.
func main() {
	dotenv := core.LoadDotenv()
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "sweeper.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	if dotenv != "" {
		log.Printf("loaded environment from %s", dotenv)
	}

	if cfg.SessionBackend != core.BackendRedis {
		log.Fatalf("sweeper needs SESSION_BACKEND=redis (got %q)", cfg.SessionBackend)
	}
	// without expiry enforcement a stale token still authorizes; sweeping it would change that
	if !cfg.EnforceExpiry {
		log.Fatalf("sweeper needs ENFORCE_EXPIRY=true")
	}

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	backend := core.NewRedisBackend(redisClient, nil)
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	id := core.NewProcessID("sweeper")
	hostname, _ := os.Hostname()
	state := core.NewSweeperState(id, hostname, interval)
	go state.Start(ctx, redisClient)
	log.Printf("sweeper started. id=%s interval=%s", id, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state.SweepStarted()
		n, err := backend.Sweep(ctx, time.Now())
		state.SweepFinished(n, err)
		if err != nil {
			log.Printf("[sweeper %s] sweep error: %v", id, err)
		} else if n > 0 {
			log.Printf("[sweeper %s] cleared %d expired sessions", id, n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
