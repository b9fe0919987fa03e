package core

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	SweeperHeartbeatPrefix = "gate:sweeper:heartbeat:"
	SweeperHeartbeatTTL    = 45 * time.Second
)

// SweeperHeartbeatKey returns Redis key for given sweeper ID.
func SweeperHeartbeatKey(id string) string {
	return SweeperHeartbeatPrefix + id
}

// SweeperHeartbeat is what a sweeper process periodically reports in Redis.
type SweeperHeartbeat struct {
	SweeperID      string    `json:"sweeper_id"`
	Hostname       string    `json:"hostname"`
	PID            int       `json:"pid"`
	IntervalSec    int64     `json:"interval_seconds"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	Status         string    `json:"status"` // starting|idle|sweeping
	Runs           int64     `json:"runs"`
	RemovedTotal   int64     `json:"removed_total"`
	FailedTotal    int64     `json:"failed_total"`
	LastError      string    `json:"last_error,omitempty"`
	LastSweepAt    time.Time `json:"last_sweep_at"`
	MemoryRSSBytes uint64    `json:"memory_rss_bytes"`
	NumGoroutine   int       `json:"num_goroutine"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpdateRuntimeStats overwrites memory and goroutine figures with current values.
func (h *SweeperHeartbeat) UpdateRuntimeStats() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	h.MemoryRSSBytes = ms.Sys
	h.NumGoroutine = runtime.NumGoroutine()
}

// SaveSweeperHeartbeat stores heartbeat JSON with TTL.
func SaveSweeperHeartbeat(ctx context.Context, client redis.UniversalClient, hb SweeperHeartbeat) error {
	hb.UpdatedAt = time.Now()
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return client.Set(ctx, SweeperHeartbeatKey(hb.SweeperID), data, SweeperHeartbeatTTL).Err()
}

// SweeperState aggregates the counters of one sweeper process.
type SweeperState struct {
	mu     sync.Mutex
	hb     SweeperHeartbeat
	period time.Duration
}

func NewSweeperState(sweeperID, hostname string, interval time.Duration) *SweeperState {
	now := time.Now()
	return &SweeperState{
		hb: SweeperHeartbeat{
			SweeperID:   sweeperID,
			Hostname:    hostname,
			PID:         os.Getpid(),
			IntervalSec: int64(interval / time.Second),
			Status:      "starting",
			StartedAt:   now,
			UpdatedAt:   now,
		},
		period: 5 * time.Second,
	}
}

// Start refreshes the heartbeat until ctx ends.
func (s *SweeperState) Start(ctx context.Context, client redis.UniversalClient) {
	s.flush(ctx, client)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client)
		}
	}
}

// SweepStarted marks the process busy.
func (s *SweeperState) SweepStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "sweeping"
}

// SweepFinished records the outcome of one pass.
func (s *SweeperState) SweepFinished(removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "idle"
	s.hb.Runs++
	s.hb.RemovedTotal += int64(removed)
	s.hb.LastSweepAt = time.Now()
	if err != nil {
		s.hb.FailedTotal++
		s.hb.LastError = err.Error()
	}
}

// Snapshot returns a copy of the current heartbeat.
func (s *SweeperState) Snapshot() SweeperHeartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hb
}

func (s *SweeperState) flush(ctx context.Context, client redis.UniversalClient) {
	s.mu.Lock()
	s.hb.UptimeSeconds = int64(time.Since(s.hb.StartedAt).Seconds())
	s.hb.UpdateRuntimeStats()
	hbCopy := s.hb
	s.mu.Unlock()
	_ = SaveSweeperHeartbeat(ctx, client, hbCopy)
}
