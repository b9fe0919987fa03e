package core

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusService reads sweeper heartbeats from Redis. It is inert for the
// cookie and memory backends.
type StatusService struct {
	redis redis.UniversalClient
}

// NewStatusService picks up the Redis client of a redis-backed provider.
func NewStatusService(provider StoreProvider) *StatusService {
	if b, ok := provider.(*RedisBackend); ok {
		return &StatusService{redis: b.client}
	}
	return &StatusService{}
}

// Sweepers returns every heartbeat still alive in Redis.
func (s *StatusService) Sweepers(ctx context.Context) ([]SweeperHeartbeat, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	iter := s.redis.Scan(ctx, 0, SweeperHeartbeatPrefix+"*", 100).Iterator()
	var res []SweeperHeartbeat
	for iter.Next(ctx) {
		val, err := s.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var hb SweeperHeartbeat
		if err := json.Unmarshal([]byte(val), &hb); err != nil {
			continue
		}
		res = append(res, hb)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GateStatus is the operational summary served at /api/v1/status.
type GateStatus struct {
	Backend       string `json:"session_backend"`
	EnforceExpiry bool   `json:"enforce_expiry"`
	Sweepers      struct {
		Active       int   `json:"active"`
		Total        int   `json:"total"`
		RemovedTotal int64 `json:"removed_total"`
	} `json:"sweepers"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CollectGateStatus gathers the current status. Sweeper lookup is best-effort.
func CollectGateStatus(ctx context.Context, cfg Config, status *StatusService, startedAt time.Time) GateStatus {
	st := GateStatus{Backend: firstNonEmpty(cfg.SessionBackend, BackendCookie), EnforceExpiry: cfg.EnforceExpiry}

	sweepers, _ := status.Sweepers(ctx)
	st.Sweepers.Total = len(sweepers)
	for _, hb := range sweepers {
		if hb.Status != "starting" {
			st.Sweepers.Active++
		}
		st.Sweepers.RemovedTotal += hb.RemovedTotal
	}

	st.Memory.UsedBytes, st.Memory.TotalBytes = readMemInfo()

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
