package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds static, operator-set resource limits. Deliberately static
// rather than auto-calculated: the teacher's ResourceGuard philosophy is
// predictable rejection behavior over clever capacity inference.
type Config struct {
	MaxConnections     int
	CPURejectThreshold float64 // percent of allocated CPU, e.g. 90.0
	MemoryLimitBytes   int64
	MaxGoroutines      int
	MaxBroadcastsPerSec int
}

func DefaultConfig() Config {
	return Config{
		MaxConnections:      10000,
		CPURejectThreshold:  90.0,
		MemoryLimitBytes:    2 << 30, // 2 GiB
		MaxGoroutines:       50000,
		MaxBroadcastsPerSec: 20000,
	}
}

// Guard enforces Config's limits at connection admission time and gates
// broadcast volume, refusing to let either spiral past what the process
// can actually sustain.
type Guard struct {
	cfg    Config
	logger zerolog.Logger

	cpuMonitor       *CPUMonitor
	broadcastLimiter *rate.Limiter

	currentConns  *int64
	currentCPU    atomic.Value // float64
	currentMemory atomic.Value // int64
}

func NewGuard(cfg Config, logger zerolog.Logger, currentConns *int64) *Guard {
	g := &Guard{
		cfg:              cfg,
		logger:           logger,
		cpuMonitor:       NewCPUMonitor(logger),
		broadcastLimiter: rate.NewLimiter(rate.Limit(cfg.MaxBroadcastsPerSec), cfg.MaxBroadcastsPerSec*2),
		currentConns:     currentConns,
	}
	g.currentCPU.Store(0.0)
	g.currentMemory.Store(int64(0))
	return g
}

// ShouldAcceptConnection runs the admission-time safety checks (spec's
// ambient stack: connection cap, CPU brake, memory brake, goroutine cap).
func (g *Guard) ShouldAcceptConnection() (accept bool, reason string) {
	conns := atomic.LoadInt64(g.currentConns)
	if conns >= int64(g.cfg.MaxConnections) {
		return false, fmt.Sprintf("at max connections (%d)", g.cfg.MaxConnections)
	}

	cpuPct := g.currentCPU.Load().(float64)
	if cpuPct > g.cfg.CPURejectThreshold {
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", cpuPct, g.cfg.CPURejectThreshold)
	}

	mem := g.currentMemory.Load().(int64)
	if g.cfg.MemoryLimitBytes > 0 && mem > g.cfg.MemoryLimitBytes {
		return false, "memory limit exceeded"
	}

	if goros := runtime.NumGoroutine(); goros > g.cfg.MaxGoroutines {
		return false, fmt.Sprintf("goroutine limit exceeded (%d > %d)", goros, g.cfg.MaxGoroutines)
	}

	return true, ""
}

// AllowBroadcast rate-limits the aggregate broadcast volume across all
// canvases, a safety valve independent of the per-stream throttles in
// internal/hub.
func (g *Guard) AllowBroadcast() bool {
	return g.broadcastLimiter.Allow()
}

func (g *Guard) updateOnce() {
	if pct, err := g.cpuMonitor.Percent(); err == nil {
		g.currentCPU.Store(pct)
	} else {
		g.logger.Debug().Err(err).Msg("cpu sample failed")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.currentMemory.Store(int64(mem.Alloc))
}

// StartMonitoring periodically refreshes the CPU and memory readings that
// ShouldAcceptConnection checks against.
func (g *Guard) StartMonitoring(ctx context.Context, interval time.Duration) {
	g.updateOnce()
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.updateOnce()
			}
		}
	}()
}

// CPUPercent returns the most recently sampled CPU usage percentage.
func (g *Guard) CPUPercent() float64 {
	return g.currentCPU.Load().(float64)
}

func (g *Guard) Stats() map[string]any {
	return map[string]any{
		"max_connections":      g.cfg.MaxConnections,
		"current_connections":  atomic.LoadInt64(g.currentConns),
		"cpu_percent":          g.currentCPU.Load().(float64),
		"cpu_reject_threshold": g.cfg.CPURejectThreshold,
		"memory_bytes":         g.currentMemory.Load().(int64),
		"memory_limit_bytes":   g.cfg.MemoryLimitBytes,
		"goroutines":           runtime.NumGoroutine(),
		"cpu_mode":             g.cpuMonitor.Mode(),
	}
}
