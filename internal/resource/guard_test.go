package resource

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_ShouldAcceptConnection_RejectsAtConnectionCap(t *testing.T) {
	conns := int64(10)
	g := NewGuard(Config{MaxConnections: 10, CPURejectThreshold: 90, MaxGoroutines: 1 << 20}, zerolog.Nop(), &conns)

	ok, reason := g.ShouldAcceptConnection()
	assert.False(t, ok)
	assert.Contains(t, reason, "max connections")
}

func TestGuard_ShouldAcceptConnection_AcceptsUnderCap(t *testing.T) {
	conns := int64(1)
	g := NewGuard(Config{MaxConnections: 10, CPURejectThreshold: 90, MaxGoroutines: 1 << 20}, zerolog.Nop(), &conns)

	ok, reason := g.ShouldAcceptConnection()
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestGuard_ShouldAcceptConnection_RejectsOverCPUThreshold(t *testing.T) {
	conns := int64(0)
	g := NewGuard(Config{MaxConnections: 10, CPURejectThreshold: 50, MaxGoroutines: 1 << 20}, zerolog.Nop(), &conns)
	g.currentCPU.Store(95.0)

	ok, reason := g.ShouldAcceptConnection()
	assert.False(t, ok)
	assert.Contains(t, reason, "CPU")
}

func TestGuard_ShouldAcceptConnection_RejectsOverMemoryLimit(t *testing.T) {
	conns := int64(0)
	g := NewGuard(Config{MaxConnections: 10, CPURejectThreshold: 90, MemoryLimitBytes: 100, MaxGoroutines: 1 << 20}, zerolog.Nop(), &conns)
	g.currentMemory.Store(int64(200))

	ok, reason := g.ShouldAcceptConnection()
	assert.False(t, ok)
	assert.Equal(t, "memory limit exceeded", reason)
}

func TestGuard_AllowBroadcast_RespectsBurstThenDenies(t *testing.T) {
	conns := int64(0)
	g := NewGuard(Config{MaxConnections: 10, CPURejectThreshold: 90, MaxGoroutines: 1 << 20, MaxBroadcastsPerSec: 1}, zerolog.Nop(), &conns)

	allowed := 0
	for i := 0; i < 10; i++ {
		if g.AllowBroadcast() {
			allowed++
		}
	}
	assert.Greater(t, allowed, 0)
	assert.Less(t, allowed, 10, "a tightly capped limiter should not allow every call in a tight burst")
}

func TestGuard_CPUPercent(t *testing.T) {
	conns := int64(0)
	g := NewGuard(DefaultConfig(), zerolog.Nop(), &conns)
	assert.Equal(t, 0.0, g.CPUPercent(), "no sample taken yet")

	g.currentCPU.Store(42.5)
	assert.Equal(t, 42.5, g.CPUPercent())
}

func TestGuard_Stats(t *testing.T) {
	conns := int64(3)
	g := NewGuard(DefaultConfig(), zerolog.Nop(), &conns)

	stats := g.Stats()
	require.Contains(t, stats, "current_connections")
	assert.EqualValues(t, 3, stats["current_connections"])
}
