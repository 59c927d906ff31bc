package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShapeEventSubject(t *testing.T) {
	assert.Equal(t, "canvas.c1.shape.created", shapeEventSubject("c1", "created"))
	assert.Equal(t, "canvas.c2.shape.deleted", shapeEventSubject("c2", "deleted"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("nats://localhost:4222")
	assert.Equal(t, "nats://localhost:4222", cfg.URL)
	assert.Equal(t, 10, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
}
