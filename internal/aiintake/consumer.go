// Package aiintake bridges AI-generation completion events from a Kafka
// (Redpanda-compatible) topic into AI_GENERATION_COMPLETE broadcasts on the
// canvas the generated shape belongs to. Grounded on the teacher's
// ws/kafka/consumer.go: same franz-go client shape and PollFetches loop,
// generalized from per-token price/trade topics to a single
// generation-completion topic keyed by canvasId.
package aiintake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
)

// completionEvent is the record value produced by the generation worker.
type completionEvent struct {
	CanvasID string `json:"canvasId"`
	ShapeID  string `json:"shapeId"`
	ImageURL string `json:"imageUrl"`
}

// BroadcastFunc delivers one completed generation to its canvas's
// subscribers. Bound to Hub.broadcast-backed wiring at construction.
type BroadcastFunc func(canvasID, shapeID, imageURL string)

type Config struct {
	Brokers       []string
	ConsumerGroup string
	Topic         string
}

type Consumer struct {
	client    *kgo.Client
	logger    zerolog.Logger
	broadcast BroadcastFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	processed uint64
	failed    uint64
}

func NewConsumer(cfg Config, broadcast BroadcastFunc, logger zerolog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if broadcast == nil {
		return nil, fmt.Errorf("broadcast function is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{client: client, logger: logger, broadcast: broadcast, ctx: ctx, cancel: cancel}, nil
}

func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	processed, failed := c.Metrics()
	c.logger.Info().Uint64("processed", processed).Uint64("failed", failed).Msg("ai intake consumer stopped")
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			fetches := c.client.PollFetches(c.ctx)
			for _, err := range fetches.Errors() {
				c.logger.Error().Err(err.Err).Str("topic", err.Topic).Msg("ai intake fetch error")
			}
			fetches.EachRecord(c.processRecord)
		}
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	var event completionEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal ai generation event")
		c.incrementFailed()
		return
	}
	if event.CanvasID == "" || event.ShapeID == "" {
		c.logger.Warn().Msg("ai generation event missing canvasId or shapeId")
		c.incrementFailed()
		return
	}

	c.broadcast(event.CanvasID, event.ShapeID, event.ImageURL)
	c.incrementProcessed()
}

func (c *Consumer) Metrics() (processed, failed uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.processed, c.failed
}

func (c *Consumer) incrementProcessed() {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
	metrics.AIIntakeProcessedTotal.Inc()
}

func (c *Consumer) incrementFailed() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
	metrics.AIIntakeFailedTotal.Inc()
}
