// Package events publishes canvas mutation notifications onto NATS so
// other services (AI generation workers, audit logging, analytics) can
// react without coupling into the hub's hot path. Grounded on the teacher's
// go-server/pkg/nats Client: same connection-event handler wiring and
// publish-with-metrics shape, generalized from price/trade subjects to
// canvas/shape subjects and from a metrics.MetricsInterface to zerolog.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/odin-collab/canvas-ws-hub/internal/metrics"
)

type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	MaxPingsOut     int
	PingInterval    time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxReconnects:   10,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
		MaxPingsOut:     3,
		PingInterval:    20 * time.Second,
	}
}

// Publisher is a fire-and-forget outbox for canvas/shape mutation events.
// It implements hub.EventPublisher.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func Connect(cfg Config, logger zerolog.Logger) (*Publisher, error) {
	p := &Publisher{logger: logger}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.PingInterval(cfg.PingInterval),
		nats.ConnectHandler(p.onConnect),
		nats.DisconnectErrHandler(p.onDisconnect),
		nats.ReconnectHandler(p.onReconnect),
		nats.ErrorHandler(p.onError),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p.conn = conn
	return p, nil
}

func (p *Publisher) onConnect(c *nats.Conn) {
	p.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats connected")
}

func (p *Publisher) onDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		p.logger.Warn().Err(err).Msg("nats disconnected")
	}
}

func (p *Publisher) onReconnect(c *nats.Conn) {
	p.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
}

func (p *Publisher) onError(_ *nats.Conn, _ *nats.Subscription, err error) {
	p.logger.Error().Err(err).Msg("nats error")
}

// shapeEventSubject mirrors the teacher's Subjects builder pattern, scoped
// to canvas/shape events instead of token price/volume subjects.
func shapeEventSubject(canvasID, event string) string {
	return fmt.Sprintf("canvas.%s.shape.%s", canvasID, event)
}

// PublishShapeEvent marshals payload and publishes it off the calling
// goroutine so a slow or down NATS connection never blocks a broadcast.
func (p *Publisher) PublishShapeEvent(canvasID, event string, payload any) {
	go func() {
		data, err := json.Marshal(payload)
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to marshal shape event")
			metrics.EventPublishFailuresTotal.Inc()
			return
		}
		subject := shapeEventSubject(canvasID, event)
		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish shape event")
			metrics.EventPublishFailuresTotal.Inc()
		}
	}()
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
