// Package events publishes completed conversation turns on NATS so other
// services can follow what the assistant is doing.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/metrics"
)

// DefaultPrefix namespaces every subject this package publishes.
const DefaultPrefix = "portfoliobuddy."

// drainTimeout bounds how long Close waits for buffered events to flush.
const drainTimeout = 10 * time.Second

// ErrNotConnected is returned when publishing on a closed, draining or
// disconnected bus.
var ErrNotConnected = errors.New("event bus not connected")

// Config configures the bus.
type Config struct {
	URL    string
	Prefix string
	Name   string
}

// DefaultConfig returns defaults for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: DefaultPrefix,
		Name:   "portfoliobuddy",
	}
}

// TurnMessage is the JSON payload published for each turn.
type TurnMessage struct {
	ID        uuid.UUID           `json:"id"`
	Type      string              `json:"type"`
	Turn      assistant.TurnEvent `json:"turn"`
	Timestamp time.Time           `json:"timestamp"`
}

const typeTurnCompleted = "turn.completed"

// Handler processes a received turn message.
type Handler func(msg *TurnMessage) error

// Bus publishes turn events. It implements assistant.TurnSink.
type Bus struct {
	nc     *nats.Conn
	prefix string

	closeOnce sync.Once
	closed    chan struct{}
}

var _ assistant.TurnSink = (*Bus)(nil)

// Connect dials NATS and returns a bus. Reconnects are unbounded.
func Connect(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "portfoliobuddy"
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	bus := NewBus(nc, cfg.Prefix)
	log.Info().Str("nats_url", cfg.URL).Str("prefix", bus.prefix).Msg("Event bus connected")
	return bus, nil
}

// NewBus wraps an existing connection.
func NewBus(nc *nats.Conn, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	b := &Bus{nc: nc, prefix: prefix, closed: make(chan struct{})}
	if nc != nil {
		nc.SetClosedHandler(func(*nats.Conn) {
			b.closeOnce.Do(func() { close(b.closed) })
		})
	}
	return b
}

// TurnSubject returns the subject turns with the given intent are
// published on, e.g. portfoliobuddy.turns.stock_analysis.
func (b *Bus) TurnSubject(intent assistant.Intent) string {
	if intent == "" {
		intent = assistant.IntentGeneralQuestion
	}
	return fmt.Sprintf("%sturns.%s", b.prefix, intent)
}

// RecordTurn publishes ev on the turn subject for its intent.
func (b *Bus) RecordTurn(ctx context.Context, ev assistant.TurnEvent) (err error) {
	defer func() { metrics.RecordEventPublish(err) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if b.nc == nil || b.nc.IsClosed() || b.nc.IsDraining() || !b.nc.IsConnected() {
		return ErrNotConnected
	}

	msg := TurnMessage{
		ID:        uuid.New(),
		Type:      typeTurnCompleted,
		Turn:      ev,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	subject := b.TurnSubject(ev.Intent)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish turn event: %w", err)
	}

	log.Debug().
		Str("message_id", msg.ID.String()).
		Str("user_id", ev.UserID).
		Str("subject", subject).
		Msg("Published turn event")
	return nil
}

// Subscription wraps a NATS subscription.
type Subscription struct {
	sub     *nats.Subscription
	subject string
}

// Subject returns the subscribed subject.
func (s *Subscription) Subject() string { return s.subject }

// Unsubscribe stops delivery.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// SubscribeTurns delivers turns for intent, or for every intent when
// intent is empty.
func (b *Bus) SubscribeTurns(intent assistant.Intent, handler Handler) (*Subscription, error) {
	subject := b.prefix + "turns.>"
	if intent != "" {
		subject = b.TurnSubject(intent)
	}

	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var msg TurnMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("Failed to unmarshal turn event")
			return
		}
		if err := handler(&msg); err != nil {
			log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("Turn event handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to turn events")
	return &Subscription{sub: sub, subject: subject}, nil
}

// Flush waits until the server has processed everything published so far.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Close drains the connection and waits until buffered events have been
// flushed and the connection is closed.
func (b *Bus) Close() error {
	if b.nc == nil || b.nc.IsClosed() {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	select {
	case <-b.closed:
	case <-time.After(drainTimeout):
		b.nc.Close()
		return fmt.Errorf("timed out draining NATS connection after %s", drainTimeout)
	}

	log.Info().Msg("Event bus closed")
	return nil
}
