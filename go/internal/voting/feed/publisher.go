// Package feed mirrors round events onto NATS so production tools can follow
// the show without holding a WebSocket.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection settings for the event feed
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default feed configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "show.events",
		Name:          "livevote",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Envelope wraps every published event
type Envelope struct {
	EventID   string           `json:"eventId"`
	EventType events.EventType `json:"eventType"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

// msgPublisher is the part of *nats.Conn the feed uses
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher publishes round events to core NATS. It implements
// round.Broadcaster and never blocks the caller on the network: the NATS
// client buffers outgoing messages and flushes them in the background.
type Publisher struct {
	conn   msgPublisher
	nc     *nats.Conn
	clock  clockwork.Clock
	config Config
}

// NewPublisher connects to NATS and returns a ready publisher
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := newPublisher(nc, cfg, clockwork.NewRealClock())
	p.nc = nc

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("event feed connected")

	return p, nil
}

func newPublisher(conn msgPublisher, cfg Config, clock clockwork.Clock) *Publisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{
		conn:   conn,
		clock:  clock,
		config: cfg,
	}
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)
}

// Broadcast publishes event. Failures are logged and otherwise ignored.
func (p *Publisher) Broadcast(event events.Event) {
	msg, err := p.message(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.EventType())).Msg("failed to build feed message")
		return
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		log.Warn().
			Err(err).
			Str("subject", msg.Subject).
			Msg("failed to publish event to feed")
		return
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", msg.Header.Get("Event-ID")).
		Msg("published event to feed")
}

func (p *Publisher) message(event events.Event) (*nats.Msg, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	eventID := uuid.New().String()
	data, err := json.Marshal(Envelope{
		EventID:   eventID,
		EventType: event.EventType(),
		Timestamp: p.clock.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return &nats.Msg{
		Subject: p.Subject(event.EventType()),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.EventType())},
			"Event-ID":   []string{eventID},
		},
	}, nil
}

// IsConnected reports whether the NATS connection is currently up
func (p *Publisher) IsConnected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close flushes buffered messages and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
