package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// EventPublisher mirrors outbound room events to an external bus so consumers
// like scoreboards or moderation tooling can follow games without holding a
// WebSocket. Room state never leaves the relay process; the mirror is
// fire-and-forget.
type EventPublisher interface {
	Publish(roomID string, event *OutboundEvent)
}

// NoopPublisher is the default when no bus is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, *OutboundEvent) {}

// NATSPublisherConfig holds connection settings for the NATS event mirror.
type NATSPublisherConfig struct {
	URL           string
	SubjectPrefix string // e.g. "lobby.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSPublisherConfig returns default NATS mirror configuration.
func DefaultNATSPublisherConfig() NATSPublisherConfig {
	return NATSPublisherConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "lobby.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes room events to NATS subjects of the form
// <prefix>.<room>.<event>.
type NATSPublisher struct {
	nc     *nats.Conn
	config NATSPublisherConfig
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(config NATSPublisherConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", config.URL).Str("subject_prefix", config.SubjectPrefix).Msg("event mirror connected")

	return &NATSPublisher{nc: nc, config: config}, nil
}

// Publish mirrors one event. Failures are logged and swallowed; the mirror
// must never affect relay behavior.
func (p *NATSPublisher) Publish(roomID string, event *OutboundEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Event).Msg("failed to marshal mirrored event")
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, roomID, event.Event)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to mirror event")
	}
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
