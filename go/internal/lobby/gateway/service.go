package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchrelay/go/internal/lobby/rounds"
	"github.com/mcdev12/sketchrelay/go/internal/lobby/store"
)

// Config holds configuration for the lobby relay service.
type Config struct {
	ConnectionConfig ConnectionConfig
	Defaults         GameDefaults
	HandoffTimeout   time.Duration
}

// DefaultConfig returns default configuration for the lobby relay.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Defaults: GameDefaults{
			DrawDurationSeconds: 80,
			TotalRounds:         3,
		},
		HandoffTimeout: 10 * time.Second,
	}
}

// Service is the lobby relay: WebSocket connections, room-scoped event
// fan-out, round timers, and canvas handoff for late joiners.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	dispatcher        *Dispatcher
	registry          *store.Registry
	rooms             *store.Directory
	rounds            *rounds.Service
	publisher         EventPublisher
}

// NewService wires up the relay. provider may be nil when no lobby API is
// configured; publisher may be nil for no event mirror.
func NewService(config Config, clock clockwork.Clock, provider SettingsProvider, publisher EventPublisher) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	registry := store.NewRegistry()
	rooms := store.NewDirectory()
	handoff := store.NewHandoffBroker(clock, config.HandoffTimeout)

	dispatcher := NewDispatcher(connectionManager, registry, rooms, handoff, provider, config.Defaults)
	roundsSvc := rounds.NewService(clock, dispatcher)
	dispatcher.SetRounds(roundsSvc)

	connectionManager.SetHandler(dispatcher)
	if publisher != nil {
		connectionManager.SetPublisher(publisher)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		dispatcher:        dispatcher,
		registry:          registry,
		rooms:             rooms,
		rounds:            roundsSvc,
		publisher:         publisher,
	}
}

// Start runs the relay's delivery loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting lobby relay service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("lobby relay service shutting down")
	return nil
}

// RegisterRoutes registers the relay's HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("lobby relay routes registered")
}

// GetStats returns statistics about the relay service.
func (s *Service) GetStats() Stats {
	return s.connectionManager.GetStats()
}

// ActiveTimers returns the number of rooms with a running countdown.
func (s *Service) ActiveTimers() int {
	return s.rounds.Active()
}
