package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchrelay/go/clients/lobby_api_client"
	"github.com/mcdev12/sketchrelay/go/internal/lobby/config"
	"github.com/mcdev12/sketchrelay/go/internal/lobby/gateway"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := config.Default()
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load config file")
		}
	}
	cfg = cfg.ApplyEnv()

	log.Info().
		Str("port", cfg.Port).
		Str("lobby_api_url", cfg.LobbyAPIURL).
		Str("nats_url", cfg.NATSURL).
		Msg("starting lobby relay")

	// Lobby REST client for room settings and profiles, when configured
	var provider gateway.SettingsProvider
	if cfg.LobbyAPIURL != "" {
		provider = lobby_api_client.NewLobbyApiClient(cfg.LobbyAPIURL, cfg.LobbyAPIToken)
	}

	// Event mirror, when configured
	var publisher gateway.EventPublisher
	if cfg.NATSURL != "" {
		natsCfg := gateway.DefaultNATSPublisherConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.NATSSubjectPrefix

		natsPublisher, err := gateway.NewNATSPublisher(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event mirror")
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Defaults.DrawDurationSeconds = cfg.DrawDurationSeconds
	gatewayConfig.Defaults.TotalRounds = cfg.TotalRounds
	gatewayConfig.HandoffTimeout = cfg.HandoffTimeout()

	relay := gateway.NewService(gatewayConfig, clockwork.NewRealClock(), provider, publisher)

	// Setup HTTP server
	mux := http.NewServeMux()
	relay.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := relay.GetStats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"lobby-relay","connections":%d,"rooms":%d,"timers":%d}`,
			stats.TotalConnections, stats.ActiveRooms, relay.ActiveTimers())
	})

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start relay service (delivery loop)
	go func() {
		if err := relay.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay service failed")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	log.Info().Msg("lobby relay shutdown complete")
}
