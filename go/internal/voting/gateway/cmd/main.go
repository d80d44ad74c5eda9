package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcdev12/livevote/go/internal/config"
	"github.com/mcdev12/livevote/go/internal/voting/feed"
	"github.com/mcdev12/livevote/go/internal/voting/gateway"
	"github.com/mcdev12/livevote/go/internal/voting/metrics"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.SetupLogging(cfg, os.Stderr)

	log.Info().
		Int("port", cfg.Port).
		Str("nats_url", cfg.NATS.URL).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("starting livevote gateway")

	gatewayConfig := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		AllowedOrigins:   cfg.AllowedOrigins,
	}
	gatewayConfig.ConnectionConfig.WriteTimeout = cfg.WebSocket.WriteTimeout
	gatewayConfig.ConnectionConfig.ReadTimeout = cfg.WebSocket.ReadTimeout
	gatewayConfig.ConnectionConfig.PingInterval = cfg.WebSocket.PingInterval
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	gatewayConfig.ConnectionConfig.SendBufferSize = cfg.WebSocket.SendBuffer
	// origin checks follow the CORS policy
	gatewayConfig.ConnectionConfig.CheckOrigin = nil

	opts := []gateway.ServiceOption{
		gateway.WithInstrumentation(metrics.NewPrometheusMetrics()),
	}

	var publisher *feed.Publisher
	if cfg.NATS.URL != "" {
		feedConfig := feed.DefaultConfig()
		feedConfig.URL = cfg.NATS.URL
		feedConfig.SubjectPrefix = cfg.NATS.SubjectPrefix

		publisher, err = feed.NewPublisher(feedConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event feed")
		}
		opts = append(opts, gateway.WithEventSinks(publisher))
	} else {
		log.Info().Msg("NATS_URL not set, event feed disabled")
	}

	gatewayService := gateway.NewService(gatewayConfig, opts...)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     gatewayService.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().
		Str("signal", sig.String()).
		Fields(gatewayService.GetStats()).
		Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; the
	// service closes them once the controller stops.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop before shutdown timeout")
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event feed")
		}
	}

	log.Info().Msg("livevote gateway shutdown complete")
}
