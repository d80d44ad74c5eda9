package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livevote/go/internal/voting/protocol"
	"github.com/mcdev12/livevote/go/internal/voting/round"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Instrumentation records everything the service observes and exposes it over HTTP
type Instrumentation interface {
	round.Metrics
	protocol.Metrics
	Metrics
	Handler() http.Handler
}

// Service wires the round controller, dispatcher and WebSocket transport together
type Service struct {
	connectionManager *ConnectionManager
	controller        *round.Controller
	dispatcher        *protocol.Dispatcher
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	healthChecker     *HealthChecker
	cors              *cors.Cors
	instrumentation   Instrumentation
}

// Config holds configuration for the voting gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
}

// DefaultConfig returns default configuration for the voting gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

type serviceOptions struct {
	clock           clockwork.Clock
	instrumentation Instrumentation
	sinks           []round.Broadcaster
}

// ServiceOption configures a Service
type ServiceOption func(*serviceOptions)

// WithClock sets the clock used by the round controller
func WithClock(clock clockwork.Clock) ServiceOption {
	return func(o *serviceOptions) {
		o.clock = clock
	}
}

// WithInstrumentation attaches metrics to every component
func WithInstrumentation(i Instrumentation) ServiceOption {
	return func(o *serviceOptions) {
		o.instrumentation = i
	}
}

// WithEventSinks adds broadcasters that receive every round event after the
// connected viewers
func WithEventSinks(sinks ...round.Broadcaster) ServiceOption {
	return func(o *serviceOptions) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// NewService creates a new voting gateway service
func NewService(config Config, opts ...ServiceOption) *Service {
	options := serviceOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&options)
	}

	var (
		roundMetrics    round.Metrics
		protocolMetrics protocol.Metrics
		connMetrics     Metrics
	)
	if options.instrumentation != nil {
		roundMetrics = options.instrumentation
		protocolMetrics = options.instrumentation
		connMetrics = options.instrumentation
	}

	c := NewCORS(config.AllowedOrigins)
	if config.ConnectionConfig.CheckOrigin == nil {
		config.ConnectionConfig.CheckOrigin = OriginChecker(c)
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig, connMetrics)

	// viewers first, then external sinks
	bus := append(round.Broadcasters{connectionManager}, options.sinks...)
	controller := round.NewController(bus,
		round.WithClock(options.clock),
		round.WithMetrics(roundMetrics),
	)
	dispatcher := protocol.NewDispatcher(controller, protocolMetrics)
	connectionManager.attach(controller, dispatcher)

	var feeds []ConnectionReporter
	for _, sink := range options.sinks {
		if reporter, ok := sink.(ConnectionReporter); ok {
			feeds = append(feeds, reporter)
		}
	}

	return &Service{
		connectionManager: connectionManager,
		controller:        controller,
		dispatcher:        dispatcher,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(controller),
		healthChecker:     NewHealthChecker(controller, connectionManager, feeds),
		cors:              c,
		instrumentation:   options.instrumentation,
	}
}

// Start runs the round controller until ctx is cancelled, then closes every
// connection
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting voting gateway service")

	err := s.controller.Run(ctx)

	log.Info().Msg("voting gateway service shutting down")
	s.Stop()
	return err
}

// Stop closes all client connections
func (s *Service) Stop() {
	s.connectionManager.CloseAll()
	log.Info().Msg("voting gateway service stopped")
}

// Controller exposes the round controller for direct use
func (s *Service) Controller() *round.Controller {
	return s.controller
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/health", s.healthChecker)
	if s.instrumentation != nil {
		mux.Handle("/metrics", s.instrumentation.Handler())
	}
	log.Info().Msg("voting gateway routes registered")
}

// Handler wraps the routes with CORS and cleartext HTTP/2 support
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return h2c.NewHandler(s.cors.Handler(mux), &http2.Server{})
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "voting_gateway"
	return stats
}
