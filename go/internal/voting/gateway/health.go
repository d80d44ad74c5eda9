package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ConnectionReporter is implemented by event sinks that hold a network connection
type ConnectionReporter interface {
	IsConnected() bool
}

// HealthStatus is the /health response body
type HealthStatus struct {
	Healthy       bool     `json:"healthy"`
	RoundActive   bool     `json:"round_active"`
	Connections   int      `json:"connections"`
	FeedConnected *bool    `json:"feed_connected,omitempty"`
	Errors        []string `json:"errors"`
}

// HealthChecker reports whether the round controller answers and the event
// feed, if any, is connected
type HealthChecker struct {
	stateProvider     StateProvider
	connectionManager *ConnectionManager
	feeds             []ConnectionReporter
	timeout           time.Duration
}

func NewHealthChecker(provider StateProvider, cm *ConnectionManager, feeds []ConnectionReporter) *HealthChecker {
	return &HealthChecker{
		stateProvider:     provider,
		connectionManager: cm,
		feeds:             feeds,
		timeout:           2 * time.Second,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:     true,
		Connections: h.connectionManager.ConnectionCount(),
		Errors:      []string{},
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	state, err := h.stateProvider.Snapshot(ctx)
	if err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("round controller unavailable: %v", err))
	} else {
		status.RoundActive = state.RoundActive
	}

	if len(h.feeds) > 0 {
		connected := true
		for _, feed := range h.feeds {
			connected = connected && feed.IsConnected()
		}
		status.FeedConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "event feed disconnected")
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
