package livevote_client

const (
	// Base URL of a local server
	DefaultBaseURL = "http://localhost:8080"

	// Endpoints
	WebSocketEndpoint = "/ws"
	StateEndpoint     = "/api/round/state"
	StatsEndpoint     = "/ws/stats"
	HealthEndpoint    = "/health"
)
