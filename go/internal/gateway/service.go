package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Service is the room gateway: the websocket edge plus the REST snapshot and
// metrics endpoints the presentation layer talks to.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	TimerDuration    time.Duration // zero keeps the 25-minute default
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a gateway over st.
func NewService(st store.Store, config Config) *Service {
	connectionManager := NewConnectionManager(st, config.TimerDuration, config.ConnectionConfig)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(st),
	}
}

// Start blocks until ctx is cancelled, then tears down every connection.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("gateway service started")
	<-ctx.Done()

	log.Info().Msg("gateway service shutting down")
	s.connectionManager.CloseAll()
	return nil
}

// RegisterRoutes registers the websocket, snapshot and metrics routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "focushub_gateway"
	return stats
}
