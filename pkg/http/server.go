package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/errors"
	"calltriage-server/pkg/metrics"
	"calltriage-server/pkg/version"
)

// CorrelationMiddleware interface for request correlation
type CorrelationMiddleware interface {
	Middleware(next http.Handler) http.Handler
}

// ConnectionChecker reports whether an external collaborator is
// reachable. Used for readiness checks.
type ConnectionChecker interface {
	IsConnected() bool
}

// Server represents the HTTP API server
type Server struct {
	config                *Config
	logger                *logrus.Logger
	httpServer            *http.Server
	mux                   *http.ServeMux
	startTime             time.Time
	wsHub                 *SummaryHub
	amqpClient            ConnectionChecker
	correlationMiddleware CorrelationMiddleware
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux

	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler := http.Handler(mux)
		if server.correlationMiddleware != nil {
			handler = server.correlationMiddleware.Middleware(handler)
		}
		handler.ServeHTTP(w, r)
	})

	// Wrap handlers with middleware that adds the Server header
	addServerHeader := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			next(w, r)
		}
	}

	mux.HandleFunc("/health", addServerHeader(server.HealthHandler))
	mux.HandleFunc("/health/live", addServerHeader(server.LivenessHandler))
	mux.HandleFunc("/health/ready", addServerHeader(server.ReadinessHandler))
	mux.HandleFunc("/status", addServerHeader(server.statusHandler))

	if config.EnableMetrics {
		if registry := metrics.GetRegistry(); registry != nil {
			promHandler := promhttp.HandlerFor(
				registry,
				promhttp.HandlerOpts{
					EnableOpenMetrics: true,
					Registry:          registry,
				},
			)
			mux.HandleFunc(config.MetricsPath, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Server", version.ServerHeader())
				promHandler.ServeHTTP(w, r)
			})
			logger.Info("Prometheus metrics endpoint enabled at " + config.MetricsPath)
		}
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      rootHandler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// SetCorrelationMiddleware sets the correlation ID middleware for request tracking
func (s *Server) SetCorrelationMiddleware(middleware CorrelationMiddleware) {
	s.correlationMiddleware = middleware
	s.logger.Info("Correlation ID middleware configured")
}

// RegisterHandler adds a custom handler to the server
func (s *Server) RegisterHandler(path string, handler http.HandlerFunc) {
	s.mux.HandleFunc(path, handler)
	s.logger.WithField("path", path).Info("Registered HTTP handler")
}

// SetWebSocketHub sets the live summary hub and registers its endpoint
func (s *Server) SetWebSocketHub(hub *SummaryHub) {
	s.wsHub = hub
	if s.config.EnableWebSocket {
		s.mux.HandleFunc("/ws/summaries", hub.ServeWs)
		s.logger.Info("Live summary WebSocket endpoint registered at /ws/summaries")
	}
}

// SetAMQPClient sets the AMQP client reference for readiness checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// statusHandler handles the /status endpoint
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"version":    version.Version,
		"started_at": s.startTime.Format(time.RFC3339),
	}

	if s.wsHub != nil {
		status["websocket_clients"] = s.wsHub.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Warn("HTTP error response sent")
}
