package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/llm-privacy-gateway/internal/config"
	"github.com/raaihank/llm-privacy-gateway/internal/gateway"
	"github.com/raaihank/llm-privacy-gateway/internal/logger"
	"github.com/raaihank/llm-privacy-gateway/internal/metrics"
	"github.com/raaihank/llm-privacy-gateway/internal/security"
	"github.com/raaihank/llm-privacy-gateway/internal/web"
	"github.com/raaihank/llm-privacy-gateway/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

// Server represents the gateway HTTP server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	gateway *gateway.Gateway
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	metrics *metrics.GatewayMetrics
	limiter *security.RateLimiter
}

// Deps are the collaborators the server routes to. Hub, Metrics and
// Limiter may be nil, which disables the matching endpoints.
type Deps struct {
	Gateway *gateway.Gateway
	Hub     *websocket.Hub
	Metrics *metrics.GatewayMetrics
	Limiter *security.RateLimiter
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Gateway == nil {
		return nil, errors.New("proxy: gateway is required")
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("proxy"),
		gateway: deps.Gateway,
		router:  mux.NewRouter(),
		wsHub:   deps.Hub,
		metrics: deps.Metrics,
		limiter: deps.Limiter,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, s.metrics.Handler()).Methods("GET")
	}

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
		s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/unmask", s.handleUnmask).Methods("POST")
	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/process", s.handleProcess).Methods("POST")
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting privacy gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.String("default_backend", s.config.Privacy.DefaultBackend),
		zap.String("ollama_url", s.config.Ollama.URL),
		zap.String("ollama_model", s.config.Ollama.Model),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping privacy gateway server")
	return s.server.Shutdown(ctx)
}

// BroadcastStatus pushes a status snapshot to dashboard clients every interval
func (s *Server) BroadcastStatus(ctx context.Context, interval time.Duration) {
	if s.wsHub == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.PublishStatus(s.statusEvent(ctx))
		}
	}
}

func (s *Server) statusEvent(ctx context.Context) websocket.SystemStatusEvent {
	report := s.gateway.Status(ctx)
	stats := s.gateway.Stats()
	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           stats.Uptime,
		Model:            report.Model,
		BackendReachable: report.BackendReachable,
		ModelAvailable:   report.ModelAvailable,
		ActiveRules:      report.ActiveRules,
		ConnectedClients: s.wsHub.ClientCount(),
		TotalRequests:    stats.TotalRequests,
		TotalDetections:  stats.TotalDetections,
	}
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
