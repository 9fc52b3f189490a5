// Package api exposes the control plane's operator-facing HTTP surface:
// a health check, a Prometheus scrape endpoint, and the Activity Bus
// WebSocket push. Trading decisions themselves are never taken through
// this package; it is read-only glass for what the scheduler and
// pipeline are already doing.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/config"
	"github.com/atlas-desktop/aurum-control-plane/internal/events"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// HealthFunc reports whether the process is ready to serve traffic; it
// backs the /healthz endpoint. A non-nil error is rendered as 503 with the
// error text as the body.
type HealthFunc func(ctx context.Context) error

// WebSocketPath is the fixed upgrade path for the Activity Bus stream.
const WebSocketPath = "/ws/activity"

// Server is the control plane's HTTP/WebSocket front door.
type Server struct {
	logger     *zap.Logger
	cfg        *config.Config
	router     *mux.Router
	httpServer *http.Server
	bus        *events.Bus
	gatherer   prometheus.Gatherer
	health     HealthFunc
	hub        *Hub
}

// NewServer constructs a Server. gatherer may be nil to disable /metrics.
func NewServer(logger *zap.Logger, cfg *config.Config, bus *events.Bus, gatherer prometheus.Gatherer, health HealthFunc) *Server {
	s := &Server{
		logger:   logger.Named("api"),
		cfg:      cfg,
		router:   mux.NewRouter(),
		bus:      bus,
		gatherer: gatherer,
		health:   health,
		hub:      newHub(logger.Named("api.ws"), bus),
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.router.HandleFunc(WebSocketPath, s.hub.handleUpgrade)
}

// Start runs the HTTP server until Stop is called or ListenAndServe fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("starting api server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server and disconnects all WebSocket
// subscribers.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.closeAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","time":%d}`, time.Now().Unix())
}
