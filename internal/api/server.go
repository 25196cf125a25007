package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"run-sphere/internal/config"
	"run-sphere/internal/monitor"
	"run-sphere/internal/programs"
	"run-sphere/internal/ratelimit"
	"run-sphere/internal/service"
)

// Deps are the collaborators the HTTP layer serves from. History and
// Programs are optional.
type Deps struct {
	Service  *service.Service
	Limiter  *ratelimit.Limiter
	Metrics  *monitor.Metrics
	History  RunHistory
	Programs programs.Store
}

// Server is the HTTP server for the runner API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	history    RunHistory
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = monitor.NewMetrics()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}

	clientKey := ClientKey(cfg.Server.TrustForwardedFor)
	handlers := NewHandlers(deps.Service, deps.History, deps.Programs, clientKey)

	s := &Server{
		handlers:  handlers,
		history:   deps.History,
		cfg:       cfg,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/run", handlers.HandleRun)
	mux.HandleFunc("GET /api/result/{id}", handlers.HandleGetResult)
	mux.HandleFunc("GET /api/languages", handlers.HandleLanguages)
	mux.HandleFunc("GET /api/runs", handlers.HandleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", handlers.HandleGetRun)

	mux.HandleFunc("GET /api/programs", handlers.HandleListPrograms)
	mux.HandleFunc("POST /api/programs", handlers.HandleSaveProgram)
	mux.HandleFunc("POST /api/programs/delete", handlers.HandleDeletePrograms)
	mux.HandleFunc("PATCH /api/programs/{id}", handlers.HandleUpdateProgram)
	mux.HandleFunc("DELETE /api/programs/{id}", handlers.HandleDeleteProgram)

	mux.HandleFunc("GET /api/settings", handlers.HandleGetSettings)
	mux.HandleFunc("PUT /api/settings", handlers.HandleSaveSettings)
	mux.HandleFunc("DELETE /api/settings", handlers.HandleResetSettings)

	// Apply middleware chain (innermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(deps.Metrics)(handler)
	handler = RateLimitMiddleware(deps.Limiter, clientKey, deps.Metrics)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = CORSMiddleware(cfg.Server.AllowedOrigins)(handler)
	handler = RecoveryMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		OK:     true,
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if s.history != nil {
		dbOK := s.history.Healthy(r.Context())
		resp.Database = &dbOK
		if !dbOK {
			resp.OK = false
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
