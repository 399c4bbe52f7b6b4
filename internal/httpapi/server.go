// Package httpapi exposes the governance backbone over HTTP: pipeline
// runs, job scheduling, alert routing, license checks, audit export,
// replay reports, autotune resolution, and strategy governance decisions.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/di"
)

// Config configures the HTTP server's behavior independent of the DI
// container it is handed.
type Config struct {
	Log            zerolog.Logger
	Port           int
	DevMode        bool
	AuthEnabled    bool
	AuthHeaderName string
	AuthAPIKeys    map[string]string // key -> role
}

// Server wraps the chi router composed from every governance service in
// the container.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	c      *di.Container
}

// New builds the router and binds it to ":port", but does not start
// listening; call Start for that.
func New(cfg Config, container *di.Container) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "httpapi").Logger(),
		cfg:    cfg,
		c:      container,
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addrFromPort(cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func addrFromPort(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
	if s.cfg.AuthEnabled {
		s.router.Use(s.authMiddleware)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// authMiddleware rejects requests missing a recognized API key. The key's
// configured role is stamped on the request context for handlers that
// need it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	headerName := s.cfg.AuthHeaderName
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(headerName)
		role, ok := s.cfg.AuthAPIKeys[key]
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), roleContextKey{}, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type roleContextKey struct{}

func roleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey{}).(string)
	return role
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)

		registerPipelineRoutes(r, s.c.Pipeline, s.log)
		registerJobRoutes(r, s.c.Job, s.log)
		registerAlertRoutes(r, s.c.Alert, s.log)
		registerLicenseRoutes(r, s.c.License, s.log)
		registerAuditRoutes(r, s.c.Audit, s.c.AuditS3Backup, s.log)
		registerReplayRoutes(r, s.c.Replay, s.log)
		registerAutotuneRoutes(r, s.c.Autotune, s.log)
		registerGovernanceRoutes(r, s.c.Governance, s.log)
		registerEventRoutes(r, s.c.EventSvc, s.log)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.log, w, http.StatusOK, map[string]any{"service": "trading-assistant", "version": "0.1.0"})
}

// Start runs ListenAndServe until the server is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(log zerolog.Logger, w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}
