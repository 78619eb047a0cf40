package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/weatherhub/weatherhub/internal/handler"
	"github.com/weatherhub/weatherhub/internal/mcp"
	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/openapi"
	"github.com/weatherhub/weatherhub/internal/server/middleware"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
	"github.com/weatherhub/weatherhub/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	Version         string

	// LoginRatePerMinute throttles /auth/login and /auth/register per client IP.
	LoginRatePerMinute int
	// APIKeyRatePerMinute throttles /weather per X-API-KEY value.
	APIKeyRatePerMinute int
	// DefaultQuota applies to keys created without an explicit quota.
	DefaultQuota int64
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                8000,
		ShutdownTimeout:     30 * time.Second,
		CORSOrigins:         []string{"*"},
		MaxBodySize:         1 << 20, // 1MB
		Version:             "dev",
		LoginRatePerMinute:  20,
		APIKeyRatePerMinute: 600,
		DefaultQuota:        1000,
	}
}

// Services bundles the application services the server routes to.
type Services struct {
	Auth    *service.AuthService
	Keys    *service.KeyService
	Weather *service.WeatherService
}

// Server is the top-level HTTP server for WeatherHub. It owns the Chi router,
// the store handle, and the services built on top of it.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	services   Services
	verifier   *service.CredentialVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, s *store.Store, services Services, logger *slog.Logger) *Server {
	srv := &Server{
		cfg:      cfg,
		store:    s,
		services: services,
		verifier: service.NewCredentialVerifier(s),
		logger:   logger,
	}
	srv.setupRouter()
	return srv
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	sysHandler := handler.NewSystemHandler(s.store, s.cfg.Version, mcp.Catalogue(),
		openapi.Generate(fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port), s.cfg.Version))
	authHandler := handler.NewAuthHandler(s.services.Auth)
	adminHandler := handler.NewAdminHandler(s.store, s.services.Auth, s.services.Keys, s.cfg.DefaultQuota)
	agentHandler := handler.NewAgentHandler(s.store, s.services.Weather)
	weatherHandler := handler.NewWeatherHandler(s.services.Weather)

	requireSession := middleware.RequireSession(s.services.Auth, s.logger)

	// --- Unauthenticated service endpoints ---
	r.Get("/", sysHandler.Root)
	r.Get("/healthz", sysHandler.Health)
	r.Get("/health", sysHandler.Health)
	r.Get("/readyz", sysHandler.Ready)
	r.Get("/openapi.json", sysHandler.OpenAPI)
	r.Get("/mcp/tools", sysHandler.Tools)
	r.Handle("/metrics", telemetry.Handler())

	// --- Session auth ---
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.cfg.LoginRatePerMinute))
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})
		r.With(requireSession).Get("/me", authHandler.Me)
	})

	// --- Admin: users and API keys ---
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(middleware.RequireRole(model.RoleAdmin))

		r.Get("/users", adminHandler.ListUsers)
		r.Post("/users", adminHandler.CreateUser)
		r.Get("/users/{id}", adminHandler.GetUser)
		r.Patch("/users/{id}", adminHandler.UpdateUser)
		r.Delete("/users/{id}", adminHandler.DeleteUser)

		r.Get("/api-keys", adminHandler.ListAPIKeys)
		r.Post("/api-keys", adminHandler.CreateAPIKey)
		r.Patch("/api-keys/{id}", adminHandler.UpdateAPIKey)
		r.Delete("/api-keys/{id}", adminHandler.DeleteAPIKey)
	})

	// --- Agent: runtime settings and crawler trigger ---
	r.Route("/agent", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(middleware.RequireRole(model.RoleAdmin))

		r.Get("/configs", agentHandler.ListConfigs)
		r.Post("/configs", agentHandler.CreateConfig)
		r.Get("/configs/{key}", agentHandler.GetConfig)
		r.Put("/configs/{key}", agentHandler.UpdateConfig)
		r.Delete("/configs/{key}", agentHandler.DeleteConfig)
		r.Post("/trigger-crawler", agentHandler.TriggerCrawler)
	})

	// --- Quota-gated weather data ---
	r.Route("/weather", func(r chi.Router) {
		r.Use(middleware.RateLimitByHeader(middleware.APIKeyHeader, s.cfg.APIKeyRatePerMinute))
		r.Use(middleware.RequireAPIKey(s.verifier, s.logger))

		r.Get("/data", weatherHandler.Data)
		r.Get("/stats", weatherHandler.Stats)
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Crawler triggers run synchronously and may take a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
