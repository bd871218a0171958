// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides which URL patterns map to
// which handlers, which middleware guards which routes, and how the server
// starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go: config.Load() → logger.New() → server.New()
//	server.New():
//	  storage (sqlite | postgres)       → user, project and dataset repositories
//	  httpclient (breaker per provider) → Google / GitHub adapters
//	  TokenService, PasswordService     → AuthService, Guard
//	  services                          → handlers → routes
//
// This is the "composition root": every dependency is assembled here and
// nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/mlvision/internal/auth"
	"github.com/sakif/mlvision/internal/config"
	"github.com/sakif/mlvision/internal/handler"
	"github.com/sakif/mlvision/internal/httpclient"
	"github.com/sakif/mlvision/internal/middleware"
	"github.com/sakif/mlvision/internal/model"
	"github.com/sakif/mlvision/internal/repository"
	"github.com/sakif/mlvision/internal/repository/postgres"
	sqliteRepo "github.com/sakif/mlvision/internal/repository/sqlite"
	"github.com/sakif/mlvision/internal/service"
)

// database is what the server needs from a storage backend beyond the
// repositories: a liveness probe for /health and a Close for shutdown.
type database interface {
	Ping(ctx context.Context) error
	Close() error
}

// storage bundles an open backend with its repositories.
type storage struct {
	db       database
	users    repository.UserRepository
	projects repository.ProjectRepository
	datasets repository.DatasetRepository
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained; Close does the same for a server that never started.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  storage
}

// New opens storage, builds every service and registers the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.db.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// openStorage selects the backend named by DB_DRIVER. Both run migrations
// on open.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return storage{}, fmt.Errorf("server: opening postgres: %w", err)
		}
		return storage{db: db, users: db.Users(), projects: db.Projects(), datasets: db.Datasets()}, nil

	default:
		if cfg.DBPath != ":memory:" {
			// os.MkdirAll is `mkdir -p`.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return storage{}, fmt.Errorf("server: creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(ctx, cfg.DBPath, logger)
		if err != nil {
			return storage{}, fmt.Errorf("server: opening sqlite: %w", err)
		}
		return storage{db: db, users: db.Users(), projects: db.Projects(), datasets: db.Datasets()}, nil
	}
}

// providers returns an adapter for every fully configured provider. Each
// gets its own circuit breaker so one failing upstream does not trip the
// other.
func (s *Server) providers() []auth.ProviderAdapter {
	var adapters []auth.ProviderAdapter

	add := func(p model.Provider, oc config.OAuthClient, build func(*http.Client) auth.ProviderAdapter) {
		if oc.Partial() {
			s.logger.Warn("OAuth provider partially configured, disabling it",
				slog.String("provider", p.String()))
		}
		if !oc.Configured() {
			return
		}
		client := httpclient.New(httpclient.DefaultConfig("oauth-"+p.String(), s.config.OAuthHTTPTimeout), s.logger)
		adapters = append(adapters, build(client))
		s.logger.Info("OAuth provider enabled", slog.String("provider", p.String()))
	}

	add(model.ProviderGoogle, s.config.Google, func(c *http.Client) auth.ProviderAdapter {
		return auth.NewGoogleProvider(s.config.GoogleProvider(c))
	})
	add(model.ProviderGitHub, s.config.GitHub, func(c *http.Client) auth.ProviderAdapter {
		return auth.NewGitHubProvider(s.config.GitHubProvider(c))
	})
	return adapters
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health                              → database liveness
//	GET    /metrics                             → Prometheus scrape
//	POST   /api/v1/auth/register                → password sign-up
//	POST   /api/v1/auth/login                   → password sign-in
//	POST   /api/v1/auth/refresh                 → new token pair
//	GET    /api/v1/auth/me                      → caller identity        [auth]
//	GET    /api/v1/auth/{provider}/authorize    → consent URL as JSON
//	GET    /auth/{provider}/login               → 302 to consent page
//	GET    /auth/{provider}/callback            → 302 to frontend
//	GET    /api/v1/projects[/{id}]              → read                   [auth, any tenant role]
//	POST   /api/v1/projects                     → create                 [auth, member+]
//	PUT    /api/v1/projects/{id}                → update                 [auth, member+]
//	DELETE /api/v1/projects/{id}                → delete                 [auth, member+]
//	GET    /api/v1/projects/{id}/datasets       → list datasets          [auth, any tenant role]
//	POST   /api/v1/projects/{id}/datasets       → add a dataset          [auth, member+]
//	GET    /api/v1/admin/users/{id}             → read a user            [auth, admin]
//	PUT    /api/v1/admin/users/{id}/access      → tenant, roles, active  [auth, admin]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so every log line can carry it. Logger wraps
// Recoverer so a recovered panic is logged with its 500 status. Identify
// runs right after RequireAuth so the request logger carries user_id.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.TokenConfig())
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	guard := auth.NewGuard(tokens)

	authService, err := service.NewAuthService(s.store.users, tokens, passwords, s.providers(), service.AuthConfig{
		AccessTTL:   s.config.AccessTokenTTL,
		RefreshTTL:  s.config.RefreshTokenTTL,
		StateTTL:    s.config.OAuthStateTTL,
		FrontendURL: s.config.FrontendURL,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	authHandler := handler.NewAuthHandler(authService, s.logger)
	projectHandler := handler.NewProjectHandler(service.NewProjectService(s.store.projects, s.logger), s.logger)
	datasetHandler := handler.NewDatasetHandler(service.NewDatasetService(s.store.projects, s.store.datasets, s.logger), s.logger)
	adminHandler := handler.NewAdminHandler(service.NewAdminService(s.store.users, s.logger), s.logger)
	healthHandler := handler.NewHealthHandler(s.store.db, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{chimiddleware.RequestIDHeader},
		MaxAge:         300,
	}))

	requireAuth := chi.Middlewares{auth.RequireAuth(guard, handler.WriteError), middleware.Identify}

	s.router.Get("/health", healthHandler.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// Browser-facing OAuth endpoints. The callback URL is what is registered
	// with the provider, so these stay outside /api/v1.
	s.router.Get("/auth/{provider}/login", authHandler.HandleProviderLogin)
	s.router.Get("/auth/{provider}/callback", authHandler.HandleProviderCallback)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/refresh", authHandler.HandleRefresh)
			r.With(requireAuth...).Get("/me", authHandler.HandleMe)
			r.Get("/{provider}/authorize", authHandler.HandleAuthorizeURL)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Use(requireAuth...)
			r.Use(auth.RequireRoles(handler.WriteError, model.ReadRoles...))

			r.Get("/", projectHandler.HandleList)
			r.Get("/{id}", projectHandler.HandleGetByID)
			r.Get("/{id}/datasets", datasetHandler.HandleList)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(handler.WriteError, model.WriteRoles...))
				r.Post("/", projectHandler.HandleCreate)
				r.Put("/{id}", projectHandler.HandleUpdate)
				r.Delete("/{id}", projectHandler.HandleDelete)
				r.Post("/{id}/datasets", datasetHandler.HandleCreate)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth...)
			r.Use(auth.RequireRoles(handler.WriteError, model.RoleAdmin))

			r.Get("/users/{id}", adminHandler.HandleGetUser)
			r.Put("/users/{id}/access", adminHandler.HandleUpdateAccess)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on its way out.
func (s *Server) Close() error {
	return s.store.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait up to SHUTDOWN_TIMEOUT for in-flight requests
//  3. Close the database (flushes the SQLite WAL, releases pool connections)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("db_driver", s.config.DBDriver),
			slog.String("frontend_url", s.config.FrontendURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
