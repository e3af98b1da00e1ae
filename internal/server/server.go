// Package server is the composition root: it opens the database, builds
// the services, the workspace registry and the handlers, mounts them on a
// chi router and runs the HTTP server with graceful shutdown.
//
// Route map:
//
//	POST   /auth/signup, /auth/signin       (rate limited)
//	POST   /auth/signout                    (session)
//	       /api/...                         (session, see routes)
//	GET    /api/public/guest-lists/{id}     (rate limited)
//	GET    /api/events                      (session, Server-Sent Events)
//	GET    /metrics, /healthz
//	GET    /*                               page bundle behind the route guard
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/wedchart/internal/auth"
	"github.com/sakif/wedchart/internal/config"
	"github.com/sakif/wedchart/internal/guard"
	"github.com/sakif/wedchart/internal/handler"
	"github.com/sakif/wedchart/internal/metrics"
	"github.com/sakif/wedchart/internal/middleware"
	"github.com/sakif/wedchart/internal/planner"
	"github.com/sakif/wedchart/internal/realtime"
	sqliteRepo "github.com/sakif/wedchart/internal/repository/sqlite"
	"github.com/sakif/wedchart/internal/service"
	"github.com/sakif/wedchart/internal/workspace"
)

// maintenanceInterval is how often idle workspaces and expired sessions are
// cleaned up.
const maintenanceInterval = 5 * time.Minute

// Server owns every long-lived resource; Close releases them.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	broker   *realtime.Broker
	identity *service.IdentityService
	registry *workspace.Registry
	limiter  *middleware.RateLimiter
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
}

// New opens the database at cfg.DBPath and wires the application.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	s, err := newServer(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newServer(cfg *config.Config, db *sqliteRepo.DB, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promReg)

	broker := realtime.NewBroker(logger, collector)
	identity := service.NewIdentityService(db, auth.NewPasswordService(), tokens, cfg.SessionTTL, collector, logger)
	data := service.NewDataService(db, broker, collector, logger)

	registry := workspace.NewRegistry(workspace.Deps{
		Identity:        identity,
		Data:            data,
		Feed:            broker,
		Planner:         planner.Config{BaseURL: cfg.BaseURL},
		PlannerRecorder: collector,
	}, cfg.WorkspaceIdleTTL, collector, logger)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		broker:   broker,
		identity: identity,
		registry: registry,
		limiter:  middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.AuthRateLimit), collector, logger),
		metrics:  collector,
		gatherer: promReg,
	}
	s.setupRoutes(data)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts middleware and routes. Global middleware order:
// request id, real IP, recovery, logging, metrics, CORS.
func (s *Server) setupRoutes(data *service.DataService) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics(s.metrics))
	if s.config.CORSAllowedOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{s.config.CORSAllowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	v := handler.NewValidator()
	authH := handler.NewAuthHandler(s.registry, v, s.config.CookieSecure, s.logger)
	accountH := handler.NewAccountHandler(v, s.logger)
	guestH := handler.NewGuestHandler(v, s.logger)
	tableH := handler.NewTableHandler(v, s.logger)
	importH := handler.NewImportHandler(s.logger)
	listH := handler.NewGuestListHandler(data, s.logger)
	events := realtime.NewHandler(s.broker, profileOfRequest, s.logger)

	r.Get("/healthz", handler.HandleHealth(s.db))
	r.Handle("/metrics", metrics.Handler(s.gatherer))

	// Unauthenticated and rate limited.
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/auth/signup", authH.HandleSignUp)
		r.Post("/auth/signin", authH.HandleSignIn)
		r.Get("/api/public/guest-lists/{uniqueId}", listH.HandlePublic)
	})

	// Signed in: the token is checked, then the session's workspace attached.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.identity))
		r.Use(s.registry.Middleware)

		r.Post("/auth/signout", authH.HandleSignOut)

		r.Route("/api", func(r chi.Router) {
			r.Get("/account", authH.HandleMe)
			r.Put("/account/password", accountH.HandleUpdatePassword)
			r.Get("/account/profile", accountH.HandleGetProfile)
			r.Patch("/account/profile", accountH.HandleUpdateProfile)

			r.Get("/guests", guestH.HandleList)
			r.Post("/guests", guestH.HandleCreate)
			r.Put("/guests/{id}", guestH.HandleUpdate)
			r.Delete("/guests/{id}", guestH.HandleDelete)

			r.Get("/tables", tableH.HandleList)
			r.Get("/tables/options", tableH.HandleOptions)
			r.Post("/tables", tableH.HandleCreate)
			r.Delete("/tables/{id}", tableH.HandleDelete)

			r.Post("/import/preview", importH.HandlePreview)
			r.Post("/import", importH.HandleImport)

			r.Post("/guest-list/link", listH.HandleLink)
			r.Post("/guest-list/publish", listH.HandlePublish)
			r.Get("/guest-list/confirmed", listH.HandleConfirmed)

			r.Get("/events", events.ServeHTTP)
		})
	})

	// Pages: anonymous visitors are allowed through OptionalAuth and the
	// guard decides per path.
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(s.identity))
		r.Use(guard.Middleware(func(req *http.Request) bool {
			_, ok := auth.IdentityFromContext(req.Context())
			return ok
		}))
		r.Get("/*", handler.HandleStatic(s.config.StaticDir, s.logger))
	})
}

// profileOfRequest picks the profile whose changes /api/events streams.
func profileOfRequest(r *http.Request) (string, bool) {
	ws, ok := workspace.FromContext(r.Context())
	if !ok {
		return "", false
	}
	p := ws.Session.Profile()
	if p == nil {
		return "", false
	}
	return p.ID, true
}

// maintain periodically closes idle workspaces and purges expired
// sessions until ctx ends.
func (s *Server) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.Sweep()
			n, err := s.identity.PurgeExpiredSessions(ctx)
			if err != nil {
				s.logger.Error("purging expired sessions failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions purged", slog.Int64("count", n))
			}
		}
	}
}

// Close releases everything New acquired. Safe after a failed Start.
func (s *Server) Close() {
	s.limiter.Stop()
	s.registry.CloseAll()
	s.broker.Close()
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database failed", slog.String("error", err.Error()))
	}
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully: stop
// accepting connections, give in-flight requests 30 seconds, close every
// workspace and the database.
func (s *Server) Start() error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go s.maintain(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Event streams only end when their subscription closes; Shutdown
	// would otherwise wait the full timeout for them.
	srv.RegisterOnShutdown(s.broker.Close)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
