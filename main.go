package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/icco/watchlist/handlers"
	"github.com/icco/watchlist/lib/config"
	"github.com/icco/watchlist/lib/db"
	"github.com/icco/watchlist/lib/gate"
	"github.com/icco/watchlist/lib/health"
	"github.com/icco/watchlist/lib/registry"
	"github.com/icco/watchlist/lib/store"
	"github.com/icco/watchlist/lib/tmdb"
	"gorm.io/gorm"
)

type App struct {
	cfg    *config.Config
	db     *gorm.DB
	router *chi.Mux
	logger *slog.Logger
}

func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	gdb, err := db.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(gdb, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	app := &App{
		cfg:    cfg,
		db:     gdb,
		router: chi.NewRouter(),
		logger: logger,
	}

	app.setupRoutes()
	return app, nil
}

func (a *App) setupRoutes() {
	reg := newRegistry(a.cfg.Auth, a.logger)
	tc := tmdb.NewClient(a.cfg.TMDB.APIKey, a.logger)
	st := store.New(a.db, a.logger)

	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", gate.SecretHeader},
	}))

	a.router.Get("/healthz", health.Check(a.db))

	a.router.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(a.cfg.Server.RateLimitReqs, a.cfg.Server.RateLimitWindow))
		r.Use(gate.Require(reg, a.logger))
		r.MethodNotAllowed(handlers.HandleMethodNotAllowed())

		r.Get("/movies", handlers.HandleListMovies(st))
		r.Post("/movies", handlers.HandleAddMovie(st, tc))
		r.Patch("/movies", handlers.HandleUpdateMovie(st))
		r.Delete("/movies", handlers.HandleRemoveMovie(st))

		r.Get("/tmdb-search", handlers.HandleSearch(tc))
		r.Get("/tmdb-movie", handlers.HandleMovieMetadata(tc))
		r.Get("/tmdb-credits", handlers.HandleCredits(tc))
		r.Get("/tmdb-videos", handlers.HandleVideos(tc))
	})
}

// newRegistry wires the secret registry from config. An inline LISTS value
// or a LISTS_FILE enables the multi-list table; APP_SECRET alone falls back
// to legacy single-tenant mode.
func newRegistry(cfg config.AuthConfig, logger *slog.Logger) *registry.Registry {
	var source registry.Source
	switch {
	case cfg.Lists != "":
		source = registry.StaticSource(cfg.Lists)
	case cfg.ListsFile != "":
		source = registry.FileSource(cfg.ListsFile)
	}
	return registry.New(source, cfg.Secret, logger)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      app.router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	logger.Info("Starting server", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		logger.Error("Server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
