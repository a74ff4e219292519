package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/civicdesk/backend/internal/config"
	"github.com/civicdesk/backend/internal/db"
	"github.com/civicdesk/backend/internal/db/memstore"
	"github.com/civicdesk/backend/internal/geocode"
	httpapi "github.com/civicdesk/backend/internal/http"
	"github.com/civicdesk/backend/internal/ratelimit"
	"github.com/civicdesk/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "civicdesk-backend").Str("env", cfg.Env).Logger()

	ctx := context.Background()

	var repo service.Repository
	switch cfg.Store {
	case config.StoreMemory:
		repo = memstore.New()
		logger.Warn().Msg("using in-memory store, data is lost on restart")
	default:
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		repo = store
	}

	registry := service.NewRegistry(repo, cfg.DepartmentCacheTTL, logger)
	if cfg.SeedDepartments {
		if err := registry.SeedDefaults(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed departments")
		}
	}

	var geocoder geocode.ReverseGeocoder
	if cfg.GeocoderURL != "" {
		geocoder = &geocode.NominatimGeocoder{
			BaseURL:     cfg.GeocoderURL,
			UserAgent:   cfg.GeocoderUserAgent,
			MinInterval: cfg.GeocoderMinInterval,
		}
	} else {
		logger.Info().Msg("reverse geocoding disabled, coordinates are stored as location")
	}

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rl, err := ratelimit.NewRedisLimiter(cfg.RedisURL, "civicdesk:ratelimit", cfg.SubmitRateLimit, cfg.SubmitRateWindow)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer rl.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rl.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, rate limiter fails open until it recovers")
		}
		cancel()
		limiter = rl
	}

	complaints := service.NewComplaintService(repo, registry, geocoder, logger)
	metrics := &service.Metrics{Repo: repo, Registry: registry}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:      repo,
		Complaints: complaints,
		Registry:   registry,
		Metrics:    metrics,
		Limiter:    limiter,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
