package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/a11ylint/a11ylint-server/internal/config"
	"github.com/a11ylint/a11ylint-server/internal/database"
	"github.com/a11ylint/a11ylint-server/internal/gemini"
	"github.com/a11ylint/a11ylint-server/internal/handler"
	"github.com/a11ylint/a11ylint-server/internal/jobs"
	"github.com/a11ylint/a11ylint-server/internal/middleware"
	"github.com/a11ylint/a11ylint-server/internal/model"
	"github.com/a11ylint/a11ylint-server/internal/redis"
	"github.com/a11ylint/a11ylint-server/internal/repository"
	"github.com/a11ylint/a11ylint-server/internal/service"
	"github.com/a11ylint/a11ylint-server/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	isProduction := cfg.IsProduction()
	if isProduction {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	codec := util.NewCodec(cfg.EncryptionKey)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var (
		backend     service.SessionBackend
		sessionRepo repository.SessionRepository
	)

	switch cfg.Backend() {
	case model.SessionBackendCookie:
		backend = service.NewCookieBackend(codec)

	case model.SessionBackendMemory:
		sessionRepo = repository.NewMemorySessionRepository()
		backend = service.NewStoreBackend(model.SessionBackendMemory, sessionRepo, nil)

	case model.SessionBackendRedis:
		sessionRepo = repository.NewRedisSessionRepository(redisClient.Client)
		backend = service.NewStoreBackend(model.SessionBackendRedis, sessionRepo, codec)

	case model.SessionBackendPostgres:
		db, err := database.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		err = repository.EnsureSessionSchema(ctx, db)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare session schema")
		}
		log.Info().Msg("database connected")

		sessionRepo = repository.NewSessionRepository(db)
		backend = service.NewStoreBackend(model.SessionBackendPostgres, sessionRepo, codec)
	}

	log.Info().Str("backend", string(backend.Kind())).Msg("session backend selected")

	var rateLimiter service.RateLimiter
	if redisClient != nil {
		rateLimiter = service.NewRedisRateLimiter(redisClient.Client)
	} else {
		rateLimiter = service.NewLocalRateLimiter()
	}

	geminiClient := gemini.NewClient(cfg.GeminiAPIURL, cfg.GeminiModel, cfg.AnalysisTimeout())
	log.Info().
		Str("model", geminiClient.Model()).
		Dur("timeout", cfg.AnalysisTimeout()).
		Msg("analysis client configured")

	sessionService := service.NewSessionService(backend, config.SessionLifetime)
	analysisService := service.NewAnalysisService(geminiClient, cfg.AnalysisTimeout())

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	analyzeRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, cfg.AnalyzeRateLimitPerMin, time.Minute, "analyze",
	)

	sessionHandler := handler.NewSessionHandler(sessionService, isProduction)
	analysisHandler := handler.NewAnalysisHandler(sessionService, analysisService, isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.FrontendURL)))
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		sessionHandler.Register(r)
		r.Group(func(r chi.Router) {
			r.Use(analyzeRateLimit.Handler)
			analysisHandler.Register(r)
		})
	})

	if cfg.StaticDir != "" {
		r.NotFound(handler.NewSPAHandler(cfg.StaticDir).ServeHTTP)
		log.Info().Str("dir", cfg.StaticDir).Msg("serving editor bundle")
	}

	if sessionRepo != nil {
		sweepJob := jobs.NewSweepJob(sessionRepo, cfg.SweepInterval())
		sweepJob.Start()
		defer sweepJob.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
