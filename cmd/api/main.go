package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/app"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/clock"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/config"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/storage/memory"
	"github.com/NormanSinay/tradeconnect-v1-sub007/internal/storage/postgres"
	transporthttp "github.com/NormanSinay/tradeconnect-v1-sub007/internal/transport/http"
	"github.com/NormanSinay/tradeconnect-v1-sub007/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg.Log)

	clk := clock.NewSystem()
	var (
		reservationRepo app.ReservationRepository
		adminRepo       app.AdminRepository
		sweeperStore    app.SweeperStore
	)

	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		logger.Warn().Msg("using in-memory storage; state is lost on restart")
		store := memory.NewStore(logger)
		reservationRepo = store
		adminRepo = store
		sweeperStore = store
	default:
		startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err := pgxpool.New(startupCtx, cfg.Database.URL)
		if err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("connect to db")
		}
		defer pool.Close()

		if err := pool.Ping(startupCtx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("db ping")
		}
		if err := migrations.Apply(startupCtx, pool); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		cancel()

		repo := postgres.NewReservationRepository(pool, logger)
		reservationRepo = repo
		adminRepo = postgres.NewAdminRepository(pool)
		sweeperStore = repo
	}

	reservationSvc := app.NewReservationService(reservationRepo, clk, logger,
		app.WithBlockDurations(
			cfg.Holds.DefaultDuration(),
			cfg.Holds.MinDuration(),
			cfg.Holds.MaxDuration(),
		),
	)
	adminSvc := app.NewAdminService(adminRepo, clk)
	sweeper := app.NewSweeper(sweeperStore, clk, logger,
		app.WithSweepInterval(cfg.Sweeper.Interval()),
		app.WithTerminalRetention(cfg.Sweeper.Retention()),
		app.WithSweepBatchSize(cfg.Sweeper.BatchSize),
	)

	mux := transporthttp.NewRouter(reservationSvc, adminSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)

	handler := transporthttp.RequestLogger(corsHandler, logger)
	if cfg.RateLimit.Enabled {
		limiter := transporthttp.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		stopJanitor := limiter.Janitor(time.Minute)
		defer stopJanitor()
		handler = transporthttp.RequestLogger(limiter.Limit(corsHandler), logger)
	}

	server := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: handler,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	group.Go(func() error {
		logger.Info().Str("port", cfg.HTTP.Port).Str("backend", cfg.Storage.Backend).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		err := sweeper.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutdown signal received, stopping server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("service stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
