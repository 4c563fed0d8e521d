package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tokostok/backend/internal/auth"
	"tokostok/backend/internal/broker"
	"tokostok/backend/internal/cache"
	"tokostok/backend/internal/config"
	"tokostok/backend/internal/httpapi"
	"tokostok/backend/internal/logging"
	"tokostok/backend/internal/service"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/memory"
	pgstore "tokostok/backend/internal/store/postgres"
	"tokostok/backend/internal/telemetry"
)

const tokenTTL = 5 * time.Minute

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logging.Sync(logger)

	if err := validateServerConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 4)

	if cfg.JaegerEndpoint != "" {
		tp, err := telemetry.InitTracer("tokostok-server", cfg.JaegerEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			closers = append(closers, func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return tp.Shutdown(shutdownCtx)
			})
			logger.Info("tracing: jaeger", zap.String("endpoint", cfg.JaegerEndpoint))
		}
	}

	var db store.DB
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("postgres migration failed", zap.Error(err))
		}
		db = pg
		closers = append(closers, pg.Close)
		logger.Info("store: postgres")
	} else {
		mem := memory.New()
		db = mem
		closers = append(closers, mem.Close)
		logger.Info("store: in-memory")
	}

	versionCache := cache.VersionCache(cache.NoopVersionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisVersionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			versionCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	publisher := service.VersionPublisher(service.NoopPublisher{})
	if len(cfg.KafkaBrokers) > 0 {
		producer := broker.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicVersions, logger)
		publisher = producer
		closers = append(closers, producer.Close)
		logger.Info("events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopicVersions))
	}

	svc := service.New(db, versionCache, cfg.VersionCacheTTL, publisher, logger)
	tokens := auth.NewManager(cfg.SyncTokenSecret, tokenTTL)
	if !tokens.Enabled() {
		logger.Warn("SYNC_TOKEN_SECRET is empty; devices are identified by X-Device-ID only")
	}
	api := httpapi.New(svc, tokens, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("sync backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// validateServerConfig adds production rules on top of Config.Validate.
func validateServerConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Env != "production" {
		return nil
	}
	var errs []error
	if cfg.SyncTokenSecret == "" {
		errs = append(errs, errors.New("SYNC_TOKEN_SECRET is required in production"))
	}
	if cfg.AllowedOrigin == "*" {
		errs = append(errs, errors.New("ALLOWED_ORIGIN must not be a wildcard in production"))
	}
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	return errors.Join(errs...)
}
