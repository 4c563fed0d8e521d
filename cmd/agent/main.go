package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokostok/backend/internal/auth"
	"tokostok/backend/internal/broker"
	"tokostok/backend/internal/config"
	"tokostok/backend/internal/logging"
	"tokostok/backend/internal/remote"
	"tokostok/backend/internal/repository"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/memory"
	"tokostok/backend/internal/store/sqlite"
	"tokostok/backend/internal/syncer"
	"tokostok/backend/internal/telemetry"
	"tokostok/backend/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logging.Sync(logger)

	if err := validateAgentConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger = logger.With(zap.String("device", cfg.DeviceID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 4)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Error("close error", zap.Error(err))
			}
		}
	}()

	if cfg.JaegerEndpoint != "" {
		tp, err := telemetry.InitTracer("tokostok-agent", cfg.JaegerEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			closers = append(closers, func() error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return tp.Shutdown(shutdownCtx)
			})
		}
	}

	var db store.DB
	if cfg.LocalDBPath != "" {
		local, err := sqlite.Open(ctx, cfg.LocalDBPath)
		if err != nil {
			logger.Fatal("local database unavailable", zap.String("path", cfg.LocalDBPath), zap.Error(err))
		}
		db = local
		closers = append(closers, local.Close)
		logger.Info("local store: sqlite", zap.String("path", cfg.LocalDBPath))
	} else {
		mem := memory.New()
		db = mem
		closers = append(closers, mem.Close)
		logger.Warn("local store: in-memory; edits are lost on exit")
	}

	opts := []remote.Option{
		remote.WithDeviceID(cfg.DeviceID),
		remote.WithLogger(logger),
	}
	if cfg.SyncTokenSecret != "" {
		tokens := auth.NewManager(cfg.SyncTokenSecret, 5*time.Minute)
		opts = append(opts, remote.WithTokenSource(tokens.TokenSource(cfg.DeviceID)))
	}
	client := remote.New(cfg.RemoteURL, cfg.RemoteTimeout, opts...)

	set := repository.NewSet(db, client, logger)
	sync := syncer.New(logger, cfg.RemoteTimeout)
	w := worker.New(set, sync, cfg.SyncInterval,
		worker.WithLocalChanges(db),
		worker.WithDeviceID(cfg.DeviceID),
		worker.WithLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		consumer := broker.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopicVersions, cfg.KafkaConsumerGroup, logger)
		closers = append(closers, consumer.Close)
		g.Go(func() error {
			err := consumer.Run(gctx, w.HandleVersionChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		logger.Info("events: kafka", zap.String("group", cfg.KafkaConsumerGroup))
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("sync agent started",
		zap.String("remote", cfg.RemoteURL),
		zap.Duration("interval", cfg.SyncInterval),
	)
	if err := g.Wait(); err != nil {
		logger.Error("agent stopped with error", zap.Error(err))
		return
	}
	logger.Info("agent stopped")
}

func validateAgentConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RemoteURL == "" {
		return errors.New("REMOTE_URL is required")
	}
	if cfg.DeviceID == "" {
		return errors.New("DEVICE_ID is required")
	}
	return nil
}
