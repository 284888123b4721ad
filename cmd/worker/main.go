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

	"qrattend/internal/config"
	"qrattend/internal/live"
	"qrattend/internal/logger"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes attendance events and keeps the live session counters current.
func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs the redis queue backend; the memory queue is per process")
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.WaitReady(ctx); err != nil {
		log.Fatal("redis connect failed", zap.Error(err))
	}

	if cfg.WorkerMetrics != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerMetrics,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	q := queue.NewRedisQueue(rdb.Client, queue.DefaultKey, log)
	consumer := live.NewConsumer(live.NewCounter(rdb.Client), cfg.WorkerPoolSize, log)

	log.Info("worker started", zap.Int("pool_size", cfg.WorkerPoolSize), zap.String("queue", queue.DefaultKey))
	if err := consumer.Run(ctx, q); err != nil {
		log.Error("worker failed", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
