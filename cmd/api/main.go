package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/binding"
	"qrattend/internal/config"
	"qrattend/internal/httpapi"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/identity"
	"qrattend/internal/live"
	"qrattend/internal/logger"
	"qrattend/internal/policy"
	"qrattend/internal/queue"
	"qrattend/internal/session"
	"qrattend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.WaitReady(ctx); err != nil {
		log.Warn("redis not reachable, live counters and redis queue degraded", zap.Error(err))
	}

	counter := live.NewCounter(rdb.Client)
	var events queue.Queue
	if cfg.QueueBackend == "memory" {
		// No separate worker can reach this queue, so drain it here.
		events = queue.NewInMemory(64)
		consumer := live.NewConsumer(counter, cfg.WorkerPoolSize, log)
		go func() { _ = consumer.Run(ctx, events) }()
	} else {
		events = queue.NewRedisQueue(rdb.Client, queue.DefaultKey, log)
	}

	policies := policy.NewService(policy.NewRepository(db.Client), log)
	sessionRepo := session.NewRepository(db.Client)
	sessions := session.NewService(sessionRepo, policies, log)
	bindings := binding.NewRepository(db.Client)
	ledger := attendance.NewLedger(db.Client)

	verifier := attendance.NewVerifier(attendance.Deps{
		Policy:     policies,
		Sessions:   sessionRepo,
		Principals: identity.NewDirectory(db.Client),
		Bindings:   bindings,
		Ledger:     ledger,
		Events:     events,
		Log:        log,
	})

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	h := httpapi.New(httpapi.Deps{
		Sessions: sessions,
		Verifier: verifier,
		Records:  ledger,
		Policies: policies,
		Bindings: bindings,
		Live:     counter,
		Health: map[string]httpapi.HealthCheck{
			"db":    db.Healthy,
			"redis": rdb.Healthy,
		},
		Log: log,
	})
	router, err := httpapi.NewRouter(h, httpapi.RouterOptions{
		SigningKey:     cfg.JWTSigningKey,
		Issuer:         cfg.JWTIssuer,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Limiter:        limiter,
		Production:     cfg.Production(),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}
