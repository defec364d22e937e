package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"todo-api/api"
	"todo-api/config"
	"todo-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	storeOpts := []storage.Option{storage.WithStartID(cfg.StartID)}
	if cfg.SeedText != "" {
		storeOpts = append(storeOpts, storage.WithSeed(cfg.SeedText))
	}
	store := storage.New(storeOpts...)

	var replay api.ReplayStore
	var rc *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("invalid REDIS_URL: %v", err)
		}
		rc = redis.NewClient(opts)
		replay = api.NewRedisReplayStore(rc, cfg.IdempotencyTTL)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	readiness := api.Register(e, store, replay, logger, api.WithCORS(cfg.CORSOrigins...))
	if cfg.PprofEnabled {
		pprof.Register(e)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("addr", cfg.ListenAddr()).Info("todo api listening")
		if err := e.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	readiness.SetReady(false)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("tracer shutdown: %v", err)
	}
	if rc != nil {
		if err := rc.Close(); err != nil {
			logger.Errorf("redis close: %v", err)
		}
	}
}
