package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"readshelf/internal/util"
	"readshelf/pkg/cache"
	"readshelf/pkg/ident"
	"readshelf/pkg/library"
	"readshelf/pkg/queue"
	"readshelf/pkg/store"
	"readshelf/services/worker/internal/app"
	"readshelf/services/worker/internal/config"
	"readshelf/services/worker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	codec, err := ident.NewCodec(ident.Config{BaseURL: cfg.BaseURL})
	if err != nil {
		log.Fatalf("failed to init codec: %v", err)
	}
	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	notifier, err := cache.NewRedisNotifier(cache.RedisNotifierConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Prefix:   cfg.CachePrefix,
	})
	if err != nil {
		log.Fatalf("failed to init cache notifier: %v", err)
	}
	defer notifier.Close()

	consumer, _ := os.Hostname()
	events, err := queue.NewRedisEventQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.EventStream,
		Group:      cfg.EventGroup,
		Consumer:   consumer,
		MaxRetries: cfg.EventMaxRetries,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to init event queue: %v", err)
	}
	defer events.Close()

	sweeper, err := library.NewSweeper(library.SweeperConfig{
		Store:     dataStore,
		Events:    events,
		Logger:    logger,
		Retention: cfg.Retention(),
	})
	if err != nil {
		log.Fatalf("failed to init sweeper: %v", err)
	}

	worker, err := app.New(app.Config{
		Sweeper:      sweeper,
		Events:       events,
		Cache:        notifier,
		Codec:        codec,
		Logger:       logger,
		Schedule:     cfg.SweepSchedule,
		SweepTimeout: cfg.SweepTimeout(),
		Concurrency:  cfg.EventConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}

	httpServer := server.New(server.Config{
		Registry: worker.Registry(),
		Health:   func(r *http.Request) error { return dataStore.Ping(r.Context()) },
	})
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("worker server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "err", err)
	}
	select {
	case <-worker.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("sweep still running at shutdown")
	}
}
