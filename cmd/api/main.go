package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/config"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/handler"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/logger"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent(logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), "api")

	log.Info().Msg("starting campaign dispatch API server")

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("AUTH_JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer a.Close()

	queueClient, err := queue.NewRedisClient(queue.RedisConfig{
		URL:       cfg.Queue.RedisURL,
		QueueName: cfg.Queue.QueueName,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer queueClient.Close()

	log.Info().Str("queue", cfg.Queue.QueueName).Msg("connected to Redis queue")

	router := handler.NewRouter(handler.RouterConfig{
		Jobs:      handler.NewJobHandler(a.Dispatch, a.JobSvc, queueClient, a.Metrics, log),
		Lists:     handler.NewListHandler(a.ListSvc, log),
		Health:    handler.NewHealthHandler(a.DB, queueClient, log),
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
		Logger:    log,
	})

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Strs("providers", providerNames(a)).Msg("API server listening")
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}

	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")

		// in-flight dispatches finish on their detached submit context
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Dispatch.SubmitTimeout+5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
			return
		}

		log.Info().Msg("server stopped gracefully")
	}
}

func providerNames(a *app.App) []string {
	names := a.Adapters.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
