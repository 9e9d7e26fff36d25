package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/app"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/config"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/logger"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/queue"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/worker"
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
	}), "worker")

	log.Info().Msg("starting campaign dispatch worker")

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

	processor := worker.NewDispatchProcessor(a.Dispatch, log)

	consumerErrors := make(chan error, 1)
	go func() {
		consumerErrors <- queueClient.Consume(ctx, processor.Process, cfg.Worker.Concurrency)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("consumer error")
		}

	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down worker")

		cancel()

		// Consume returns once in-flight dispatches are finalized
		if err := <-consumerErrors; err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("consumer stopped with error")
		}

		log.Info().Msg("worker stopped gracefully")
	}
}
