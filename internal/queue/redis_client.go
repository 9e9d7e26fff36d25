package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

const maxConcurrency = 16

// listCommands is the subset of go-redis used by the queue
type listCommands interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// redisClient implements Client on a Redis list
type redisClient struct {
	client     listCommands
	queueName  string
	popTimeout time.Duration
	errorPause time.Duration
	logger     zerolog.Logger
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL       string
	QueueName string
}

// NewRedisClient creates a new Redis queue client
func NewRedisClient(cfg RedisConfig, logger zerolog.Logger) (Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With().Str("component", "queue").Str("queue", cfg.QueueName).Logger()
	logger.Info().Str("addr", opts.Addr).Msg("connected to Redis")

	return newRedisClient(client, cfg.QueueName, logger), nil
}

func newRedisClient(client listCommands, queueName string, logger zerolog.Logger) *redisClient {
	return &redisClient{
		client:     client,
		queueName:  queueName,
		popTimeout: time.Second,
		errorPause: time.Second,
		logger:     logger,
	}
}

// Publish sends a dispatch job to the queue
func (c *redisClient) Publish(ctx context.Context, job *models.DispatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// LPUSH + BRPOP gives FIFO order
	if err := c.client.LPush(ctx, c.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}

	c.logger.Debug().
		Str("request_id", job.RequestID).
		Str("company_id", job.Request.CompanyID).
		Msg("job published to queue")

	return nil
}

// Consume pops jobs and hands each to handler in its own goroutine, bounded by concurrency.
// Cancelling ctx stops popping; jobs already popped run to completion on a context
// that is not cancelled, since nothing would pick them up again.
func (c *redisClient) Consume(ctx context.Context, handler JobHandler, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	c.logger.Info().Int("concurrency", concurrency).Msg("starting queue consumer")

	jobCtx := context.WithoutCancel(ctx)
	semaphore := make(chan struct{}, concurrency)
	drain := func() {
		for i := 0; i < concurrency; i++ {
			semaphore <- struct{}{}
		}
		c.logger.Info().Msg("all in-flight jobs completed")
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info().Msg("consumer stopped by context, waiting for in-flight jobs to complete")
			drain()
			return ctx.Err()
		}

		result, err := c.client.BRPop(ctx, c.popTimeout, c.queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info().Msg("consumer stopped by context")
				drain()
				return err
			}
			c.logger.Error().Err(err).Msg("failed to pop from queue")
			select {
			case <-time.After(c.errorPause):
			case <-ctx.Done():
			}
			continue
		}

		// BRPOP returns [queueName, value]
		if len(result) < 2 {
			c.logger.Error().Msg("unexpected BRPOP result format")
			continue
		}

		var job models.DispatchJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			c.logger.Error().Err(err).Str("data", result[1]).Msg("failed to unmarshal job")
			continue
		}

		c.logger.Debug().Str("request_id", job.RequestID).Msg("job received from queue")

		semaphore <- struct{}{}

		go func(job models.DispatchJob) {
			defer func() { <-semaphore }()

			// The job is already popped; handler owns any failure recording
			if err := handler(jobCtx, &job); err != nil {
				c.logger.Error().
					Err(err).
					Str("request_id", job.RequestID).
					Msg("handler failed to process job")
			}
		}(job)
	}
}

// Close closes the Redis connection
func (c *redisClient) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// Health checks if Redis is healthy
func (c *redisClient) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// QueueLength returns the number of jobs in the queue
func (c *redisClient) QueueLength(ctx context.Context) (int64, error) {
	length, err := c.client.LLen(ctx, c.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}
