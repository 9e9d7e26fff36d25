package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// Publisher announces job lifecycle events
type Publisher interface {
	PublishJobFinalized(ctx context.Context, job *models.CampaignJob) error
	Close() error
}

// Config holds broker settings
type Config struct {
	URL          string
	Exchange     string
	DialAttempts uint64
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes envelopes to a topic exchange, one channel per publish
type AMQPPublisher struct {
	open     func() (channel, error)
	close    func() error
	exchange string
	now      func() time.Time
	logger   zerolog.Logger
}

// Dial connects with exponential backoff and declares the exchange
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*AMQPPublisher, error) {
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 5
	}
	logger = logger.With().Str("component", "events").Logger()

	var conn *amqp.Connection
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.DialAttempts-1), ctx)
	err := backoff.Retry(func() error {
		attempt++
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("amqp dial failed")
			return err
		}
		conn = c
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp after %d attempts: %w", attempt, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info().Str("exchange", cfg.Exchange).Msg("connected to event bus")

	return &AMQPPublisher{
		open: func() (channel, error) {
			return conn.Channel()
		},
		close:    conn.Close,
		exchange: cfg.Exchange,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// PublishJobFinalized sends a TypeJobFinalized envelope routed by its type
func (p *AMQPPublisher) PublishJobFinalized(ctx context.Context, job *models.CampaignJob) error {
	env := NewJobFinalized(job, p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, env.Meta.Type, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Meta.Type, err)
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Str("event_id", env.Meta.ID).
		Msg("published job event")
	return nil
}

// Close closes the broker connection
func (p *AMQPPublisher) Close() error {
	return p.close()
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishJobFinalized(context.Context, *models.CampaignJob) error { return nil }
func (NopPublisher) Close() error                                               { return nil }
